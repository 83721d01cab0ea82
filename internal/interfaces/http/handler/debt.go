package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	billingapp "github.com/rentals/backend/internal/application/billing"
	"github.com/rentals/backend/internal/domain/shared"
)

// DebtHandler handles the debt ledger endpoints
type DebtHandler struct {
	BaseHandler
	ledger *billingapp.LedgerService
}

// NewDebtHandler creates a new DebtHandler
func NewDebtHandler(ledger *billingapp.LedgerService) *DebtHandler {
	return &DebtHandler{ledger: ledger}
}

// CreateFeeRequest is the body of an ad-hoc fee
type CreateFeeRequest struct {
	Type        string   `json:"type" binding:"max=50" example:"Late Fee"`
	Description string   `json:"description" binding:"max=500" example:"Late payment - October"`
	AmountDue   string   `json:"amount_due" binding:"required" example:"35.00"`
	DueDate     string   `json:"due_date" binding:"omitempty,datetime=2006-01-02" example:"2026-11-01"`
	LeaseID     string   `json:"lease_id" binding:"omitempty,uuid"`
	UnitID      string   `json:"unit_id" binding:"max=100"`
	PropertyID  string   `json:"property_id" binding:"omitempty,uuid"`
	RenterIDs   []string `json:"renter_ids" binding:"omitempty,dive,uuid"`
}

// ListOutstanding godoc
// @ID           listOutstandingDebts
// @Summary      List outstanding debts
// @Description  Debts with a positive outstanding balance, oldest due first, enriched with property and renter names. Optional bounds restrict them to properties inside a lat/lng box.
// @Tags         debts
// @Produce      json
// @Param        bounds query string false "minLat,minLng,maxLat,maxLng"
// @Param        limit  query int    false "Maximum rows"
// @Success      200 {object} APIResponse[[]billingapp.DebtResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /debts/outstanding [get]
func (h *DebtHandler) ListOutstanding(c *gin.Context) {
	bounds, err := parseBounds(c.Query("bounds"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	debts, err := h.ledger.ListOutstandingDebts(c.Request.Context(), billingapp.OutstandingQuery{
		Bounds: bounds,
		Limit:  limit,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessList(c, debts, len(debts))
}

// Get godoc
// @ID           getDebt
// @Summary      Get a debt item
// @Tags         debts
// @Produce      json
// @Param        id path string true "Debt item ID" format(uuid)
// @Success      200 {object} APIResponse[billingapp.DebtResponse]
// @Failure      404 {object} ErrorResponse
// @Router       /debts/{id} [get]
func (h *DebtHandler) Get(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	debt, err := h.ledger.GetDebt(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, debt)
}

// ListForRenter godoc
// @ID           listRenterDebts
// @Summary      List a renter's debts
// @Tags         debts
// @Produce      json
// @Param        renterId    path  string true  "Renter ID" format(uuid)
// @Param        outstanding query bool   false "Only debts with a positive balance"
// @Success      200 {object} APIResponse[[]billingapp.DebtResponse]
// @Router       /renters/{renterId}/debts [get]
func (h *DebtHandler) ListForRenter(c *gin.Context) {
	renterID, err := parseUUIDParam(c, "renterId")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	onlyOutstanding := false
	if raw := c.Query("outstanding"); raw != "" {
		onlyOutstanding, err = strconv.ParseBool(raw)
		if err != nil {
			h.HandleError(c, shared.NewInvalidInputError("outstanding must be true or false"))
			return
		}
	}

	debts, err := h.ledger.ListDebtsForRenter(c.Request.Context(), renterID, onlyOutstanding)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessList(c, debts, len(debts))
}

// CreateFee godoc
// @ID           createFee
// @Summary      Charge an ad-hoc fee
// @Description  Adds a debt for the renter. The amount paid starts at zero and the due date defaults to today.
// @Tags         debts
// @Accept       json
// @Produce      json
// @Param        renterId path string           true "Renter ID" format(uuid)
// @Param        request  body CreateFeeRequest true "Fee"
// @Success      201 {object} APIResponse[billingapp.DebtResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /renters/{renterId}/fees [post]
func (h *DebtHandler) CreateFee(c *gin.Context) {
	renterID, err := parseUUIDParam(c, "renterId")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	var req CreateFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	fee, err := req.toFeeRequest()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	debt, err := h.ledger.CreateFee(c.Request.Context(), renterID, fee)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, debt)
}

func (r CreateFeeRequest) toFeeRequest() (billingapp.FeeRequest, error) {
	amount, err := parseAmount("amount_due", r.AmountDue)
	if err != nil {
		return billingapp.FeeRequest{}, err
	}
	due, err := parseDate("due_date", r.DueDate)
	if err != nil {
		return billingapp.FeeRequest{}, err
	}
	leaseID, err := parseOptionalUUID("lease_id", r.LeaseID)
	if err != nil {
		return billingapp.FeeRequest{}, err
	}
	propertyID, err := parseOptionalUUID("property_id", r.PropertyID)
	if err != nil {
		return billingapp.FeeRequest{}, err
	}
	renterIDs, err := parseUUIDs("renter_ids", r.RenterIDs)
	if err != nil {
		return billingapp.FeeRequest{}, err
	}

	return billingapp.FeeRequest{
		LeaseID:     leaseID,
		UnitID:      r.UnitID,
		PropertyID:  propertyID,
		RenterIDs:   renterIDs,
		Type:        r.Type,
		Description: r.Description,
		AmountDue:   amount,
		DueDate:     due,
	}, nil
}
