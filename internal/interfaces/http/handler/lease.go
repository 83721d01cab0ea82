package handler

import (
	"github.com/gin-gonic/gin"
	billingapp "github.com/rentals/backend/internal/application/billing"
	"github.com/rentals/backend/internal/domain/shared"
)

// LeaseHandler handles lease lifecycle endpoints
type LeaseHandler struct {
	BaseHandler
	leases *billingapp.LeaseService
}

// NewLeaseHandler creates a new LeaseHandler
func NewLeaseHandler(leases *billingapp.LeaseService) *LeaseHandler {
	return &LeaseHandler{leases: leases}
}

// CreateLeaseRequest is the body of a new lease. Unit prices default to the
// standard Power and Water rates when omitted.
type CreateLeaseRequest struct {
	UnitID          string   `json:"unit_id" binding:"required,max=100" example:"6f1c.../2B"`
	RenterIDs       []string `json:"renter_ids" binding:"required,min=1,dive,uuid"`
	LeaseAmount     string   `json:"lease_amount" binding:"required" example:"1200.00"`
	StartDate       string   `json:"start_date" binding:"required,datetime=2006-01-02" example:"2026-11-01"`
	EndDate         string   `json:"end_date" binding:"required,datetime=2006-01-02" example:"2027-10-31"`
	LegalDocumentID string   `json:"legal_document_id" binding:"max=200"`
	PowerUnitPrice  string   `json:"power_unit_price" example:"0.12"`
	WaterUnitPrice  string   `json:"water_unit_price" example:"0.004"`
}

// Create godoc
// @ID           createLease
// @Summary      Create a lease
// @Description  The unit must exist; it becomes occupied.
// @Tags         leases
// @Accept       json
// @Produce      json
// @Param        request body CreateLeaseRequest true "Lease"
// @Success      201 {object} APIResponse[billingapp.LeaseResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /leases [post]
func (h *LeaseHandler) Create(c *gin.Context) {
	var req CreateLeaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	appReq, err := req.toCreateLeaseRequest()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	lease, err := h.leases.CreateLease(c.Request.Context(), appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, lease)
}

// Terminate godoc
// @ID           terminateLease
// @Summary      Terminate a lease
// @Description  Ends the lease today and marks its unit vacant from today.
// @Tags         leases
// @Produce      json
// @Param        id path string true "Lease ID" format(uuid)
// @Success      200 {object} APIResponse[billingapp.LeaseResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /leases/{id}/terminate [put]
func (h *LeaseHandler) Terminate(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	lease, err := h.leases.TerminateLease(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, lease)
}

// ActiveForUnit godoc
// @ID           getActiveLeaseForUnit
// @Summary      Active lease of a unit
// @Tags         leases
// @Produce      json
// @Param        unitId path string true "Unit ID (propertyId/unitNumber)"
// @Success      200 {object} APIResponse[billingapp.LeaseResponse]
// @Failure      404 {object} ErrorResponse
// @Router       /leases/by-unit/{unitId} [get]
func (h *LeaseHandler) ActiveForUnit(c *gin.Context) {
	unitID := wildcardParam(c, "unitId")
	if unitID == "" {
		h.HandleError(c, shared.NewInvalidInputError("unit ID is required"))
		return
	}

	lease, err := h.leases.ActiveLeaseForUnit(c.Request.Context(), unitID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, lease)
}

func (r CreateLeaseRequest) toCreateLeaseRequest() (billingapp.CreateLeaseRequest, error) {
	var out billingapp.CreateLeaseRequest
	var err error

	if out.RenterIDs, err = parseUUIDs("renter_ids", r.RenterIDs); err != nil {
		return out, err
	}
	if out.LeaseAmount, err = parseAmount("lease_amount", r.LeaseAmount); err != nil {
		return out, err
	}
	if out.StartDate, err = parseDate("start_date", r.StartDate); err != nil {
		return out, err
	}
	if out.EndDate, err = parseDate("end_date", r.EndDate); err != nil {
		return out, err
	}
	if out.PowerUnitPrice, err = parseAmount("power_unit_price", r.PowerUnitPrice); err != nil {
		return out, err
	}
	if out.WaterUnitPrice, err = parseAmount("water_unit_price", r.WaterUnitPrice); err != nil {
		return out, err
	}
	out.UnitID = r.UnitID
	out.LegalDocumentID = r.LegalDocumentID
	return out, nil
}
