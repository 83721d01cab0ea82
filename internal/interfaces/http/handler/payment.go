package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	billingapp "github.com/rentals/backend/internal/application/billing"
	"github.com/rentals/backend/internal/domain/billing"
)

// PaymentHandler handles payment application and receipts
type PaymentHandler struct {
	BaseHandler
	allocator *billingapp.PaymentAllocator
	receipts  *billingapp.ReceiptService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(allocator *billingapp.PaymentAllocator, receipts *billingapp.ReceiptService) *PaymentHandler {
	return &PaymentHandler{allocator: allocator, receipts: receipts}
}

// PaymentMethodInput is one way the money was received
type PaymentMethodInput struct {
	Method  string `json:"method" binding:"required,max=50" example:"Check"`
	Amount  string `json:"amount" binding:"required" example:"600.00"`
	Details string `json:"details" binding:"max=200" example:"#1042"`
}

// AllocationInput applies part of a payment to one debt item
type AllocationInput struct {
	DebtItemID    string `json:"debt_item_id" binding:"required,uuid"`
	AmountApplied string `json:"amount_applied" binding:"required" example:"600.00"`
	RenterID      string `json:"renter_id" binding:"omitempty,uuid"`
}

// ApplyPaymentRequest is the body of a payment. An empty total is taken
// from the allocations.
type ApplyPaymentRequest struct {
	PaymentDate         string               `json:"payment_date" binding:"omitempty,datetime=2006-01-02" example:"2026-10-15"`
	TotalAmountReceived string               `json:"total_amount_received" example:"600.00"`
	Methods             []PaymentMethodInput `json:"methods" binding:"omitempty,dive"`
	Allocations         []AllocationInput    `json:"allocations" binding:"required,min=1,dive"`
}

// Apply godoc
// @ID           applyPayment
// @Summary      Apply a payment
// @Description  Stores the payment and adds each allocation to its debt's paid amount, all in one transaction. A missing debt fails the whole payment.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        request body ApplyPaymentRequest true "Payment"
// @Success      201 {object} APIResponse[billingapp.PaymentResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /payments [post]
func (h *PaymentHandler) Apply(c *gin.Context) {
	var req ApplyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	appReq, err := req.toApplyPaymentRequest()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	payment, err := h.allocator.ApplyPayment(c.Request.Context(), appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, payment)
}

// Get godoc
// @ID           getPayment
// @Summary      Get a payment
// @Tags         payments
// @Produce      json
// @Param        id path string true "Payment ID" format(uuid)
// @Success      200 {object} APIResponse[billingapp.PaymentResponse]
// @Failure      404 {object} ErrorResponse
// @Router       /payments/{id} [get]
func (h *PaymentHandler) Get(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	payment, err := h.allocator.GetPayment(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, payment)
}

// Receipt godoc
// @ID           getPaymentReceipt
// @Summary      Download a payment receipt
// @Tags         payments
// @Produce      application/pdf
// @Param        id path string true "Payment ID" format(uuid)
// @Success      200 {file} binary
// @Failure      404 {object} ErrorResponse
// @Router       /payments/{id}/receipt [get]
func (h *PaymentHandler) Receipt(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	receipt, err := h.receipts.PaymentReceipt(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", receipt.Filename))
	c.Data(http.StatusOK, receipt.ContentType, receipt.Data)
}

func (r ApplyPaymentRequest) toApplyPaymentRequest() (billingapp.ApplyPaymentRequest, error) {
	date, err := parseDate("payment_date", r.PaymentDate)
	if err != nil {
		return billingapp.ApplyPaymentRequest{}, err
	}
	total, err := parseAmount("total_amount_received", r.TotalAmountReceived)
	if err != nil {
		return billingapp.ApplyPaymentRequest{}, err
	}

	methods := make([]billing.PaymentMethod, 0, len(r.Methods))
	for _, m := range r.Methods {
		amount, err := parseAmount("method amount", m.Amount)
		if err != nil {
			return billingapp.ApplyPaymentRequest{}, err
		}
		methods = append(methods, billing.PaymentMethod{Method: m.Method, Amount: amount, Details: m.Details})
	}

	allocations := make([]billing.PaymentAllocation, 0, len(r.Allocations))
	for _, a := range r.Allocations {
		ids, err := parseUUIDs("debt_item_id", []string{a.DebtItemID})
		if err != nil {
			return billingapp.ApplyPaymentRequest{}, err
		}
		amount, err := parseAmount("amount_applied", a.AmountApplied)
		if err != nil {
			return billingapp.ApplyPaymentRequest{}, err
		}
		renterID, err := parseOptionalUUID("renter_id", a.RenterID)
		if err != nil {
			return billingapp.ApplyPaymentRequest{}, err
		}
		allocations = append(allocations, billing.PaymentAllocation{
			DebtItemID:    ids[0],
			AmountApplied: amount,
			RenterID:      renterID,
		})
	}

	return billingapp.ApplyPaymentRequest{
		PaymentDate: date,
		TotalAmount: total,
		Methods:     methods,
		Allocations: allocations,
	}, nil
}

// CardChargeHandler charges renters' stored cards
type CardChargeHandler struct {
	BaseHandler
	cards *billingapp.CardChargeService
}

// NewCardChargeHandler creates a new CardChargeHandler
func NewCardChargeHandler(cards *billingapp.CardChargeService) *CardChargeHandler {
	return &CardChargeHandler{cards: cards}
}

// ChargeCardRequest selects the debts to pay and the stored card to charge
type ChargeCardRequest struct {
	DebtItemIDs []string `json:"debt_item_ids" binding:"required,min=1,dive,uuid"`
	CardLast4   string   `json:"card_last4" binding:"required,len=4,numeric" example:"4242"`
	MethodLabel string   `json:"method_label" binding:"max=50" example:"Rent Portal"`
}

// Charge godoc
// @ID           chargeStoredCard
// @Summary      Charge a stored card
// @Description  Charges the outstanding balance of the selected debts to one of the renter's stored cards and records the payment. Requires an agent token for the renter.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        renterId path string            true "Renter ID" format(uuid)
// @Param        request  body ChargeCardRequest true "Charge"
// @Success      201 {object} APIResponse[billingapp.ChargeCardResult]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      402 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /renters/{renterId}/card-charges [post]
func (h *CardChargeHandler) Charge(c *gin.Context) {
	renterID, err := parseUUIDParam(c, "renterId")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	var req ChargeCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	debtIDs, err := parseUUIDs("debt_item_ids", req.DebtItemIDs)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.cards.ChargeStoredCard(c.Request.Context(), billingapp.ChargeCardRequest{
		RenterID:    renterID,
		DebtItemIDs: debtIDs,
		CardLast4:   req.CardLast4,
		MethodLabel: req.MethodLabel,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, result)
}
