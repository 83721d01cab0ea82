package handler

import (
	"github.com/gin-gonic/gin"
	billingapp "github.com/rentals/backend/internal/application/billing"
)

// ChargeRunHandler triggers charge generation on demand
type ChargeRunHandler struct {
	BaseHandler
	generator *billingapp.ChargeGenerator
}

// NewChargeRunHandler creates a new ChargeRunHandler
func NewChargeRunHandler(generator *billingapp.ChargeGenerator) *ChargeRunHandler {
	return &ChargeRunHandler{generator: generator}
}

// ChargeRunRequest selects the day a charge run is evaluated for
type ChargeRunRequest struct {
	AsOf string `json:"as_of" form:"as_of" binding:"omitempty,datetime=2006-01-02" example:"2026-10-25"`
}

// Run godoc
// @ID           runCharges
// @Summary      Run charge generation
// @Description  Creates next month's rent and this month's utility charges for every lease active on as_of (default today). Repeating a run for the same month creates nothing new.
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        as_of query string false "Evaluation date (YYYY-MM-DD)"
// @Success      200 {object} APIResponse[billingapp.ChargeRunResult]
// @Failure      400 {object} ErrorResponse
// @Router       /billing/charge-runs [post]
func (h *ChargeRunHandler) Run(c *gin.Context) {
	var req ChargeRunRequest
	bind := c.ShouldBind
	if c.Request.ContentLength <= 0 {
		bind = c.ShouldBindQuery
	}
	if err := bind(&req); err != nil {
		h.BindError(c, err)
		return
	}

	asOf, err := parseDate("as_of", req.AsOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.generator.GenerateCharges(c.Request.Context(), asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}
