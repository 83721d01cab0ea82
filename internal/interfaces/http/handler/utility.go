package handler

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingapp "github.com/rentals/backend/internal/application/billing"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/rentals/backend/internal/interfaces/http/dto"
)

// maxReadingFileSize bounds a multipart CSV upload
const maxReadingFileSize = 10 << 20

// UtilityHandler handles meter reading ingestion and usage queries
type UtilityHandler struct {
	BaseHandler
	readings *billingapp.MeterReadingService
}

// NewUtilityHandler creates a new UtilityHandler
func NewUtilityHandler(readings *billingapp.MeterReadingService) *UtilityHandler {
	return &UtilityHandler{readings: readings}
}

// UploadReadings godoc
// @ID           uploadReadings
// @Summary      Upload meter readings for a unit
// @Description  Appends hourly samples of one utility kind. Invalid entries are reported and skipped.
// @Tags         utilities
// @Accept       json
// @Produce      json
// @Param        kind    path string                           true "Power or Water"
// @Param        request body billingapp.UploadReadingsRequest true "Readings"
// @Success      200 {object} APIResponse[billingapp.UploadResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /utilities/readings/{kind} [post]
func (h *UtilityHandler) UploadReadings(c *gin.Context) {
	kind, ok := h.kindParam(c)
	if !ok {
		return
	}

	var req billingapp.UploadReadingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.readings.UploadReadings(c.Request.Context(), kind, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// ImportCSV godoc
// @ID           importReadingsCSV
// @Summary      Import meter readings from CSV
// @Description  Rows are "unitId,timestamp,usage". Each row is handled on its own: bad rows are reported and the rest are stored. Send the file as multipart field "file" or as a text/csv body.
// @Tags         utilities
// @Accept       multipart/form-data
// @Accept       text/csv
// @Produce      json
// @Param        kind path     string true  "Power or Water"
// @Param        file formData file   false "CSV file"
// @Success      200 {object} APIResponse[billingapp.UploadResult]
// @Failure      400 {object} ErrorResponse
// @Failure      413 {object} ErrorResponse
// @Router       /utilities/readings/{kind}/csv [post]
func (h *UtilityHandler) ImportCSV(c *gin.Context) {
	kind, ok := h.kindParam(c)
	if !ok {
		return
	}

	var (
		body     io.Reader = c.Request.Body
		filename           = "upload.csv"
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			h.BadRequest(c, "file is required")
			return
		}
		defer func(f multipart.File) { _ = f.Close() }(file)

		if header.Size > maxReadingFileSize {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeValidation, "file exceeds maximum size of 10MB")
			return
		}
		body, filename = file, header.Filename
	}

	result, err := h.readings.ImportCSV(c.Request.Context(), kind, filename, body)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// UnitUsage godoc
// @ID           getUnitUsage
// @Summary      Hourly usage of a unit
// @Description  Power and Water usage summed per hour between from and to (inclusive dates). Defaults to the last three months.
// @Tags         utilities
// @Produce      json
// @Param        unitId path  string true  "Unit ID (propertyId/unitNumber)"
// @Param        from   query string false "First day (YYYY-MM-DD)"
// @Param        to     query string false "Last day (YYYY-MM-DD)"
// @Success      200 {object} APIResponse[billingapp.UsageSeriesResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /utilities/units/{unitId} [get]
func (h *UtilityHandler) UnitUsage(c *gin.Context) {
	unitID := wildcardParam(c, "unitId")
	if unitID == "" {
		h.HandleError(c, shared.NewInvalidInputError("unit ID is required"))
		return
	}
	from, err := parseDate("from", c.Query("from"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	to, err := parseDate("to", c.Query("to"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	usage, err := h.readings.UnitUsage(c.Request.Context(), unitID, from, to)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, usage)
}

func (h *UtilityHandler) kindParam(c *gin.Context) (billing.UtilityKind, bool) {
	kind, err := billing.ParseUtilityKind(c.Param("kind"))
	if err != nil {
		h.HandleError(c, shared.NewDomainError("INVALID_UTILITY_KIND", "kind must be Power or Water"))
		return "", false
	}
	return kind, true
}
