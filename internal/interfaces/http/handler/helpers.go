package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	billingapp "github.com/rentals/backend/internal/application/billing"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// parseUUIDParam reads a UUID path parameter
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, shared.NewInvalidInputError("Invalid %s %q", name, raw)
	}
	return id, nil
}

// parseUUIDs parses a list of UUID strings, naming the field on failure
func parseUUIDs(field string, raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, shared.NewInvalidInputError("Invalid %s %q", field, s)
		}
		out = append(out, id)
	}
	return out, nil
}

// parseOptionalUUID returns nil for an empty string
func parseOptionalUUID(field, raw string) (*uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, shared.NewInvalidInputError("Invalid %s %q", field, raw)
	}
	return &id, nil
}

// parseDate parses a YYYY-MM-DD calendar date. An empty string yields the
// zero time.
func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(billingapp.DateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, shared.NewInvalidInputError("Invalid %s %q: expected YYYY-MM-DD", field, raw)
	}
	return t, nil
}

// parseAmount parses a decimal amount sent as a string. An empty string
// yields zero.
func parseAmount(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, shared.NewDomainError("INVALID_AMOUNT", "Invalid "+field+" \""+raw+"\"")
	}
	return d, nil
}

// parseBounds parses "minLat,minLng,maxLat,maxLng". An empty string means no
// bounding box.
func parseBounds(raw string) (*billing.GeoBounds, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, shared.NewInvalidInputError("bounds must be minLat,minLng,maxLat,maxLng")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, shared.NewInvalidInputError("Invalid bounds coordinate %q", p)
		}
		vals[i] = v
	}
	return &billing.GeoBounds{MinLat: vals[0], MinLng: vals[1], MaxLat: vals[2], MaxLng: vals[3]}, nil
}

// parseLimit reads an optional positive integer query parameter
func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, shared.NewInvalidInputError("limit must be a positive integer")
	}
	return n, nil
}

// wildcardParam reads a catch-all parameter such as *unitId. Unit IDs
// contain a slash ("propertyId/unitNumber"), so they are routed as wildcards
// and arrive with a leading slash.
func wildcardParam(c *gin.Context, name string) string {
	return strings.Trim(c.Param(name), "/")
}
