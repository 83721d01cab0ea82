package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/rentals/backend/internal/domain/billing"
	"go.uber.org/zap"
)

// ProviderRazorpay charges through Razorpay orders
const ProviderRazorpay = "razorpay"

// orderAPI is the part of the Razorpay client the gateway uses
type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayGateway creates one Razorpay order per charge. The idempotency key
// is sent as the order receipt so duplicates can be traced on the dashboard.
type RazorpayGateway struct {
	orders orderAPI
	logger *zap.Logger
	now    func() time.Time
}

// NewRazorpayGateway creates a gateway from API credentials
func NewRazorpayGateway(keyID, keySecret string, logger *zap.Logger) (*RazorpayGateway, error) {
	if keyID == "" || keySecret == "" {
		return nil, billing.ErrGatewayNotConfigured
	}
	client := razorpay.NewClient(keyID, keySecret)
	return &RazorpayGateway{orders: client.Order, logger: logger, now: time.Now}, nil
}

// Name identifies the provider
func (g *RazorpayGateway) Name() string {
	return ProviderRazorpay
}

// Charge creates the order. The client is synchronous, so the context is
// only checked before the call.
func (g *RazorpayGateway) Charge(ctx context.Context, req billing.CardChargeRequest) (*billing.CardChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	order, err := g.orders.Create(map[string]interface{}{
		"amount":   MinorUnits(req),
		"currency": strings.ToUpper(req.Currency),
		"receipt":  receipt(req.IdempotencyKey),
		"notes": map[string]interface{}{
			"renter_id":   req.RenterID.String(),
			"card":        req.Card.Descriptor(),
			"description": req.Description,
		},
	}, nil)
	if err != nil {
		return nil, classifyRazorpayError(err)
	}

	id, _ := order["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("razorpay returned an order without id: %w", billing.ErrGatewayUnavailable)
	}

	g.logger.Info("Razorpay order created",
		zap.String("order_id", id),
		zap.String("renter_id", req.RenterID.String()),
		zap.String("amount", req.Amount.StringFixed(billing.MoneyPlaces)))

	return &billing.CardChargeResult{Provider: ProviderRazorpay, Reference: id, ChargedAt: g.now().UTC()}, nil
}

// MinorUnits converts the amount to the smallest currency unit (cents, paise)
func MinorUnits(req billing.CardChargeRequest) int64 {
	return req.Amount.Shift(2).Round(0).IntPart()
}

// receipt fits the key into Razorpay's 40 character receipt limit
func receipt(key string) string {
	if len(key) > 40 {
		return key[:40]
	}
	return key
}

// classifyRazorpayError separates card problems, which are final, from
// everything else, which may succeed on retry
func classifyRazorpayError(err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"declined", "insufficient", "bad_request"} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("razorpay: %s: %w", err.Error(), billing.ErrCardDeclined)
		}
	}
	return fmt.Errorf("razorpay: %s: %w", err.Error(), billing.ErrGatewayUnavailable)
}

var _ billing.CardGateway = (*RazorpayGateway)(nil)
