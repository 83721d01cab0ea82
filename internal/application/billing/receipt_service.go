package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReceiptLine is one allocation as printed on a receipt
type ReceiptLine struct {
	DebtItemID  uuid.UUID
	Description string
	DebtType    string
	DueDate     time.Time
	Applied     decimal.Decimal
	Outstanding decimal.Decimal
}

// ReceiptDocument is everything a receipt renderer needs
type ReceiptDocument struct {
	PaymentID   uuid.UUID
	PaymentDate time.Time
	IssuedAt    time.Time
	RenterName  string
	Currency    string
	Total       decimal.Decimal
	Methods     []billing.PaymentMethod
	Lines       []ReceiptLine
}

// ReceiptRenderer turns a receipt document into a printable file
type ReceiptRenderer interface {
	RenderReceipt(ctx context.Context, doc ReceiptDocument) ([]byte, error)
}

// Receipt is a rendered receipt ready to be served
type Receipt struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ReceiptService renders receipts for stored payments
type ReceiptService struct {
	paymentRepo billing.PaymentRepository
	debtRepo    billing.DebtItemRepository
	renterRepo  billing.RenterRepository
	renderer    ReceiptRenderer
	clock       shared.Clock
	logger      *zap.Logger
	currency    string
}

// NewReceiptService creates a new ReceiptService
func NewReceiptService(
	paymentRepo billing.PaymentRepository,
	debtRepo billing.DebtItemRepository,
	renterRepo billing.RenterRepository,
	renderer ReceiptRenderer,
	clock shared.Clock,
	logger *zap.Logger,
	currency string,
) *ReceiptService {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &ReceiptService{
		paymentRepo: paymentRepo,
		debtRepo:    debtRepo,
		renterRepo:  renterRepo,
		renderer:    renderer,
		clock:       clock,
		logger:      logger,
		currency:    currency,
	}
}

// PaymentReceipt renders the receipt of a stored payment. Lines show the
// debts' current outstanding balance, not the balance at payment time.
func (s *ReceiptService) PaymentReceipt(ctx context.Context, paymentID uuid.UUID) (*Receipt, error) {
	doc, err := s.BuildDocument(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	data, err := s.renderer.RenderReceipt(ctx, *doc)
	if err != nil {
		return nil, fmt.Errorf("failed to render receipt: %w", err)
	}

	s.logger.Debug("Rendered payment receipt",
		zap.String("payment_id", paymentID.String()),
		zap.Int("bytes", len(data)))

	return &Receipt{
		Filename:    fmt.Sprintf("receipt-%s.pdf", paymentID),
		ContentType: "application/pdf",
		Data:        data,
	}, nil
}

// BuildDocument assembles the receipt content for a payment
func (s *ReceiptService) BuildDocument(ctx context.Context, paymentID uuid.UUID) (*ReceiptDocument, error) {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.NewNotFoundError("Payment %s not found", paymentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}

	debts, err := s.debtRepo.FindByIDs(ctx, payment.DebtItemIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to load debt items: %w", err)
	}
	byID := make(map[uuid.UUID]billing.DebtItem, len(debts))
	for _, d := range debts {
		byID[d.ID] = d
	}

	doc := &ReceiptDocument{
		PaymentID:   payment.ID,
		PaymentDate: payment.PaymentDate,
		IssuedAt:    s.clock.Now(),
		Currency:    s.currency,
		Total:       payment.TotalAmountReceived,
		Methods:     payment.PaymentMethods,
		Lines:       make([]ReceiptLine, 0, len(payment.Allocations)),
	}

	var payer uuid.UUID
	for _, a := range payment.Allocations {
		line := ReceiptLine{DebtItemID: a.DebtItemID, Applied: a.AmountApplied}
		if d, ok := byID[a.DebtItemID]; ok {
			line.Description = d.Description
			line.DebtType = d.Type
			line.DueDate = d.DueDate
			line.Outstanding = d.AmountOutstanding()
			if payer == uuid.Nil {
				payer = d.RenterID
			}
		}
		if a.RenterID != nil && payer == uuid.Nil {
			payer = *a.RenterID
		}
		doc.Lines = append(doc.Lines, line)
	}

	if payer != uuid.Nil {
		renter, err := s.renterRepo.FindByID(ctx, payer)
		switch {
		case err == nil:
			doc.RenterName = renter.FullName()
		case errors.Is(err, shared.ErrNotFound):
			s.logger.Warn("Receipt renter not found", zap.String("renter_id", payer.String()))
		default:
			return nil, fmt.Errorf("failed to load renter: %w", err)
		}
	}

	return doc, nil
}
