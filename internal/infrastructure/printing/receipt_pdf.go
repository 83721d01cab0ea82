package printing

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf/v2"
	billingapp "github.com/rentals/backend/internal/application/billing"
)

// Config configures the receipt renderer
type Config struct {
	// Locale for amount formatting. Default: "en-US"
	Locale string
	// Currency code printed before amounts
	Currency string
	// Title printed at the top of every receipt. Default: "Payment Receipt"
	Title string
	// Compress the content streams. Tests turn this off to inspect the text.
	Compress bool
}

// ReceiptRenderer lays out payment receipts on A4 pages
type ReceiptRenderer struct {
	config Config
	money  *MoneyFormatter
}

// NewReceiptRenderer creates a new ReceiptRenderer
func NewReceiptRenderer(cfg Config) *ReceiptRenderer {
	if cfg.Locale == "" {
		cfg.Locale = "en-US"
	}
	if cfg.Title == "" {
		cfg.Title = "Payment Receipt"
	}
	return &ReceiptRenderer{
		config: cfg,
		money:  NewMoneyFormatter(cfg.Locale, cfg.Currency),
	}
}

const (
	pageWidth = 190.0
	rowHeight = 6.0
)

// RenderReceipt renders the document as a PDF
func (r *ReceiptRenderer) RenderReceipt(ctx context.Context, doc billingapp.ReceiptDocument) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewRenderError(ErrCodeCancelled, "receipt rendering cancelled", err)
	}

	money := r.money
	if doc.Currency != "" && !strings.EqualFold(doc.Currency, r.config.Currency) {
		money = NewMoneyFormatter(r.config.Locale, doc.Currency)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.config.Compress)
	pdf.SetTitle(r.config.Title, true)
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(pageWidth, 10, tr(r.config.Title), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(pageWidth, rowHeight, fmt.Sprintf("Issued: %s", doc.IssuedAt.UTC().Format("02-Jan-2006 15:04 MST")), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(pageWidth, 8, "Payment", "1", 1, "L", true, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(95, 7, "Receipt #: "+doc.PaymentID.String(), "LB", 0, "L", false, 0, "")
	pdf.CellFormat(95, 7, "Date: "+doc.PaymentDate.Format("2006-01-02"), "RB", 1, "L", false, 0, "")
	renter := doc.RenterName
	if renter == "" {
		renter = "-"
	}
	pdf.CellFormat(pageWidth, 7, tr("Received from: "+renter), "LRB", 1, "L", false, 0, "")
	pdf.Ln(4)

	if len(doc.Methods) > 0 {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(pageWidth, 8, "Payment Methods", "1", 1, "L", true, 0, "")
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(200, 200, 200)
		pdf.CellFormat(50, 7, "Method", "1", 0, "C", true, 0, "")
		pdf.CellFormat(90, 7, "Details", "1", 0, "C", true, 0, "")
		pdf.CellFormat(50, 7, "Amount", "1", 1, "C", true, 0, "")
		pdf.SetFont("Arial", "", 10)
		for _, m := range doc.Methods {
			pdf.CellFormat(50, rowHeight, tr(m.Method), "1", 0, "L", false, 0, "")
			pdf.CellFormat(90, rowHeight, tr(truncate(m.Details, 48)), "1", 0, "L", false, 0, "")
			pdf.CellFormat(50, rowHeight, money.Money(m.Amount), "1", 1, "R", false, 0, "")
		}
		pdf.Ln(4)
		pdf.SetFillColor(240, 240, 240)
	}

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(pageWidth, 8, "Applied To", "1", 1, "L", true, 0, "")
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(200, 200, 200)
	pdf.CellFormat(80, 7, "Description", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 7, "Due", "1", 0, "C", true, 0, "")
	pdf.CellFormat(40, 7, "Applied", "1", 0, "C", true, 0, "")
	pdf.CellFormat(40, 7, "Balance", "1", 1, "C", true, 0, "")
	pdf.SetFont("Arial", "", 10)
	for _, l := range doc.Lines {
		desc := l.Description
		if desc == "" {
			desc = l.DebtItemID.String()
		}
		due := "-"
		if !l.DueDate.IsZero() {
			due = l.DueDate.Format("2006-01-02")
		}
		pdf.CellFormat(80, rowHeight, tr(truncate(desc, 42)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, rowHeight, due, "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, rowHeight, money.Money(l.Applied), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, rowHeight, money.Money(l.Outstanding), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFillColor(200, 255, 200)
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(pageWidth, 10, "Total Received: "+money.Money(doc.Total), "1", 1, "C", true, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, NewRenderError(ErrCodeRenderFailed, "failed to render receipt", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

var _ billingapp.ReceiptRenderer = (*ReceiptRenderer)(nil)
