// Package printing renders payment receipts as PDF documents.
//
// Amounts are formatted for the configured locale through golang.org/x/text
// and laid out with gofpdf using the core fonts, so no font files or external
// binaries are needed at runtime.
//
//	renderer := printing.NewReceiptRenderer(printing.Config{Locale: "en-US"})
//	pdf, err := renderer.RenderReceipt(ctx, doc)
package printing
