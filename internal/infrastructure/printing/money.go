package printing

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// MoneyFormatter formats amounts with the grouping and decimal separators
// of a locale
type MoneyFormatter struct {
	printer  *message.Printer
	currency string
}

// NewMoneyFormatter creates a formatter for a BCP 47 locale. Unparseable
// locales fall back to English.
func NewMoneyFormatter(locale, currency string) *MoneyFormatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &MoneyFormatter{
		printer:  message.NewPrinter(tag),
		currency: strings.ToUpper(strings.TrimSpace(currency)),
	}
}

// Amount formats with exactly two fraction digits, e.g. "1,234.50"
func (f *MoneyFormatter) Amount(d decimal.Decimal) string {
	return f.printer.Sprintf("%v", number.Decimal(d.Round(2).InexactFloat64(), number.Scale(2)))
}

// Money prefixes the amount with the currency code, e.g. "USD 1,234.50"
func (f *MoneyFormatter) Money(d decimal.Decimal) string {
	if f.currency == "" {
		return f.Amount(d)
	}
	return f.currency + " " + f.Amount(d)
}
