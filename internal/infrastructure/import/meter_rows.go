package csvimport

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Meter upload columns, by position. The header row is skipped without
// checking its names.
const (
	ColumnUnitID    = "unitId"
	ColumnTimestamp = "timestamp"
	ColumnUsage     = "usage"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// MeterRow is a syntactically valid meter upload row
type MeterRow struct {
	Line      int
	UnitID    string
	Timestamp time.Time
	Usage     decimal.Decimal
}

type meterRowInput struct {
	UnitID    string `csv:"unitId" validate:"required,max=120"`
	Timestamp string `csv:"timestamp" validate:"required"`
	Usage     string `csv:"usage" validate:"required,numeric"`
}

// MeterRowReader turns CSV rows into meter rows, collecting per-row errors
type MeterRowReader struct {
	validate *validator.Validate
	maxErrs  int
}

// NewMeterRowReader creates a reader that keeps at most maxErrors row errors
func NewMeterRowReader(maxErrors int) *MeterRowReader {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("csv")
	})
	return &MeterRowReader{validate: v, maxErrs: maxErrors}
}

// Read parses r. File-level problems (empty, bad encoding, no header) are
// returned as an error; row problems are collected and the row is skipped.
func (m *MeterRowReader) Read(r io.Reader) ([]MeterRow, *ErrorCollection, error) {
	parser, err := NewCSVParser(r)
	if err != nil {
		return nil, nil, err
	}
	if err := parser.ParseHeader(); err != nil {
		return nil, nil, err
	}

	errs := NewErrorCollection(m.maxErrs)
	rows := make([]MeterRow, 0)
	for {
		row, err := parser.ReadRow()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			errs.Add(RowError{Row: parser.CurrentRow(), Code: ErrCodeImportMalformedRow, Message: err.Error()})
			continue
		}
		if row.IsEmpty() {
			continue
		}
		if mr, ok := m.parseRow(row, errs); ok {
			rows = append(rows, mr)
		}
	}
	return rows, errs, nil
}

func (m *MeterRowReader) parseRow(row *Row, errs *ErrorCollection) (MeterRow, bool) {
	if len(row.Fields) < 3 {
		errs.Add(RowError{
			Row:     row.LineNumber,
			Code:    ErrCodeImportMalformedRow,
			Message: fmt.Sprintf("expected 3 fields (%s,%s,%s), got %d", ColumnUnitID, ColumnTimestamp, ColumnUsage, len(row.Fields)),
			Value:   strings.Join(row.Fields, ","),
		})
		return MeterRow{}, false
	}

	in := meterRowInput{UnitID: row.Field(0), Timestamp: row.Field(1), Usage: row.Field(2)}
	if err := m.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			errs.Add(RowError{Row: row.LineNumber, Code: ErrCodeImportMalformedRow, Message: err.Error()})
			return MeterRow{}, false
		}
		for _, fe := range verrs {
			errs.Add(fieldError(row.LineNumber, fe))
		}
		return MeterRow{}, false
	}

	ts, err := ParseTimestamp(in.Timestamp)
	if err != nil {
		errs.Add(RowError{
			Row: row.LineNumber, Column: ColumnTimestamp, Code: ErrCodeImportInvalidFormat,
			Message: "invalid timestamp, expected RFC 3339 or YYYY-MM-DD[ HH:MM[:SS]]", Value: in.Timestamp,
		})
		return MeterRow{}, false
	}

	usage, err := decimal.NewFromString(in.Usage)
	if err != nil {
		errs.Add(RowError{Row: row.LineNumber, Column: ColumnUsage, Code: ErrCodeImportInvalidType, Message: "expected decimal", Value: in.Usage})
		return MeterRow{}, false
	}
	if usage.IsNegative() {
		errs.Add(RowError{Row: row.LineNumber, Column: ColumnUsage, Code: ErrCodeImportInvalidRange, Message: "usage cannot be negative", Value: in.Usage})
		return MeterRow{}, false
	}

	return MeterRow{Line: row.LineNumber, UnitID: in.UnitID, Timestamp: ts, Usage: usage}, true
}

func fieldError(line int, fe validator.FieldError) RowError {
	value := fmt.Sprint(fe.Value())
	switch fe.Tag() {
	case "required":
		return RowError{Row: line, Column: fe.Field(), Code: ErrCodeImportRequiredField, Message: fmt.Sprintf("field '%s' is required", fe.Field())}
	case "numeric":
		return RowError{Row: line, Column: fe.Field(), Code: ErrCodeImportInvalidType, Message: "expected decimal", Value: value}
	case "max":
		return RowError{Row: line, Column: fe.Field(), Code: ErrCodeImportInvalidLength, Message: "length must be at most " + fe.Param(), Value: value}
	default:
		return RowError{Row: line, Column: fe.Field(), Code: ErrCodeImportInvalidFormat, Message: fe.Error(), Value: value}
	}
}

// ParseTimestamp accepts RFC 3339 or a date with optional time. Values
// without a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
