package csvimport

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unitA = "7f1c2f4e-1d8a-4a55-9a53-2f7d0c6b9d11/2B"

func TestMeterRowReader_Read(t *testing.T) {
	t.Run("parses valid rows and skips the header", func(t *testing.T) {
		input := "unitId,timestamp,usage\n" +
			unitA + ",2026-10-01T08:00:00Z,1.5\n" +
			unitA + ",2026-10-01 09:15:00,2\n" +
			unitA + ",2026-10-02,0\n"

		rows, errs, err := NewMeterRowReader(10).Read(strings.NewReader(input))
		require.NoError(t, err)
		assert.False(t, errs.HasErrors())
		require.Len(t, rows, 3)

		assert.Equal(t, 2, rows[0].Line)
		assert.Equal(t, unitA, rows[0].UnitID)
		assert.Equal(t, time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC), rows[0].Timestamp)
		assert.Equal(t, "1.5", rows[0].Usage.String())
		assert.Equal(t, time.Date(2026, 10, 1, 9, 15, 0, 0, time.UTC), rows[1].Timestamp)
		assert.True(t, rows[2].Usage.IsZero())
	})

	t.Run("collects per-row errors and keeps good rows", func(t *testing.T) {
		input := "unitId,timestamp,usage\n" +
			unitA + ",2026-10-01T08:00:00Z\n" +
			unitA + ",yesterday,1\n" +
			unitA + ",2026-10-01T08:00:00Z,lots\n" +
			unitA + ",2026-10-01T08:00:00Z,-3\n" +
			",2026-10-01T08:00:00Z,1\n" +
			unitA + ",2026-10-01T10:00:00+02:00,4\n"

		rows, errs, err := NewMeterRowReader(10).Read(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 7, rows[0].Line)
		assert.Equal(t, time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC), rows[0].Timestamp)

		require.Equal(t, 5, errs.TotalCount())
		got := errs.Errors()
		assert.Equal(t, RowError{Row: 2, Code: ErrCodeImportMalformedRow,
			Message: "expected 3 fields (unitId,timestamp,usage), got 2",
			Value:   unitA + ",2026-10-01T08:00:00Z"}, got[0])
		assert.Equal(t, 3, got[1].Row)
		assert.Equal(t, ColumnTimestamp, got[1].Column)
		assert.Equal(t, ErrCodeImportInvalidFormat, got[1].Code)
		assert.Equal(t, 4, got[2].Row)
		assert.Equal(t, ColumnUsage, got[2].Column)
		assert.Equal(t, ErrCodeImportInvalidType, got[2].Code)
		assert.Equal(t, ErrCodeImportInvalidRange, got[3].Code)
		assert.Equal(t, ColumnUnitID, got[4].Column)
		assert.Equal(t, ErrCodeImportRequiredField, got[4].Code)
	})

	t.Run("ignores blank lines and strips BOM", func(t *testing.T) {
		input := "\xEF\xBB\xBFunitId,timestamp,usage\n\n" + unitA + ",2026-10-01,3\n"

		rows, errs, err := NewMeterRowReader(10).Read(strings.NewReader(input))
		require.NoError(t, err)
		assert.False(t, errs.HasErrors())
		assert.Len(t, rows, 1)
	})

	t.Run("rejects empty and non UTF-8 files", func(t *testing.T) {
		_, _, err := NewMeterRowReader(10).Read(strings.NewReader("  \n"))
		assert.ErrorIs(t, err, ErrEmptyFile)

		_, _, err = NewMeterRowReader(10).Read(strings.NewReader("unitId,timestamp,usage\n\xff\xfe,1,2\n"))
		assert.ErrorIs(t, err, ErrInvalidEncoding)
	})

	t.Run("truncates collected errors at the limit", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("unitId,timestamp,usage\n")
		for range 5 {
			b.WriteString(unitA + ",bad,1\n")
		}

		_, errs, err := NewMeterRowReader(2).Read(strings.NewReader(b.String()))
		require.NoError(t, err)
		assert.Len(t, errs.Errors(), 2)
		assert.Equal(t, 5, errs.TotalCount())
		assert.True(t, errs.IsTruncated())
	})
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2026-10-01T08:30:00Z", time.Date(2026, 10, 1, 8, 30, 0, 0, time.UTC), true},
		{"2026-10-01T08:30:00.5Z", time.Date(2026, 10, 1, 8, 30, 0, 500000000, time.UTC), true},
		{"2026-10-01T08:30:00", time.Date(2026, 10, 1, 8, 30, 0, 0, time.UTC), true},
		{"2026-10-01 08:30", time.Date(2026, 10, 1, 8, 30, 0, 0, time.UTC), true},
		{"2026-10-01", time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), true},
		{"10/01/2026", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got))
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}
