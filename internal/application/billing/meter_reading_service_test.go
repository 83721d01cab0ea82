package billing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	csvimport "github.com/rentals/backend/internal/infrastructure/import"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockArchiver is a mock implementation of UploadArchiver
type mockArchiver struct {
	mock.Mock
}

func (m *mockArchiver) Archive(ctx context.Context, kind billing.UtilityKind, filename string, data []byte) (string, error) {
	args := m.Called(ctx, kind, filename, data)
	return args.String(0), args.Error(1)
}

func newTestMeterService(f *fixture) *MeterReadingService {
	return NewMeterReadingService(memUnits{f.db}, memReadings{f.db}, shared.FixedClock{At: testNow}, zap.NewNop())
}

func TestMeterReadingService_UploadReadings(t *testing.T) {
	t.Run("stores valid entries for an existing unit", func(t *testing.T) {
		f := newFixture(t)
		svc := newTestMeterService(f)

		result, err := svc.UploadReadings(context.Background(), billing.UtilityPower, UploadReadingsRequest{
			UnitID: f.unit.ID,
			Entries: []ReadingEntry{
				{Timestamp: time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC), Usage: dec("1.25"), Tag: "meter-a"},
				{Timestamp: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC), Usage: dec("-2")},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.RecordsProcessed)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, 2, result.Errors[0].Row)
		require.Len(t, f.db.readings, 1)
		assert.Equal(t, "meter-a", f.db.readings[0].Tag)
	})

	t.Run("unknown unit is not found", func(t *testing.T) {
		f := newFixture(t)
		svc := newTestMeterService(f)

		_, err := svc.UploadReadings(context.Background(), billing.UtilityWater, UploadReadingsRequest{
			UnitID:  "nope/1",
			Entries: []ReadingEntry{{Timestamp: testNow, Usage: dec("1")}},
		})
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.Empty(t, f.db.readings)
	})
}

func TestMeterReadingService_ImportCSV(t *testing.T) {
	t.Run("stores good rows and reports bad ones", func(t *testing.T) {
		f := newFixture(t)
		svc := newTestMeterService(f)
		archiver := &mockArchiver{}
		archiver.On("Archive", mock.Anything, billing.UtilityPower, "oct.csv", mock.Anything).
			Return("meter-uploads/power/oct.csv", nil).Once()
		svc.SetArchiver(archiver)

		input := "unitId,timestamp,usage\n" +
			f.unit.ID + ",2026-10-01T08:00:00Z,2.5\n" +
			f.unit.ID + ",2026-10-01T09:00:00Z\n" +
			"ghost/9,2026-10-01T09:00:00Z,1\n" +
			f.unit.ID + ",2026-10-01T10:00:00Z,3\n"

		result, err := svc.ImportCSV(context.Background(), billing.UtilityPower, "oct.csv", strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, 2, result.RecordsProcessed)
		assert.Equal(t, 2, result.TotalErrors)
		assert.Equal(t, "meter-uploads/power/oct.csv", result.ArchiveKey)

		rows := map[int]string{}
		for _, e := range result.Errors {
			rows[e.Row] = e.Code
		}
		assert.Equal(t, csvimport.ErrCodeImportMalformedRow, rows[3])
		assert.Equal(t, csvimport.ErrCodeImportReferenceNotFound, rows[4])

		sum, err := memReadings{f.db}.SumReadings(context.Background(), f.unit.ID, billing.UtilityPower,
			time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, "5.5", sum.String())
		archiver.AssertExpectations(t)
	})

	t.Run("archive failure does not fail the import", func(t *testing.T) {
		f := newFixture(t)
		svc := newTestMeterService(f)
		archiver := &mockArchiver{}
		archiver.On("Archive", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("s3 down"))
		svc.SetArchiver(archiver)

		result, err := svc.ImportCSV(context.Background(), billing.UtilityWater, "w.csv",
			strings.NewReader("unitId,timestamp,usage\n"+f.unit.ID+",2026-10-01,7\n"))
		require.NoError(t, err)
		assert.Equal(t, 1, result.RecordsProcessed)
		assert.Empty(t, result.ArchiveKey)
	})

	t.Run("rejects an empty file", func(t *testing.T) {
		f := newFixture(t)
		svc := newTestMeterService(f)

		_, err := svc.ImportCSV(context.Background(), billing.UtilityWater, "empty.csv", strings.NewReader(""))
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("rejects an unknown kind", func(t *testing.T) {
		f := newFixture(t)
		svc := newTestMeterService(f)

		_, err := svc.ImportCSV(context.Background(), billing.UtilityKind("Gas"), "g.csv", strings.NewReader("x"))
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestMeterReadingService_UnitUsage(t *testing.T) {
	f := newFixture(t)
	f.addReading(billing.UtilityPower, time.Date(2026, 10, 15, 8, 10, 0, 0, time.UTC), "1")
	f.addReading(billing.UtilityPower, time.Date(2026, 10, 15, 8, 40, 0, 0, time.UTC), "2")
	f.addReading(billing.UtilityWater, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), "30")
	f.addReading(billing.UtilityWater, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC), "99")
	svc := newTestMeterService(f)

	t.Run("defaults to the last three months", func(t *testing.T) {
		got, err := svc.UnitUsage(context.Background(), f.unit.ID, time.Time{}, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, "2B", got.UnitNumber)
		assert.Equal(t, "2026-07-15", got.From)
		assert.Equal(t, "2026-10-15", got.To)
		require.Len(t, got.PowerUsage, 1)
		assert.Equal(t, "3", got.PowerUsage[0].Value)
		assert.Equal(t, time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC), got.PowerUsage[0].Timestamp)
		require.Len(t, got.WaterUsage, 1)
		assert.Equal(t, "30", got.WaterUsage[0].Value)
	})

	t.Run("includes the whole end date", func(t *testing.T) {
		day := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
		got, err := svc.UnitUsage(context.Background(), f.unit.ID, day, day)
		require.NoError(t, err)
		assert.Len(t, got.PowerUsage, 1)
		assert.Empty(t, got.WaterUsage)
	})

	t.Run("rejects from after to", func(t *testing.T) {
		_, err := svc.UnitUsage(context.Background(), f.unit.ID, testNow, testNow.AddDate(0, 0, -1))
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("unknown unit is not found", func(t *testing.T) {
		_, err := svc.UnitUsage(context.Background(), "ghost/1", time.Time{}, time.Time{})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
