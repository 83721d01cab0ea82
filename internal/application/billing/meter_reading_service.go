package billing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	csvimport "github.com/rentals/backend/internal/infrastructure/import"
	"go.uber.org/zap"
)

// DefaultUsageWindowMonths is how far back a usage query reaches without a from date
const DefaultUsageWindowMonths = 3

// maxReportedRowErrors caps the row errors returned to the caller
const maxReportedRowErrors = 100

// UploadArchiver keeps a copy of raw meter uploads.
// This interface will be implemented by the infrastructure layer (S3).
type UploadArchiver interface {
	Archive(ctx context.Context, kind billing.UtilityKind, filename string, data []byte) (string, error)
}

// MeterReadingService ingests meter samples and serves usage series
type MeterReadingService struct {
	unitRepo billing.UnitRepository
	readings billing.ReadingStore
	archiver UploadArchiver
	clock    shared.Clock
	logger   *zap.Logger
	rows     *csvimport.MeterRowReader
}

// NewMeterReadingService creates a new MeterReadingService
func NewMeterReadingService(
	unitRepo billing.UnitRepository,
	readings billing.ReadingStore,
	clock shared.Clock,
	logger *zap.Logger,
) *MeterReadingService {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &MeterReadingService{
		unitRepo: unitRepo,
		readings: readings,
		clock:    clock,
		logger:   logger,
		rows:     csvimport.NewMeterRowReader(maxReportedRowErrors),
	}
}

// SetArchiver enables archiving of raw CSV uploads
func (s *MeterReadingService) SetArchiver(archiver UploadArchiver) {
	s.archiver = archiver
}

// UploadReadings appends samples of one kind for one unit. The unit must
// exist. Invalid entries are reported and skipped.
func (s *MeterReadingService) UploadReadings(ctx context.Context, kind billing.UtilityKind, req UploadReadingsRequest) (*UploadResult, error) {
	if !kind.IsValid() {
		return nil, shared.NewInvalidInputError("Unknown utility kind %q", kind)
	}
	if _, err := s.findUnit(ctx, req.UnitID); err != nil {
		return nil, err
	}

	errs := csvimport.NewErrorCollection(maxReportedRowErrors)
	batch := make([]billing.MeterReading, 0, len(req.Entries))
	for i, e := range req.Entries {
		r, err := billing.NewMeterReading(req.UnitID, kind, e.Timestamp, e.Usage, e.Tag)
		if err != nil {
			errs.Add(csvimport.RowError{Row: i + 1, Code: csvimport.ErrCodeImportInvalidFormat, Message: err.Error()})
			continue
		}
		batch = append(batch, r)
	}

	if len(batch) > 0 {
		if err := s.readings.Append(ctx, batch); err != nil {
			return nil, fmt.Errorf("failed to store readings: %w", err)
		}
	}

	s.logger.Info("Meter readings uploaded",
		zap.String("unit_id", req.UnitID),
		zap.String("kind", kind.String()),
		zap.Int("stored", len(batch)),
		zap.Int("rejected", errs.TotalCount()))

	return newUploadResult(len(batch), errs), nil
}

// ImportCSV appends samples from a "unitId,timestamp,usage" file. Each row is
// handled on its own: bad rows and rows for unknown units are reported and
// skipped while the rest are stored.
func (s *MeterReadingService) ImportCSV(ctx context.Context, kind billing.UtilityKind, filename string, r io.Reader) (*UploadResult, error) {
	if !kind.IsValid() {
		return nil, shared.NewInvalidInputError("Unknown utility kind %q", kind)
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	rows, errs, err := s.rows.Read(bytes.NewReader(raw))
	if err != nil {
		return nil, shared.NewInvalidInputError("Invalid CSV file: %v", err)
	}

	unitIDs := make([]string, 0)
	seen := make(map[string]struct{})
	for _, row := range rows {
		if _, ok := seen[row.UnitID]; !ok {
			seen[row.UnitID] = struct{}{}
			unitIDs = append(unitIDs, row.UnitID)
		}
	}
	known := make(map[string]struct{}, len(unitIDs))
	if len(unitIDs) > 0 {
		units, err := s.unitRepo.FindByIDs(ctx, unitIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load units: %w", err)
		}
		for _, u := range units {
			known[u.ID] = struct{}{}
		}
	}

	batch := make([]billing.MeterReading, 0, len(rows))
	for _, row := range rows {
		if _, ok := known[row.UnitID]; !ok {
			errs.AddReferenceError(row.Line, csvimport.ColumnUnitID, row.UnitID, "unit")
			continue
		}
		reading, err := billing.NewMeterReading(row.UnitID, kind, row.Timestamp, row.Usage, "")
		if err != nil {
			errs.Add(csvimport.RowError{Row: row.Line, Code: csvimport.ErrCodeImportInvalidFormat, Message: err.Error()})
			continue
		}
		batch = append(batch, reading)
	}

	if len(batch) > 0 {
		if err := s.readings.Append(ctx, batch); err != nil {
			return nil, fmt.Errorf("failed to store readings: %w", err)
		}
	}

	result := newUploadResult(len(batch), errs)
	if s.archiver != nil {
		key, err := s.archiver.Archive(ctx, kind, filename, raw)
		if err != nil {
			s.logger.Warn("Failed to archive meter upload", zap.String("filename", filename), zap.Error(err))
		} else {
			result.ArchiveKey = key
		}
	}

	s.logger.Info("Meter CSV imported",
		zap.String("kind", kind.String()),
		zap.String("filename", filename),
		zap.Int("stored", result.RecordsProcessed),
		zap.Int("rejected", result.TotalErrors))

	return result, nil
}

// UnitUsage returns hourly Power and Water usage for a unit between from and
// to, both inclusive calendar dates. Zero values default to the last three
// months up to today.
func (s *MeterReadingService) UnitUsage(ctx context.Context, unitID string, from, to time.Time) (*UsageSeriesResponse, error) {
	unit, err := s.findUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}

	if to.IsZero() {
		to = s.clock.Now()
	}
	to = billing.DateOf(to)
	if from.IsZero() {
		from = to.AddDate(0, -DefaultUsageWindowMonths, 0)
	}
	from = billing.DateOf(from)
	if from.After(to) {
		return nil, shared.NewInvalidInputError("from %s is after to %s", FormatDate(from), FormatDate(to))
	}
	end := to.AddDate(0, 0, 1)

	power, err := s.readings.HourlyUsage(ctx, unit.ID, billing.UtilityPower, from, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load power usage: %w", err)
	}
	water, err := s.readings.HourlyUsage(ctx, unit.ID, billing.UtilityWater, from, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load water usage: %w", err)
	}

	return &UsageSeriesResponse{
		UnitID:     unit.ID,
		UnitNumber: unit.UnitNumber,
		From:       FormatDate(from),
		To:         FormatDate(to),
		PowerUsage: toUsagePoints(power),
		WaterUsage: toUsagePoints(water),
	}, nil
}

func (s *MeterReadingService) findUnit(ctx context.Context, unitID string) (*billing.Unit, error) {
	if unitID == "" {
		return nil, shared.NewInvalidInputError("Unit ID is required")
	}
	unit, err := s.unitRepo.FindByID(ctx, unitID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.NewNotFoundError("Unit %s not found", unitID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load unit: %w", err)
	}
	return unit, nil
}

func newUploadResult(processed int, errs *csvimport.ErrorCollection) *UploadResult {
	return &UploadResult{
		RecordsProcessed: processed,
		Errors:           errs.Errors(),
		TotalErrors:      errs.TotalCount(),
		Truncated:        errs.IsTruncated(),
	}
}
