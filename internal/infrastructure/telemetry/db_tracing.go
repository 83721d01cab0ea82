package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // include bound variables; development only
	SlowQueryThresh time.Duration // default 200ms
	DBSystem        string
}

// DBTracingPlugin registers otelgorm plus slow-query annotation.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates a new database tracing plugin
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}
	return &DBTracingPlugin{config: cfg, logger: logger}
}

type queryStartKey struct{}

// RegisterOtelGorm installs the plugin on db. It is a no-op when disabled.
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if !p.config.Enabled {
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}
	if err := p.registerCallbacks(db); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
		zap.String("db_system", p.config.DBSystem))
	return nil
}

func (p *DBTracingPlugin) registerCallbacks(db *gorm.DB) error {
	// after callbacks run ahead of otelgorm's so its span is still recording
	cb := db.Callback()
	ops := []struct {
		name string
		reg  func() (before, after gormCallback)
	}{
		{"create", func() (gormCallback, gormCallback) {
			return cb.Create().Before("gorm:create"), cb.Create().After("gorm:create").Before("otel:after:create")
		}},
		{"query", func() (gormCallback, gormCallback) {
			return cb.Query().Before("gorm:query"), cb.Query().After("gorm:query").Before("otel:after:query")
		}},
		{"update", func() (gormCallback, gormCallback) {
			return cb.Update().Before("gorm:update"), cb.Update().After("gorm:update").Before("otel:after:update")
		}},
		{"delete", func() (gormCallback, gormCallback) {
			return cb.Delete().Before("gorm:delete"), cb.Delete().After("gorm:delete").Before("otel:after:delete")
		}},
		{"row", func() (gormCallback, gormCallback) {
			return cb.Row().Before("gorm:row"), cb.Row().After("gorm:row").Before("otel:after:row")
		}},
		{"raw", func() (gormCallback, gormCallback) {
			return cb.Raw().Before("gorm:raw"), cb.Raw().After("gorm:raw").Before("otel:after:raw")
		}},
	}
	for _, op := range ops {
		before, after := op.reg()
		if err := before.Register("otel_timing:before_"+op.name, markStart); err != nil {
			return err
		}
		if err := after.Register("otel_slow_query:"+op.name, p.annotate); err != nil {
			return err
		}
	}
	return nil
}

type gormCallback interface {
	Register(name string, fn func(*gorm.DB)) error
}

func markStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

// annotate adds row counts, errors and the slow-query flag to the span
func (p *DBTracingPlugin) annotate(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > p.config.SlowQueryThresh {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}
