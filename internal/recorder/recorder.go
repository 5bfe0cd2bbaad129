package recorder

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"MarketSpider/internal/config"
	"MarketSpider/internal/logger"
	"MarketSpider/internal/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Recorder uploads price tables and daily reports to a sink.
type Recorder interface {
	// RecordPrices upserts rows into table, keyed on symbol/code and date or datetime.
	RecordPrices(ctx context.Context, table string, rows model.Series) error
	// RecordDailyReports upserts one row per report date into table.
	RecordDailyReports(ctx context.Context, table string, reports []model.DailyReport) error
	Close() error
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkTable(table string) error {
	if !tableName.MatchString(table) {
		return fmt.Errorf("table name %q: %w", table, model.ErrInvalidArgument)
	}
	return nil
}

// New opens every sink configured in cfg. With no sink configured it returns a NoopRecorder.
func New(ctx context.Context, cfg config.RecorderConfig, log logrus.FieldLogger) (Recorder, error) {
	if log == nil {
		log = logger.Discard()
	}
	var sinks Multi
	if cfg.SQLitePath != "" {
		r, err := NewSQLiteRecorder(cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, r)
	}
	if cfg.ClickHouseDSN != "" {
		r, err := NewClickHouseRecorder(ctx, cfg.ClickHouseDSN, log)
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, r)
	}
	switch len(sinks) {
	case 0:
		logger.WithComponent(log, "recorder").Info("no sink configured, uploads are discarded")
		return NewNoopRecorder(), nil
	case 1:
		return sinks[0], nil
	}
	return sinks, nil
}

// Multi fans every call out to all of its recorders.
type Multi []Recorder

func (m Multi) RecordPrices(ctx context.Context, table string, rows model.Series) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordPrices(ctx, table, rows); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) RecordDailyReports(ctx context.Context, table string, reports []model.DailyReport) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordDailyReports(ctx, table, reports); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func float(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.InexactFloat64()
}
