package recorder

import (
	"context"

	"MarketSpider/internal/model"
)

// NoopRecorder is a no-op implementation used when no sink is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordPrices(context.Context, string, model.Series) error { return nil }
func (n *NoopRecorder) RecordDailyReports(context.Context, string, []model.DailyReport) error {
	return nil
}
func (n *NoopRecorder) Close() error { return nil }
