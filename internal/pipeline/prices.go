package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketSpider/internal/calculator"
	"MarketSpider/internal/calendar"
	"MarketSpider/internal/collector"
	"MarketSpider/internal/config"
	"MarketSpider/internal/logger"
	"MarketSpider/internal/metrics"
	"MarketSpider/internal/model"
	"MarketSpider/internal/recorder"

	"github.com/guregu/null/v6"
	"github.com/sirupsen/logrus"
)

// PriceJob collects the price history of a symbol list, derives change columns
// per instrument and uploads the merged table.
type PriceJob struct {
	Name      string
	Table     string
	Calendar  string
	Symbols   []string
	Interval  string
	PrePost   bool
	Lookback  int
	Column    string // partition column, symbol or code
	Options   calculator.Options
	Collector *collector.Collector
	Recorder  recorder.Recorder
	Now       func() time.Time

	log *logrus.Entry
}

// NewPriceJob wires the price job configured by cfg.
func NewPriceJob(cfg config.PriceJobConfig, opts calculator.Options, fetcher collector.Fetcher, rec recorder.Recorder, log logrus.FieldLogger) (*PriceJob, error) {
	cal, err := calendar.Lookup(cfg.Calendar)
	if err != nil {
		return nil, err
	}
	if opts.Location == nil {
		opts.Location = cal.Location
	}
	if log == nil {
		log = logger.Discard()
	}
	column := calculator.ColumnSymbol
	if cfg.Provider == "square" {
		column = calculator.ColumnCode
	}
	entry := logger.WithComponent(log, "pipeline").WithField("pipeline", cfg.Name)
	return &PriceJob{
		Name:      cfg.Name,
		Table:     cfg.Table,
		Calendar:  cfg.Calendar,
		Symbols:   cfg.Symbols,
		Interval:  cfg.Interval,
		PrePost:   cfg.PrePost,
		Lookback:  cfg.Lookback,
		Column:    column,
		Options:   opts,
		Collector: collector.NewCollector(fetcher, 4, entry),
		Recorder:  rec,
		Now:       time.Now,
		log:       entry,
	}, nil
}

// window resolves the sessions to upload and the earlier session fetched along
// with them for previous closes.
func (j *PriceJob) window(start, end null.Time) (lead, from, to time.Time, err error) {
	cal, err := calendar.Lookup(j.Calendar)
	if err != nil {
		return
	}
	from, to, err = calendar.Window(start, end, j.Now(), j.Calendar)
	if err != nil {
		return
	}
	if !start.Valid && j.Lookback > 0 {
		from = cal.Align(to.AddDate(0, 0, -j.Lookback), calendar.Previous)
	}
	lead = cal.Align(from.AddDate(0, 0, -1), calendar.Previous)
	return lead, from, to, nil
}

// Run fetches every symbol, uploads what succeeded and returns the uploaded
// rows. Failed symbols are reported together in the returned error.
func (j *PriceJob) Run(ctx context.Context, start, end null.Time) (out model.Table, err error) {
	defer func() {
		status := "ok"
		switch {
		case err != nil && len(out) > 0:
			status = "partial"
		case err != nil:
			status = "error"
		}
		metrics.PipelineRuns.WithLabelValues(j.Name, status).Inc()
	}()

	lead, from, to, err := j.window(start, end)
	if err != nil {
		return nil, err
	}
	j.log.Infof("collecting %d symbols for %s..%s", len(j.Symbols), from.Format(time.DateOnly), to.Format(time.DateOnly))

	reqs := make([]collector.PriceRequest, len(j.Symbols))
	for i, s := range j.Symbols {
		reqs[i] = collector.PriceRequest{
			Symbol:   s,
			Start:    null.TimeFrom(lead),
			End:      null.TimeFrom(to),
			Interval: j.Interval,
			PrePost:  j.PrePost,
		}
	}
	results, err := j.Collector.Collect(ctx, reqs)
	if err != nil {
		return nil, err
	}
	var failed []error
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Err)
		}
	}
	if len(failed) == len(results) && len(failed) > 0 {
		return nil, fmt.Errorf("%s: every symbol failed: %w", j.Name, errors.Join(failed...))
	}

	out, err = j.transform(collector.Table(results), from, to)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 && j.Recorder != nil {
		if err := j.Recorder.RecordPrices(ctx, j.Table, model.Series(out)); err != nil {
			return nil, fmt.Errorf("record %s: %w", j.Table, err)
		}
	}
	j.log.Infof("%s: %d rows uploaded", j.Name, len(out))

	if len(failed) > 0 {
		return out, fmt.Errorf("%s: %d of %d symbols failed: %w", j.Name, len(failed), len(results), errors.Join(failed...))
	}
	return out, nil
}

// transform splits table per instrument, drops duplicate bars, derives change
// columns and keeps the rows dated inside [from, to].
func (j *PriceJob) transform(table model.Table, from, to time.Time) (model.Table, error) {
	var out model.Table
	for _, part := range calculator.PartitionBySymbol(table, j.Column) {
		series := calculator.Deduplicate(part)
		if len(series) == 0 {
			continue
		}
		changed, err := calculator.SetChange(series, j.Options)
		if err != nil {
			return nil, fmt.Errorf("%s change: %w", series[0].Key(), err)
		}
		reportAnomalies(j.log, changed)
		out = append(out, changed.Between(from, to)...)
	}
	metrics.RowsProcessed.WithLabelValues("prices").Add(float64(len(out)))
	return out, nil
}
