package pipeline

import (
	"context"
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
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Notifier delivers a finished daily report.
type Notifier interface {
	NotifyDaily(ctx context.Context, report model.DailyReport) error
}

// Daily builds the daily report of one market: the main index with change and
// drawdown columns, left-joined on date with extended hours, indicators and the
// top constituent.
type Daily struct {
	Name      string
	Def       Definition
	Table     string
	Seed      decimal.NullDecimal
	Options   calculator.Options
	Collector *collector.Collector
	Recorder  recorder.Recorder
	Notifier  Notifier
	Now       func() time.Time

	log *logrus.Entry
}

// NewDaily wires the daily pipeline configured by cfg. notifier may be nil.
func NewDaily(cfg config.DailyConfig, opts calculator.Options, fetcher collector.Fetcher, rec recorder.Recorder, notifier Notifier, log logrus.FieldLogger) (*Daily, error) {
	def, err := Lookup(cfg.Name)
	if err != nil {
		return nil, err
	}
	if opts.Location == nil {
		loc, err := time.LoadLocation(def.Timezone)
		if err != nil {
			return nil, fmt.Errorf("daily %s: %w", cfg.Name, err)
		}
		opts.Location = loc
	}
	if log == nil {
		log = logger.Discard()
	}
	if !cfg.Notify {
		notifier = nil
	}
	entry := logger.WithComponent(log, "pipeline").WithField("pipeline", cfg.Name)
	return &Daily{
		Name:      cfg.Name,
		Def:       def,
		Table:     cfg.Table,
		Seed:      cfg.Seed(),
		Options:   opts,
		Collector: collector.NewCollector(fetcher, 4, entry),
		Recorder:  rec,
		Notifier:  notifier,
		Now:       time.Now,
		log:       entry,
	}, nil
}

type role int

const (
	roleMain role = iota
	roleExtended
	roleIndicator
	roleTop
)

type dailyRequest struct {
	role      role
	indicator Indicator
	req       collector.PriceRequest
}

func (d *Daily) requests(lead, to time.Time) []dailyRequest {
	window := func(symbol string) collector.PriceRequest {
		return collector.PriceRequest{Symbol: symbol, Start: null.TimeFrom(lead), End: null.TimeFrom(to), Interval: "1d"}
	}
	out := []dailyRequest{{role: roleMain, req: window(d.Def.Symbol)}}
	if d.Def.Extended != "" {
		req := window(d.Def.Extended)
		req.Interval = "1h"
		req.PrePost = true
		out = append(out, dailyRequest{role: roleExtended, req: req})
	}
	for _, ind := range d.Def.Indicators {
		out = append(out, dailyRequest{role: roleIndicator, indicator: ind, req: window(ind.Symbol)})
	}
	if d.Def.Top != "" {
		out = append(out, dailyRequest{role: roleTop, req: window(d.Def.Top)})
	}
	return out
}

// Run builds, records and announces the reports of every session in
// [start, end]. Missing bounds default to the latest completed session.
func (d *Daily) Run(ctx context.Context, start, end null.Time) (reports []model.DailyReport, err error) {
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.PipelineRuns.WithLabelValues(d.Name, status).Inc()
	}()

	cal, err := calendar.Lookup(d.Def.Calendar)
	if err != nil {
		return nil, err
	}
	from, to, err := calendar.Window(start, end, d.Now(), d.Def.Calendar)
	if err != nil {
		return nil, err
	}
	// one extra session so the first reported row has a previous close
	lead := cal.Align(from.AddDate(0, 0, -1), calendar.Previous)
	d.log.Infof("running %s for %s..%s", d.Def.Market, from.Format(time.DateOnly), to.Format(time.DateOnly))

	planned := d.requests(lead, to)
	reqs := make([]collector.PriceRequest, len(planned))
	for i, p := range planned {
		reqs[i] = p.req
	}
	results, err := d.Collector.Collect(ctx, reqs)
	if err != nil {
		return nil, err
	}

	main := results[0]
	if main.Err != nil {
		return nil, main.Err
	}
	if len(main.Series) == 0 {
		return nil, fmt.Errorf("%s: no rows between %s and %s", d.Def.Symbol, lead.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	index, err := d.index(main.Series)
	if err != nil {
		return nil, err
	}

	var (
		extended   map[time.Time]model.ExtendedHours
		indicators = make(map[string]map[time.Time]model.PriceRow)
		top        map[time.Time]model.PriceRow
	)
	for i, p := range planned[1:] {
		res := results[i+1]
		if res.Err != nil {
			d.log.WithField("symbol", p.req.Symbol).Warnf("left out of report: %v", res.Err)
			continue
		}
		switch p.role {
		case roleExtended:
			ext, extErr := d.extendedHours(res.Series, main.Series)
			if extErr != nil {
				d.log.WithField("symbol", p.req.Symbol).Warnf("extended hours skipped: %v", extErr)
			}
			extended = ext
		case roleIndicator:
			series := res.Series
			if p.indicator.Change != "" {
				changed, err := calculator.SetChange(series, d.Options)
				if err != nil {
					return nil, fmt.Errorf("%s change: %w", p.req.Symbol, err)
				}
				series = changed
			}
			indicators[p.indicator.Column] = byDate(series)
		case roleTop:
			series, err := calculator.SetChange(res.Series, d.Options)
			if err != nil {
				return nil, fmt.Errorf("%s change: %w", p.req.Symbol, err)
			}
			top = byDate(series)
		}
	}

	for _, row := range index.Between(from, to) {
		rep := model.DailyReport{
			Market:     d.Def.Market,
			Index:      row,
			Indicators: make(map[string]decimal.NullDecimal, len(d.Def.Indicators)+1),
		}
		if ext, ok := extended[row.Date]; ok {
			rep.Extended = &ext
		}
		for _, ind := range d.Def.Indicators {
			joined := indicators[ind.Column][row.Date]
			rep.Indicators[ind.Column] = joined.Close
			if ind.Change != "" {
				rep.Indicators[ind.Change] = joined.Change
			}
		}
		if d.Def.Top != "" {
			if t, ok := top[row.Date]; ok {
				rep.Top = &model.TopMover{Symbol: d.Def.Top, Close: t.Close, Change: t.Change}
			}
		}
		reports = append(reports, rep)
	}
	metrics.RowsProcessed.WithLabelValues("daily").Add(float64(len(reports)))

	if len(reports) == 0 {
		d.log.Info("no session in window, nothing to record")
		return nil, nil
	}
	if d.Recorder != nil {
		if err := d.Recorder.RecordDailyReports(ctx, d.Table, reports); err != nil {
			return reports, fmt.Errorf("record %s: %w", d.Table, err)
		}
	}
	if d.Notifier != nil {
		if err := d.Notifier.NotifyDaily(ctx, reports[len(reports)-1]); err != nil {
			d.log.Errorf("notify failed: %v", err)
		}
	}
	d.log.Infof("%s: %d reports recorded", d.Def.Market, len(reports))
	return reports, nil
}

// index derives change and drawdown columns on the main index series.
func (d *Daily) index(series model.Series) (model.Series, error) {
	out, err := calculator.SetChange(series, d.Options)
	if err != nil {
		return nil, fmt.Errorf("%s change: %w", d.Def.Symbol, err)
	}
	opts := d.Options
	if d.Seed.Valid {
		opts = opts.WithSeed(d.Seed.Decimal)
	}
	if out, err = calculator.CalcDrawdown(out, opts); err != nil {
		return nil, fmt.Errorf("%s drawdown: %w", d.Def.Symbol, err)
	}
	reportAnomalies(d.log, out)
	return out, nil
}

func (d *Daily) extendedHours(proxy, daily model.Series) (map[time.Time]model.ExtendedHours, error) {
	if len(proxy) == 0 {
		return nil, nil
	}
	changed, err := calculator.SetChange(proxy, d.Options)
	if err != nil {
		return nil, err
	}
	rows, err := calculator.AggregateExtendedHours(changed, daily, d.Options)
	if err != nil {
		return nil, err
	}
	out := make(map[time.Time]model.ExtendedHours, len(rows))
	for _, r := range rows {
		out[r.Date] = r
	}
	return out, nil
}

func byDate(series model.Series) map[time.Time]model.PriceRow {
	out := make(map[time.Time]model.PriceRow, len(series))
	for _, r := range series {
		out[r.Date] = r
	}
	return out
}

// reportAnomalies logs rows breaking the OHLC ordering; they are kept as fetched.
func reportAnomalies(log *logrus.Entry, series model.Series) {
	for _, a := range calculator.CheckBounds(series) {
		metrics.Anomalies.WithLabelValues(a.Key).Inc()
		log.Warnf("price anomaly: %s", a)
	}
}
