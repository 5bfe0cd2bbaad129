package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MarketSpider/internal/logger"
	"MarketSpider/internal/metrics"
	"MarketSpider/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ReplacingMergeTree keeps the latest version per sorting key, which gives the
// same upsert semantics as the SQLite sink once parts are merged.
const clickhousePriceSchema = `CREATE TABLE IF NOT EXISTS %s (
	symbol         String,
	code           String,
	id             String,
	date           Date,
	datetime       DateTime64(3, 'UTC'),
	open           Nullable(Float64),
	high           Nullable(Float64),
	low            Nullable(Float64),
	close          Nullable(Float64),
	adj_close      Nullable(Float64),
	volume         Nullable(Int64),
	previous_close Nullable(Float64),
	change         Nullable(Float64),
	gap            Nullable(Float64),
	high_pct       Nullable(Float64),
	low_pct        Nullable(Float64),
	max_price      Nullable(Float64),
	draw_down      Nullable(Float64),
	updated_at     DateTime
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY (symbol, code, date, datetime)`

const clickhouseReportSchema = `CREATE TABLE IF NOT EXISTS %s (
	market         String,
	date           Date,
	symbol         String,
	open           Nullable(Float64),
	high           Nullable(Float64),
	low            Nullable(Float64),
	close          Nullable(Float64),
	volume         Nullable(Int64),
	previous_close Nullable(Float64),
	change         Nullable(Float64),
	gap            Nullable(Float64),
	high_pct       Nullable(Float64),
	low_pct        Nullable(Float64),
	max_price      Nullable(Float64),
	draw_down      Nullable(Float64),
	pre_high       Nullable(Float64),
	pre_high_pct   Nullable(Float64),
	pre_low        Nullable(Float64),
	pre_low_pct    Nullable(Float64),
	pre_change     Nullable(Float64),
	post_high      Nullable(Float64),
	post_high_pct  Nullable(Float64),
	post_low       Nullable(Float64),
	post_low_pct   Nullable(Float64),
	post_change    Nullable(Float64),
	indicators     Map(String, Float64),
	top_symbol     String,
	top_close      Nullable(Float64),
	top_change     Nullable(Float64),
	updated_at     DateTime
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY (market, date)`

// ClickHouseRecorder uploads rows with ClickHouse batch inserts.
type ClickHouseRecorder struct {
	conn driver.Conn

	mu     sync.Mutex
	tables map[string]bool
	log    *logrus.Entry
}

// NewClickHouseRecorder parses the DSN, opens a connection and verifies it with a ping.
func NewClickHouseRecorder(ctx context.Context, dsn string, log logrus.FieldLogger) (*ClickHouseRecorder, error) {
	if log == nil {
		log = logger.Discard()
	}
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	r := &ClickHouseRecorder{conn: conn, tables: make(map[string]bool), log: logger.WithComponent(log, "clickhouse")}
	r.log.Infof("clickhouse recorder connected: %v", opts.Addr)
	return r, nil
}

func (r *ClickHouseRecorder) migrate(ctx context.Context, table, schema string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tables[table] {
		return nil
	}
	if err := r.conn.Exec(ctx, fmt.Sprintf(schema, table)); err != nil {
		return fmt.Errorf("migrate %s: %w", table, err)
	}
	r.tables[table] = true
	return nil
}

func (r *ClickHouseRecorder) RecordPrices(ctx context.Context, table string, rows model.Series) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.migrate(ctx, table, clickhousePriceSchema); err != nil {
		return err
	}

	batch, err := r.conn.PrepareBatch(ctx, fmt.Sprintf(`INSERT INTO %s (
		symbol, code, id, date, datetime,
		open, high, low, close, adj_close, volume,
		previous_close, change, gap, high_pct, low_pct, max_price, draw_down,
		updated_at
	)`, table))
	if err != nil {
		return fmt.Errorf("prepare batch %s: %w", table, err)
	}

	now := time.Now()
	for _, row := range rows {
		ts := time.Unix(0, 0).UTC()
		if row.Datetime.Valid {
			ts = row.Datetime.Time.UTC()
		}
		err := batch.Append(
			row.Symbol, row.Code, row.ID, row.Date, ts,
			f64(row.Open), f64(row.High), f64(row.Low), f64(row.Close), f64(row.AdjClose), row.Volume.Ptr(),
			f64(row.PreviousClose), f64(row.Change), f64(row.Gap), f64(row.HighPct), f64(row.LowPct),
			f64(row.MaxPrice), f64(row.DrawDown),
			now,
		)
		if err != nil {
			return fmt.Errorf("append %s: %w", row.Key(), err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch %s: %w", table, err)
	}
	metrics.UploadRows.WithLabelValues("clickhouse", table).Add(float64(len(rows)))
	return nil
}

func (r *ClickHouseRecorder) RecordDailyReports(ctx context.Context, table string, reports []model.DailyReport) error {
	if len(reports) == 0 {
		return nil
	}
	if err := r.migrate(ctx, table, clickhouseReportSchema); err != nil {
		return err
	}

	batch, err := r.conn.PrepareBatch(ctx, fmt.Sprintf(`INSERT INTO %s (
		market, date, symbol, open, high, low, close, volume,
		previous_close, change, gap, high_pct, low_pct, max_price, draw_down,
		pre_high, pre_high_pct, pre_low, pre_low_pct, pre_change,
		post_high, post_high_pct, post_low, post_low_pct, post_change,
		indicators, top_symbol, top_close, top_change, updated_at
	)`, table))
	if err != nil {
		return fmt.Errorf("prepare batch %s: %w", table, err)
	}

	now := time.Now()
	for _, rep := range reports {
		idx := rep.Index
		ext := rep.Extended
		if ext == nil {
			ext = &model.ExtendedHours{}
		}
		top := rep.Top
		if top == nil {
			top = &model.TopMover{}
		}
		err := batch.Append(
			rep.Market, rep.Date(), idx.Symbol,
			f64(idx.Open), f64(idx.High), f64(idx.Low), f64(idx.Close), idx.Volume.Ptr(),
			f64(idx.PreviousClose), f64(idx.Change), f64(idx.Gap),
			f64(idx.HighPct), f64(idx.LowPct), f64(idx.MaxPrice), f64(idx.DrawDown),
			f64(ext.PreHigh), f64(ext.PreHighPct), f64(ext.PreLow), f64(ext.PreLowPct), f64(ext.PreChange),
			f64(ext.PostHigh), f64(ext.PostHighPct), f64(ext.PostLow), f64(ext.PostLowPct), f64(ext.PostChange),
			indicatorValues(rep), top.Symbol, f64(top.Close), f64(top.Change),
			now,
		)
		if err != nil {
			return fmt.Errorf("append %s %s: %w", rep.Market, rep.Date().Format(time.DateOnly), err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch %s: %w", table, err)
	}
	metrics.UploadRows.WithLabelValues("clickhouse", table).Add(float64(len(reports)))
	return nil
}

func (r *ClickHouseRecorder) Close() error {
	return r.conn.Close()
}

// f64 converts to the *float64 the driver expects for Nullable(Float64).
func f64(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	v := d.Decimal.InexactFloat64()
	return &v
}
