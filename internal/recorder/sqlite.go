package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"MarketSpider/internal/logger"
	"MarketSpider/internal/metrics"
	"MarketSpider/internal/model"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const priceSchema = `CREATE TABLE IF NOT EXISTS %[1]s (
	symbol         TEXT NOT NULL DEFAULT '',
	code           TEXT NOT NULL DEFAULT '',
	id             TEXT NOT NULL DEFAULT '',
	date           TEXT NOT NULL,
	datetime       INTEGER NOT NULL DEFAULT 0,
	open           REAL,
	high           REAL,
	low            REAL,
	close          REAL,
	adj_close      REAL,
	volume         INTEGER,
	previous_close REAL,
	change         REAL,
	gap            REAL,
	high_pct       REAL,
	low_pct        REAL,
	max_price      REAL,
	draw_down      REAL,
	updated_at     INTEGER NOT NULL,
	PRIMARY KEY (symbol, code, date, datetime)
)`

const reportSchema = `CREATE TABLE IF NOT EXISTS %[1]s (
	market         TEXT NOT NULL,
	date           TEXT NOT NULL,
	symbol         TEXT,
	open           REAL,
	high           REAL,
	low            REAL,
	close          REAL,
	volume         INTEGER,
	previous_close REAL,
	change         REAL,
	gap            REAL,
	high_pct       REAL,
	low_pct        REAL,
	max_price      REAL,
	draw_down      REAL,
	pre_high       REAL,
	pre_high_pct   REAL,
	pre_low        REAL,
	pre_low_pct    REAL,
	pre_change     REAL,
	post_high      REAL,
	post_high_pct  REAL,
	post_low       REAL,
	post_low_pct   REAL,
	post_change    REAL,
	indicators     TEXT,
	top_symbol     TEXT,
	top_close      REAL,
	top_change     REAL,
	updated_at     INTEGER NOT NULL,
	PRIMARY KEY (market, date)
)`

// SQLiteRecorder persists price tables and daily reports to a SQLite database.
// Tables are created on first use.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	tables map[string]bool
	log    *logrus.Entry
}

// NewSQLiteRecorder opens (or creates) the SQLite database.
func NewSQLiteRecorder(dbPath string, log logrus.FieldLogger) (*SQLiteRecorder, error) {
	if log == nil {
		log = logger.Discard()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so dashboards can read while a pipeline writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, tables: make(map[string]bool), log: logger.WithComponent(log, "sqlite")}
	r.log.Infof("sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate(ctx context.Context, table, schema string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if r.tables[table] {
		return nil
	}
	stmts := []string{
		fmt.Sprintf(schema, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_date ON %[1]s(date)`, table),
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate %s: %w", table, err)
		}
	}
	r.tables[table] = true
	return nil
}

// RecordPrices upserts rows into table; a row replaces the stored row with the same key.
func (r *SQLiteRecorder) RecordPrices(ctx context.Context, table string, rows model.Series) error {
	if len(rows) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.migrate(ctx, table, priceSchema); err != nil {
		return err
	}
	now := time.Now().Unix()
	err := r.inTx(ctx, fmt.Sprintf(`INSERT OR REPLACE INTO %s
		(symbol, code, id, date, datetime, open, high, low, close, adj_close, volume,
		 previous_close, change, gap, high_pct, low_pct, max_price, draw_down, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, table), len(rows), func(i int) []any {
		row := rows[i]
		var ts int64
		if row.Datetime.Valid {
			ts = row.Datetime.Time.Unix()
		}
		return []any{
			row.Symbol, row.Code, row.ID, row.Date.Format(time.DateOnly), ts,
			float(row.Open), float(row.High), float(row.Low), float(row.Close), float(row.AdjClose),
			row.Volume.Ptr(),
			float(row.PreviousClose), float(row.Change), float(row.Gap), float(row.HighPct), float(row.LowPct),
			float(row.MaxPrice), float(row.DrawDown), now,
		}
	})
	if err != nil {
		return fmt.Errorf("record prices into %s: %w", table, err)
	}
	metrics.UploadRows.WithLabelValues("sqlite", table).Add(float64(len(rows)))
	r.log.WithField("table", table).Debugf("upserted %d rows", len(rows))
	return nil
}

// RecordDailyReports upserts one row per market and date into table.
func (r *SQLiteRecorder) RecordDailyReports(ctx context.Context, table string, reports []model.DailyReport) error {
	if len(reports) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.migrate(ctx, table, reportSchema); err != nil {
		return err
	}
	now := time.Now().Unix()
	var encodeErr error
	err := r.inTx(ctx, fmt.Sprintf(`INSERT OR REPLACE INTO %s
		(market, date, symbol, open, high, low, close, volume, previous_close, change, gap, high_pct, low_pct, max_price, draw_down,
		 pre_high, pre_high_pct, pre_low, pre_low_pct, pre_change,
		 post_high, post_high_pct, post_low, post_low_pct, post_change,
		 indicators, top_symbol, top_close, top_change, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, table), len(reports), func(i int) []any {
		rep := reports[i]
		idx := rep.Index
		ext := rep.Extended
		if ext == nil {
			ext = &model.ExtendedHours{}
		}
		top := rep.Top
		if top == nil {
			top = &model.TopMover{}
		}
		ind, err := json.Marshal(indicatorValues(rep))
		if err != nil && encodeErr == nil {
			encodeErr = err
		}
		return []any{
			rep.Market, rep.Date().Format(time.DateOnly), idx.Symbol,
			float(idx.Open), float(idx.High), float(idx.Low), float(idx.Close), idx.Volume.Ptr(),
			float(idx.PreviousClose), float(idx.Change), float(idx.Gap),
			float(idx.HighPct), float(idx.LowPct), float(idx.MaxPrice), float(idx.DrawDown),
			float(ext.PreHigh), float(ext.PreHighPct), float(ext.PreLow), float(ext.PreLowPct), float(ext.PreChange),
			float(ext.PostHigh), float(ext.PostHighPct), float(ext.PostLow), float(ext.PostLowPct), float(ext.PostChange),
			string(ind), top.Symbol, float(top.Close), float(top.Change), now,
		}
	})
	if err == nil {
		err = encodeErr
	}
	if err != nil {
		return fmt.Errorf("record daily reports into %s: %w", table, err)
	}
	metrics.UploadRows.WithLabelValues("sqlite", table).Add(float64(len(reports)))
	return nil
}

// inTx executes query once per row inside a single transaction.
func (r *SQLiteRecorder) inTx(ctx context.Context, query string, n int, args func(i int) []any) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// indicatorValues drops null indicators; JSON has no decimal type so values are floats.
func indicatorValues(rep model.DailyReport) map[string]float64 {
	out := make(map[string]float64, len(rep.Indicators))
	for k, v := range rep.Indicators {
		if v.Valid {
			out[k] = v.Decimal.InexactFloat64()
		}
	}
	return out
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("closing sqlite recorder")
	return r.db.Close()
}
