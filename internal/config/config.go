package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"MarketSpider/internal/calculator"
	"MarketSpider/internal/calendar"
	"MarketSpider/internal/logger"
	"MarketSpider/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Logging   logger.Config    `yaml:"logging"`
	Transform TransformConfig  `yaml:"transform"`
	Sources   SourcesConfig    `yaml:"sources"`
	Daily     []DailyConfig    `yaml:"daily" validate:"dive"`
	Prices    []PriceJobConfig `yaml:"prices" validate:"dive"`
	Recorder  RecorderConfig   `yaml:"recorder"`
	Telegram  TelegramConfig   `yaml:"telegram"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Proxy     string           `yaml:"proxy" validate:"omitempty,url"`
}

// TransformConfig carries the normalization options shared by every pipeline.
// An explicit `trunc: null` (or TRUNC=none) disables rounding; a missing trunc
// falls back to the default precision.
type TransformConfig struct {
	Trunc            *int   `yaml:"trunc" validate:"omitempty,gte=0"`
	NoTrunc          bool   `yaml:"-"`
	Timezone         string `yaml:"tzinfo"`
	PreMarketCutoff  string `yaml:"pre_market_cutoff"`
	PostMarketCutoff string `yaml:"post_market_cutoff"`
}

// UnmarshalYAML tells an explicit null trunc apart from an absent one.
func (t *TransformConfig) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value != "trunc" {
				continue
			}
			v := n.Content[i+1]
			if v.ShortTag() == "!!null" {
				t.NoTrunc = true
				break
			}
			var digits int
			if err := v.Decode(&digits); err != nil {
				return fmt.Errorf("transform.trunc %q: %w", v.Value, model.ErrInvalidArgument)
			}
		}
	}
	type plain TransformConfig
	return n.Decode((*plain)(t))
}

// SourceConfig configures one price provider.
type SourceConfig struct {
	BaseURL string        `yaml:"base_url" validate:"omitempty,url"`
	APIKey  string        `yaml:"api_key"`
	Token   string        `yaml:"token"`
	Rate    float64       `yaml:"rate" validate:"gte=0"`
	Burst   int           `yaml:"burst" validate:"gte=0"`
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries" validate:"gte=0,lte=10"`
}

type SourcesConfig struct {
	Yahoo  SourceConfig `yaml:"yahoo"`
	Alpha  SourceConfig `yaml:"alpha"`
	Square SourceConfig `yaml:"square"`
}

// DailyConfig enables one daily market pipeline.
type DailyConfig struct {
	Name     string   `yaml:"name" validate:"required,oneof=nasdaq kospi kosdaq"`
	Cron     string   `yaml:"cron"`
	MaxPrice *float64 `yaml:"max_price" validate:"omitempty,gt=0"`
	Table    string   `yaml:"table"`
	Notify   bool     `yaml:"notify"`
}

// PriceJobConfig describes a recurring price collection for a list of instruments.
type PriceJobConfig struct {
	Name     string   `yaml:"name" validate:"required"`
	Provider string   `yaml:"provider" validate:"required,oneof=yahoo alpha square"`
	Symbols  []string `yaml:"symbols" validate:"required,min=1"`
	Interval string   `yaml:"interval"`
	PrePost  bool     `yaml:"prepost"`
	Calendar string   `yaml:"calendar" validate:"omitempty,oneof=US KR"`
	Lookback int      `yaml:"lookback_days" validate:"gte=0"`
	Table    string   `yaml:"table"`
	Cron     string   `yaml:"cron"`
}

type RecorderConfig struct {
	SQLitePath    string `yaml:"sqlite_path"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token" validate:"required_with=ChatID"`
	ChatID   string `yaml:"chat_id" validate:"required_with=BotToken"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Load reads .env, then the YAML file, then applies environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	overrides := map[string]*string{
		"LOG_LEVEL":             &c.Logging.Level,
		"LOG_FORMAT":            &c.Logging.Format,
		"TELEGRAM_BOT_TOKEN":    &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":      &c.Telegram.ChatID,
		"HTTPS_PROXY":           &c.Proxy,
		"SQLITE_PATH":           &c.Recorder.SQLitePath,
		"CLICKHOUSE_DSN":        &c.Recorder.ClickHouseDSN,
		"ALPHA_VANTAGE_API_KEY": &c.Sources.Alpha.APIKey,
		"SQUARE_CSRF_TOKEN":     &c.Sources.Square.Token,
		"METRICS_LISTEN":        &c.Metrics.Listen,
		"TZINFO":                &c.Transform.Timezone,
	}
	for key, dst := range overrides {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("TRUNC"); v != "" {
		if v == "none" || v == "null" {
			c.Transform.Trunc, c.Transform.NoTrunc = nil, true
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TRUNC %q: %w", v, model.ErrInvalidArgument)
		}
		c.Transform.Trunc, c.Transform.NoTrunc = &n, false
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Transform.Trunc == nil && !c.Transform.NoTrunc {
		n := calculator.DefaultPrecision
		c.Transform.Trunc = &n
	}
	if c.Transform.PreMarketCutoff == "" {
		c.Transform.PreMarketCutoff = "09:30"
	}
	if c.Transform.PostMarketCutoff == "" {
		c.Transform.PostMarketCutoff = "16:00"
	}
	if c.Sources.Yahoo.BaseURL == "" {
		c.Sources.Yahoo.BaseURL = "https://query1.finance.yahoo.com"
	}
	if c.Sources.Alpha.BaseURL == "" {
		c.Sources.Alpha.BaseURL = "https://www.alphavantage.co"
	}
	if c.Sources.Square.BaseURL == "" {
		c.Sources.Square.BaseURL = "https://api.alphasquare.co.kr"
	}
	// Alpha Vantage free tier allows 5 requests per minute.
	if c.Sources.Alpha.Rate == 0 {
		c.Sources.Alpha.Rate = 5.0 / 60
	}
	for _, s := range []*SourceConfig{&c.Sources.Yahoo, &c.Sources.Alpha, &c.Sources.Square} {
		if s.Rate == 0 {
			s.Rate = 2
		}
		if s.Burst == 0 {
			s.Burst = 1
		}
		if s.Timeout == 0 {
			s.Timeout = 30 * time.Second
		}
		if s.Retries == 0 {
			s.Retries = 3
		}
	}
	for i := range c.Daily {
		d := &c.Daily[i]
		if d.Cron == "" {
			d.Cron = defaultDailyCron[d.Name]
		}
		if d.Table == "" {
			d.Table = "daily_" + d.Name
		}
	}
	for i := range c.Prices {
		p := &c.Prices[i]
		if p.Interval == "" {
			p.Interval = "1d"
		}
		if p.Calendar == "" {
			p.Calendar = calendar.US
			if p.Provider == "square" {
				p.Calendar = calendar.KR
			}
		}
		if p.Lookback == 0 {
			p.Lookback = 5
		}
		if p.Table == "" {
			p.Table = "prices_" + p.Name
		}
		if p.Cron == "" {
			p.Cron = "0 30 6 * * 2-6"
		}
	}
	if c.Recorder.SQLitePath == "" && c.Recorder.ClickHouseDSN == "" {
		c.Recorder.SQLitePath = "data/market_spider.db"
	}
}

// Cron schedules fire after each market's close in server-local time.
var defaultDailyCron = map[string]string{
	"nasdaq": "0 30 6 * * 2-6",
	"kospi":  "0 0 16 * * 1-5",
	"kosdaq": "0 5 16 * * 1-5",
}

// Validate checks struct constraints and the values that need parsing.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if _, err := c.TransformOptions(); err != nil {
		return err
	}
	for _, p := range c.Prices {
		if p.Provider == "square" && p.Calendar != calendar.KR {
			return fmt.Errorf("prices.%s: square only lists KRX instruments", p.Name)
		}
	}
	return nil
}

// TransformOptions converts the transform section into calculator options.
func (c *Config) TransformOptions() (calculator.Options, error) {
	opts := calculator.DefaultOptions()
	switch {
	case c.Transform.NoTrunc:
		opts.Precision = nil
	case c.Transform.Trunc != nil:
		opts = opts.WithPrecision(*c.Transform.Trunc)
	}
	if c.Transform.Timezone != "" {
		loc, err := time.LoadLocation(c.Transform.Timezone)
		if err != nil {
			return opts, fmt.Errorf("transform.tzinfo: %w", err)
		}
		opts.Location = loc
	}
	var err error
	if opts.PreMarketCutoff, err = calculator.ParseClock(c.Transform.PreMarketCutoff); err != nil {
		return opts, fmt.Errorf("transform.pre_market_cutoff: %w", err)
	}
	if opts.PostMarketCutoff, err = calculator.ParseClock(c.Transform.PostMarketCutoff); err != nil {
		return opts, fmt.Errorf("transform.post_market_cutoff: %w", err)
	}
	return opts, opts.Validate()
}

// Seed returns the drawdown seed of a daily pipeline, if configured.
func (d DailyConfig) Seed() decimal.NullDecimal {
	if d.MaxPrice == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*d.MaxPrice))
}
