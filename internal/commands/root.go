package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"MarketSpider/internal/calculator"
	"MarketSpider/internal/config"
	"MarketSpider/internal/logger"
	"MarketSpider/internal/notifier"
	"MarketSpider/internal/recorder"

	"github.com/guregu/null/v6"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgPath  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "spider",
	Short: "Market price collector",
	Long: `Collects daily and intraday prices from Yahoo Finance, Alpha Vantage and
Alpha Square, derives change, drawdown and extended-hours columns, and uploads
the results to SQLite and ClickHouse.

Daily market reports (NASDAQ, KOSPI, KOSDAQ) can be announced on Telegram.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	def := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		def = v
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", def, "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
}

// app is the state every subcommand starts from.
type app struct {
	cfg  *config.Config
	log  *logrus.Logger
	opts calculator.Options
}

func setup() (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.TransformOptions()
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, opts: opts}, nil
}

func (a *app) recorder(ctx context.Context) (recorder.Recorder, error) {
	rec, err := recorder.New(ctx, a.cfg.Recorder, a.log)
	if err != nil {
		return nil, fmt.Errorf("init recorder: %w", err)
	}
	return rec, nil
}

// telegram returns nil when no bot is configured.
func (a *app) telegram() *notifier.TelegramNotifier {
	if a.cfg.Telegram.BotToken == "" {
		return nil
	}
	return notifier.NewTelegramNotifier(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, a.cfg.Proxy, a.log)
}

// parseDate reads an optional YYYY-MM-DD flag value.
func parseDate(s string) (null.Time, error) {
	if s == "" {
		return null.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return null.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	return null.TimeFrom(t), nil
}

func parseWindow(start, end string) (null.Time, null.Time, error) {
	from, err := parseDate(start)
	if err != nil {
		return from, null.Time{}, err
	}
	to, err := parseDate(end)
	return from, to, err
}
