package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"MarketSpider/internal/calendar"
	"MarketSpider/internal/collector"
	"MarketSpider/internal/config"
	"MarketSpider/internal/model"
	"MarketSpider/internal/pipeline"
	"MarketSpider/internal/recorder"

	"github.com/spf13/cobra"
)

var (
	pricesJob      string
	pricesProvider string
	pricesSymbols  []string
	pricesInterval string
	pricesPrePost  bool
	pricesCalendar string
	pricesTable    string
	pricesStart    string
	pricesEnd      string
	pricesDryRun   bool
)

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Collect prices for a symbol list",
	Long: `Collects prices for a configured price job or an ad-hoc symbol list,
derives change columns per instrument and uploads them.

Examples:
  # Run the configured job "us_daily" for its look-back window
  spider prices --job us_daily

  # Five-minute Samsung Electronics bars from Alpha Square
  spider prices --provider square --symbol 005930 --interval 5m --start 2024-03-04

  # Daily IBM and AAPL from Alpha Vantage, printed only
  spider prices --provider alpha --symbol IBM --symbol AAPL --dry-run`,
	RunE: runPrices,
}

func init() {
	pricesCmd.Flags().StringVar(&pricesJob, "job", "", "configured price job to run")
	pricesCmd.Flags().StringVar(&pricesProvider, "provider", "yahoo", "yahoo, alpha or square")
	pricesCmd.Flags().StringSliceVar(&pricesSymbols, "symbol", nil, "symbol or KRX code, repeatable")
	pricesCmd.Flags().StringVar(&pricesInterval, "interval", "1d", "bar interval (1d, 1wk, 1mo, 1h, 5m ...)")
	pricesCmd.Flags().BoolVar(&pricesPrePost, "prepost", false, "include extended-hours bars")
	pricesCmd.Flags().StringVar(&pricesCalendar, "calendar", "", "trading calendar (US, KR), defaults by provider")
	pricesCmd.Flags().StringVar(&pricesTable, "table", "prices_adhoc", "destination table")
	pricesCmd.Flags().StringVar(&pricesStart, "start", "", "first session (YYYY-MM-DD)")
	pricesCmd.Flags().StringVar(&pricesEnd, "end", "", "last session (YYYY-MM-DD)")
	pricesCmd.Flags().BoolVar(&pricesDryRun, "dry-run", false, "print the rows without uploading")
	rootCmd.AddCommand(pricesCmd)
}

func priceJobConfig(cfg *config.Config) (config.PriceJobConfig, error) {
	if pricesJob != "" {
		for _, p := range cfg.Prices {
			if p.Name == pricesJob {
				return p, nil
			}
		}
		return config.PriceJobConfig{}, fmt.Errorf("no price job named %q in %s", pricesJob, cfgPath)
	}
	if len(pricesSymbols) == 0 {
		return config.PriceJobConfig{}, fmt.Errorf("either --job or --symbol must be specified")
	}
	cal := pricesCalendar
	if cal == "" {
		cal = calendar.US
		if pricesProvider == "square" {
			cal = calendar.KR
		}
	}
	return config.PriceJobConfig{
		Name:     "adhoc",
		Provider: pricesProvider,
		Symbols:  pricesSymbols,
		Interval: pricesInterval,
		PrePost:  pricesPrePost,
		Calendar: cal,
		Table:    pricesTable,
	}, nil
}

func runPrices(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	pc, err := priceJobConfig(a.cfg)
	if err != nil {
		return err
	}
	start, end, err := parseWindow(pricesStart, pricesEnd)
	if err != nil {
		return err
	}
	ctx := context.Background()

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if !pricesDryRun {
		if rec, err = a.recorder(ctx); err != nil {
			return err
		}
		defer rec.Close()
	}
	fetcher, err := collector.New(pc.Provider, a.cfg.Sources, a.cfg.Proxy, a.log)
	if err != nil {
		return err
	}
	j, err := pipeline.NewPriceJob(pc, a.opts, fetcher, rec, a.log)
	if err != nil {
		return err
	}
	rows, err := j.Run(ctx, start, end)
	printRows(rows)
	return err
}

func printRows(rows model.Table) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "KEY\tTIME\tOPEN\tHIGH\tLOW\tCLOSE\tVOLUME\tCHANGE")
	for _, r := range rows {
		at := r.Date.Format(time.DateOnly)
		if r.Datetime.Valid {
			at = r.Datetime.Time.Format("2006-01-02 15:04")
		}
		volume := "-"
		if r.Volume.Valid {
			volume = fmt.Sprint(r.Volume.Int64)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Key(), at, cell(r.Open), cell(r.High), cell(r.Low), cell(r.Close), volume, cell(r.Change))
	}
}
