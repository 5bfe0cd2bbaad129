package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"MarketSpider/internal/collector"
	"MarketSpider/internal/config"
	"MarketSpider/internal/model"
	"MarketSpider/internal/pipeline"
	"MarketSpider/internal/recorder"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	dailyStart    string
	dailyEnd      string
	dailyMaxPrice float64
	dailyDryRun   bool
	dailyNotify   bool
)

var dailyCmd = &cobra.Command{
	Use:       "daily <" + strings.Join(pipeline.Names(), "|") + ">",
	Short:     "Build the daily report of one market",
	ValidArgs: pipeline.Names(),
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Long: `Builds the daily report of one market for a date window and uploads it.

Examples:
  # Latest completed NASDAQ session
  spider daily nasdaq

  # KOSPI for March 2024 with drawdown measured from 3,316.08
  spider daily kospi --start 2024-03-01 --end 2024-03-29 --max-price 3316.08

  # Print without uploading
  spider daily kosdaq --dry-run`,
	RunE: runDaily,
}

func init() {
	dailyCmd.Flags().StringVar(&dailyStart, "start", "", "first session (YYYY-MM-DD), defaults to the session before --end")
	dailyCmd.Flags().StringVar(&dailyEnd, "end", "", "last session (YYYY-MM-DD), defaults to the latest completed session")
	dailyCmd.Flags().Float64Var(&dailyMaxPrice, "max-price", 0, "seed of the drawdown running max, overrides the config")
	dailyCmd.Flags().BoolVar(&dailyDryRun, "dry-run", false, "print the reports without uploading")
	dailyCmd.Flags().BoolVar(&dailyNotify, "notify", false, "send the latest report to Telegram")
	rootCmd.AddCommand(dailyCmd)
}

func runDaily(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	start, end, err := parseWindow(dailyStart, dailyEnd)
	if err != nil {
		return err
	}
	ctx := context.Background()

	dc := config.DailyConfig{Name: args[0], Table: "daily_" + args[0]}
	for _, c := range a.cfg.Daily {
		if c.Name == args[0] {
			dc = c
		}
	}
	if dailyMaxPrice > 0 {
		dc.MaxPrice = &dailyMaxPrice
	}
	dc.Notify = dailyNotify

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if !dailyDryRun {
		if rec, err = a.recorder(ctx); err != nil {
			return err
		}
		defer rec.Close()
	}
	var n pipeline.Notifier
	if tn := a.telegram(); tn != nil {
		n = tn
	} else if dailyNotify {
		return fmt.Errorf("--notify needs telegram.bot_token and telegram.chat_id")
	}

	yahoo := collector.NewYahooFetcher(a.cfg.Sources.Yahoo, a.cfg.Proxy, a.log)
	d, err := pipeline.NewDaily(dc, a.opts, yahoo, rec, n, a.log)
	if err != nil {
		return err
	}
	reports, err := d.Run(ctx, start, end)
	printReports(reports)
	return err
}

func printReports(reports []model.DailyReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "DATE\tMARKET\tCLOSE\tCHANGE\tGAP\tDRAWDOWN\tPRE\tPOST")
	for _, r := range reports {
		ext := r.Extended
		if ext == nil {
			ext = &model.ExtendedHours{}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Date().Format(time.DateOnly), r.Market,
			cell(r.Index.Close), cell(r.Index.Change), cell(r.Index.Gap), cell(r.Index.DrawDown),
			cell(ext.PreChange), cell(ext.PostChange))
	}
}

func cell(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String()
}
