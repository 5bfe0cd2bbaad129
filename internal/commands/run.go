package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MarketSpider/internal/collector"
	"MarketSpider/internal/pipeline"
	"MarketSpider/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var runOnStart bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every configured pipeline on its cron schedule",
	Long: `Starts the scheduler with every daily pipeline and price job from the
config file, serves Prometheus metrics when metrics.listen is set, and answers
/jobs and /run commands from the configured Telegram chat.`,
	RunE: runDaemon,
}

func init() {
	runCmd.Flags().BoolVar(&runOnStart, "run-on-start", os.Getenv("RUN_ON_START") == "true", "run every job once right after startup")
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	log := a.log
	log.Info("MarketSpider starting...")

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec, err := a.recorder(ctx)
	if err != nil {
		return err
	}
	defer rec.Close()

	tn := a.telegram()
	var (
		dailyNotifier pipeline.Notifier
		alerter       scheduler.Alerter
	)
	if tn != nil {
		dailyNotifier, alerter = tn, tn
	}

	sched := scheduler.NewScheduler(ctx, alerter, log)

	yahoo := collector.NewYahooFetcher(a.cfg.Sources.Yahoo, a.cfg.Proxy, log)
	for _, dc := range a.cfg.Daily {
		d, err := pipeline.NewDaily(dc, a.opts, yahoo, rec, dailyNotifier, log)
		if err != nil {
			return err
		}
		if err := sched.RegisterDaily(d, dc.Cron); err != nil {
			return err
		}
	}
	for _, pc := range a.cfg.Prices {
		fetcher, err := collector.New(pc.Provider, a.cfg.Sources, a.cfg.Proxy, log)
		if err != nil {
			return err
		}
		j, err := pipeline.NewPriceJob(pc, a.opts, fetcher, rec, log)
		if err != nil {
			return err
		}
		if err := sched.RegisterPrices(j, pc.Cron); err != nil {
			return err
		}
	}
	if len(sched.Names()) == 0 {
		log.Warn("no daily pipeline or price job configured")
	}
	sched.Start()
	defer sched.Stop()

	if addr := a.cfg.Metrics.Listen; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("metrics server: %v", err)
			}
		}()
		defer srv.Close()
		log.Infof("metrics listening on %s", addr)
	}

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info("Telegram polling started")
	}

	if runOnStart {
		log.Info("run-on-start enabled, executing every job now")
		go func() {
			for _, name := range sched.Names() {
				_ = sched.RunNow(name)
			}
		}()
	}

	log.Info("MarketSpider is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping...")
	cancel()
	return nil
}
