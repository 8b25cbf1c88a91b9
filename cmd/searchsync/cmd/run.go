package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/searchsync/internal/config"
	"github.com/Aman-CERP/searchsync/internal/logging"
	"github.com/Aman-CERP/searchsync/internal/metrics"
	"github.com/Aman-CERP/searchsync/pkg/searchsync"
	"github.com/Aman-CERP/searchsync/pkg/version"
)

func newRunCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the poller until interrupted",
		Long: `Install capture tables and triggers according to triggers.strategy, then
poll them and apply every change to the index until SIGINT or SIGTERM.

Only one poller may use an index directory at a time.`,
		Example: `  # Poll with the project configuration
  searchsync run

  # Expose Prometheus metrics
  searchsync run --metrics-addr :9464`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.Metrics.Listen = metricsAddr
			}
			return runPoller(ctx, cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Listen address for /metrics (overrides metrics.listen)")

	return cmd
}

// daemonLogger replaces the CLI logger with the configured rotating file
// logger, mirrored to stderr.
func daemonLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	lc := logging.DefaultConfig()
	lc.Level = cfg.Logging.Level
	if cfg.Logging.File != "" {
		lc.FilePath = cfg.Logging.File
	}
	if debugMode {
		lc.Level = "debug"
	}
	lc.Stderr = cmd.ErrOrStderr()

	logger, cleanup, err := logging.Setup(lc)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	if loggingCleanup != nil {
		loggingCleanup()
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return logger, nil
}

func runPoller(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	logger, err := daemonLogger(cmd, cfg)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	s, err := searchsync.New(ctx, searchsync.Options{
		Config:  cfg,
		Logger:  logger,
		Metrics: collector,
		Lock:    true,
	})
	if err != nil {
		return err
	}
	logger.Info("poller starting",
		slog.String("version", version.Version),
		slog.String("instance", s.Instance()),
		slog.Duration("delay", cfg.Poller.Delay))

	if err := s.Start(ctx); err != nil {
		_ = s.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collector, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Listen))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", slog.Duration("timeout", cfg.Poller.ShutdownTimeout))
		return s.Close()
	})

	return g.Wait()
}
