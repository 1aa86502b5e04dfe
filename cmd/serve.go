package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/stagewise/internal/analysis"
	cfgpkg "github.com/KaramelBytes/stagewise/internal/config"
	"github.com/KaramelBytes/stagewise/internal/ingest"
	"github.com/KaramelBytes/stagewise/internal/metrics"
	"github.com/KaramelBytes/stagewise/internal/server"
	"github.com/KaramelBytes/stagewise/internal/session"
	"github.com/KaramelBytes/stagewise/internal/wizard"
)

const shutdownTimeout = 10 * time.Second

var (
	serveAddr        string
	serveProvider    string
	serveURL         string
	serveLatencyMs   int
	serveSubmitLimit int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wizard HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		applyServeFlags(cmd, c)

		logger, err := buildLogger(c)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		m := metrics.New()
		svc, err := analysis.New(c.AnalysisProvider, analysis.Config{
			BaseURL:     c.AnalysisURL,
			HTTPTimeout: c.HTTPTimeout(),
			RetryMax:    c.RetryMaxAttempts,
			BaseDelay:   c.RetryBaseDelay(),
			MaxDelay:    c.RetryMaxDelay(),
			Latency:     time.Duration(serveLatencyMs) * time.Millisecond,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		ctrlOpt := wizard.Options{
			Service:       svc,
			Logger:        logger,
			Metrics:       m,
			Ingest:        ingest.Options{ProfileRows: c.ProfileRows},
			SubmitTimeout: time.Duration(serveSubmitLimit) * time.Second,
		}
		store := session.NewStore(c.SessionTTL(), func(id string) *wizard.Controller {
			return wizard.NewController(id, ctrlOpt)
		}, logger, m)

		srv := server.New(server.Options{
			Store:          store,
			Logger:         logger,
			Metrics:        m,
			CORSOrigins:    c.CORSOrigins,
			MaxUploadBytes: c.MaxUploadBytes(),
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Run(c.ListenAddr) }()
		logger.Info("stagewise started",
			zap.String("addr", c.ListenAddr),
			zap.String("provider", c.AnalysisProvider),
			zap.String("environment", c.Environment))

		select {
		case err := <-errCh:
			return fmt.Errorf("server: %w", err)
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	},
}

func applyServeFlags(cmd *cobra.Command, c *cfgpkg.Global) {
	f := cmd.Flags()
	if f.Changed("addr") {
		c.ListenAddr = serveAddr
	}
	if f.Changed("provider") {
		c.AnalysisProvider = serveProvider
	}
	if f.Changed("analysis-url") {
		c.AnalysisURL = serveURL
		if !f.Changed("provider") {
			c.AnalysisProvider = analysis.ProviderHTTP
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides listen_addr)")
	serveCmd.Flags().StringVar(&serveProvider, "provider", "", "analysis provider: http|placeholder (overrides analysis_provider)")
	serveCmd.Flags().StringVar(&serveURL, "analysis-url", "", "analysis service base URL; implies --provider http")
	serveCmd.Flags().IntVar(&serveLatencyMs, "placeholder-latency-ms", 0, "simulated latency of the placeholder provider")
	serveCmd.Flags().IntVar(&serveSubmitLimit, "submit-timeout", 0, "overall limit for one analysis submission in seconds (0 = none)")
}
