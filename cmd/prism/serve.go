package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/prism/internal/api"
	"github.com/newthinker/prism/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the PRISM API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App, log *zap.Logger) error {
		cfg := a.Config()

		deps := api.Dependencies{
			Backtester: a.Backtester(),
			Library:    a.Library(),
			Jobs:       a.Jobs(),
			Generator:  a.Generator(),
		}
		if n := a.Notifiers(); n.Len() > 0 {
			deps.Notifier = n
		}
		metricsPath := ""
		if m := a.Metrics(); m != nil {
			deps.Metrics = m
			metricsPath = cfg.Metrics.Path
		}

		server, err := api.NewServer(api.Config{
			Host:        cfg.Server.Host,
			Port:        cfg.Server.Port,
			APIKey:      cfg.Server.APIKey,
			MetricsPath: metricsPath,
		}, deps, log)
		if err != nil {
			return fmt.Errorf("creating server: %w", err)
		}

		if cfg.Server.APIKey == "" {
			log.Warn("api key not set, /api/v1 is unauthenticated")
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-errCh:
			return err
		case <-quit:
		}

		log.Info("shutting down PRISM server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return server.Shutdown(ctx)
	})
}
