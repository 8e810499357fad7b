package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/prism/internal/app"
	"github.com/newthinker/prism/internal/config"
	"github.com/newthinker/prism/internal/logger"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "prism",
	Short: "PRISM - strategy backtesting engine",
	Long: `PRISM runs user-written trading strategies against historical market data
in a sandbox and reports the resulting trades and performance metrics.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(log *zap.Logger) (*config.Config, error) {
	if cfgFile == "" {
		log.Debug("no config file specified, using defaults")
		return config.Defaults(), nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// withApp builds the engine from config and hands it to fn.
func withApp(fn func(a *app.App, log *zap.Logger) error) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a, log)
}
