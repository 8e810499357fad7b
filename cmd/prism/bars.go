package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/prism/internal/app"
)

var barsCmd = &cobra.Command{
	Use:   "bars",
	Short: "Manage the local bar store",
}

var (
	barsFrom     string
	barsTo       string
	barsInterval string
	barsSource   string
)

var barsImportCmd = &cobra.Command{
	Use:   "import <symbol>...",
	Short: "Download history from a remote collector into the parquet store",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBarsImport,
}

func init() {
	barsImportCmd.Flags().StringVar(&barsFrom, "from", "", "Start date YYYY-MM-DD (required)")
	barsImportCmd.Flags().StringVar(&barsTo, "to", "", "End date YYYY-MM-DD (default today)")
	barsImportCmd.Flags().StringVar(&barsInterval, "interval", "1d", "Bar interval")
	barsImportCmd.Flags().StringVar(&barsSource, "source", "yahoo", "Collector to download from (yahoo, eastmoney, binance)")
	barsImportCmd.MarkFlagRequired("from")

	rootCmd.AddCommand(barsCmd)
	barsCmd.AddCommand(barsImportCmd)
}

func runBarsImport(cmd *cobra.Command, args []string) error {
	start, end, err := parseDates(barsFrom, barsTo)
	if err != nil {
		return err
	}

	return withApp(func(a *app.App, log *zap.Logger) error {
		store := a.Parquet()
		if store == nil {
			return fmt.Errorf("collectors.parquet must be enabled to import bars")
		}
		if barsSource == store.Name() {
			return fmt.Errorf("cannot import from the parquet store into itself")
		}
		source, ok := a.Collectors().Get(barsSource)
		if !ok {
			return fmt.Errorf("collectors.%s must be enabled to import bars", barsSource)
		}

		for _, symbol := range splitSymbols(strings.Join(args, ",")) {
			bars, err := source.FetchHistory(cmd.Context(), symbol, start, end, barsInterval)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", symbol, err)
			}
			for i := range bars {
				bars[i].Interval = barsInterval
			}
			if err := store.WriteBars(symbol, bars); err != nil {
				return fmt.Errorf("writing %s: %w", symbol, err)
			}
			log.Info("bars imported", zap.String("symbol", symbol), zap.Int("bars", len(bars)))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bars\n", symbol, len(bars))
		}
		return nil
	})
}
