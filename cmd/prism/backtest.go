package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/prism/internal/app"
	"github.com/newthinker/prism/internal/backtest"
	"github.com/newthinker/prism/internal/strategy"
)

var (
	backtestSymbols    string
	backtestFrom       string
	backtestTo         string
	backtestInterval   string
	backtestFile       string
	backtestCapital    float64
	backtestCommission float64
	backtestTrades     bool
	backtestJSON       bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest [strategy]",
	Short: "Run a backtest on a strategy",
	Long: `Run a library strategy, or a program file given with --file, against historical
data and show performance statistics. Several comma-separated symbols run in parallel.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&backtestSymbols, "symbol", "", "Symbol(s) to backtest, comma-separated (required)")
	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "Start date YYYY-MM-DD (required)")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "End date YYYY-MM-DD (default today)")
	backtestCmd.Flags().StringVar(&backtestInterval, "interval", "1d", "Bar interval")
	backtestCmd.Flags().StringVarP(&backtestFile, "file", "f", "", "Strategy program file")
	backtestCmd.Flags().Float64Var(&backtestCapital, "capital", 0, "Initial capital (default from config)")
	backtestCmd.Flags().Float64Var(&backtestCommission, "commission", -1, "Commission rate (default from config)")
	backtestCmd.Flags().BoolVar(&backtestTrades, "trades", false, "Print the trade ledger")
	backtestCmd.Flags().BoolVar(&backtestJSON, "json", false, "Print results as JSON")

	backtestCmd.MarkFlagRequired("symbol")
	backtestCmd.MarkFlagRequired("from")

	rootCmd.AddCommand(backtestCmd)
}

func parseDates(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from date format (expected YYYY-MM-DD): %w", err)
	}
	end := time.Now().UTC().Truncate(24 * time.Hour)
	if to != "" {
		if end, err = time.Parse(time.DateOnly, to); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date format (expected YYYY-MM-DD): %w", err)
		}
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date must be after start date")
	}
	return start, end, nil
}

func splitSymbols(s string) []string {
	var out []string
	for _, sym := range strings.Split(s, ",") {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}

// resolveProgram loads the program from --file or the library key in args.
func resolveProgram(ctx context.Context, a *app.App, args []string, file string) (strategy.Program, error) {
	if file != "" {
		src, err := os.ReadFile(file)
		if err != nil {
			return strategy.Program{}, fmt.Errorf("reading program: %w", err)
		}
		return strategy.Program{Name: file, Source: string(src)}, nil
	}
	if len(args) == 0 {
		return strategy.Program{}, fmt.Errorf("give a strategy key or --file")
	}
	entry, err := a.Library().Get(ctx, args[0])
	if err != nil {
		return strategy.Program{}, err
	}
	return entry.Program(), nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	start, end, err := parseDates(backtestFrom, backtestTo)
	if err != nil {
		return err
	}
	symbols := splitSymbols(backtestSymbols)
	if len(symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}

	return withApp(func(a *app.App, log *zap.Logger) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		program, err := resolveProgram(ctx, a, args, backtestFile)
		if err != nil {
			return err
		}
		if err := strategy.Validate(program); err != nil {
			return err
		}

		var commission *float64
		if backtestCommission >= 0 {
			commission = &backtestCommission
		}

		bt := a.Backtester()
		reqs := make([]backtest.Request, 0, len(symbols))
		loaded := make([]string, 0, len(symbols))
		for _, sym := range symbols {
			table, err := bt.LoadTable(ctx, sym, start, end, backtestInterval)
			if err != nil {
				if len(symbols) == 1 {
					return err
				}
				log.Warn("skipping symbol", zap.String("symbol", sym), zap.Error(err))
				continue
			}
			reqs = append(reqs, backtest.Request{
				Program:        program,
				Table:          table,
				InitialCapital: backtestCapital,
				CommissionRate: commission,
			})
			loaded = append(loaded, sym)
		}
		if len(reqs) == 0 {
			return fmt.Errorf("no market data for %s", strings.Join(symbols, ", "))
		}

		results := bt.RunBatch(ctx, reqs, a.Parallelism())
		out := cmd.OutOrStdout()

		if backtestJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if len(results) == 1 {
				if results[0].Err != nil {
					return results[0].Err
				}
				return enc.Encode(results[0].Result)
			}
			return enc.Encode(batchJSON(loaded, results))
		}

		if len(results) == 1 {
			if results[0].Err != nil {
				return results[0].Err
			}
			writeReport(out, results[0].Result, backtestTrades)
			return nil
		}
		writeSummary(out, loaded, results)
		return nil
	})
}

type batchEntry struct {
	Symbol string           `json:"symbol"`
	Result *backtest.Result `json:"result,omitempty"`
	Code   string           `json:"error_code,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func batchJSON(symbols []string, results []backtest.BatchResult) []batchEntry {
	out := make([]batchEntry, len(results))
	for i, br := range results {
		out[i] = batchEntry{Symbol: symbols[br.Index], Result: br.Result}
		if br.Err != nil {
			out[i].Code = br.Err.Code
			out[i].Error = br.Err.Detail()
		}
	}
	return out
}
