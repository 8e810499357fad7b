package backtest

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/newthinker/prism/internal/core"
)

// BatchResult pairs a request index with its outcome.
type BatchResult struct {
	Index  int
	Result *Result
	Err    *core.Error
}

// RunBatch runs independent backtests with at most parallelism in flight.
// A failing request does not stop the others; results keep request order.
func (b *Backtester) RunBatch(ctx context.Context, reqs []Request, parallelism int) []BatchResult {
	if parallelism <= 0 {
		parallelism = 1
	}

	results := make([]BatchResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, req := range reqs {
		g.Go(func() error {
			res, err := b.Run(gctx, req)
			results[i] = BatchResult{Index: i, Result: res, Err: core.AsError(err)}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
