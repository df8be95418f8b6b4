package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"CryptoHist/internal/model"
)

// ProgressFunc observes batch progress. i is 1-based. Calls are serialized.
type ProgressFunc func(i, total int, symbol string)

// networkCounter is implemented by page fetchers that count HTTP requests.
type networkCounter interface {
	NetworkFetches() int64
}

// SymbolFailure records one symbol that could not be fetched.
type SymbolFailure struct {
	Symbol string
	Err    error
}

// BatchResult is the outcome of FetchAll, in index order.
type BatchResult struct {
	Total     int
	Succeeded []*model.Series
	Failures  []SymbolFailure
}

// Err joins all per-symbol failures, or returns nil.
func (b *BatchResult) Err() error {
	errs := make([]error, 0, len(b.Failures))
	for _, f := range b.Failures {
		errs = append(errs, fmt.Errorf("%s: %w", f.Symbol, f.Err))
	}
	return errors.Join(errs...)
}

// FetchAll fetches every indexed symbol over r. A failing symbol does not
// stop the others; failures are collected in the result. The error is
// non-nil only when the index cannot be loaded.
func (f *Fetcher) FetchAll(ctx context.Context, r model.DateRange, force bool, progress ProgressFunc) (*BatchResult, error) {
	symbols, err := f.index.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}

	total := len(symbols)
	series := make([]*model.Series, total)
	errs := make([]error, total)

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(f.concurrency)
	f.logger.Info().Int("symbols", total).Int("concurrency", f.concurrency).Bool("force", force).Msg("batch started")

	for i, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		g.Go(func() error {
			if progress != nil {
				mu.Lock()
				progress(i+1, total, symbol)
				mu.Unlock()
			}
			s, err := f.FetchBySymbol(ctx, symbol, r, force)
			if err != nil {
				f.logger.Error().Err(err).Str("symbol", symbol).Msg("symbol fetch failed")
			}
			series[i], errs[i] = s, err
			return nil
		})
	}
	_ = g.Wait()

	res := &BatchResult{Total: total}
	for i, symbol := range symbols {
		if errs[i] != nil {
			res.Failures = append(res.Failures, SymbolFailure{Symbol: symbol, Err: errs[i]})
			continue
		}
		res.Succeeded = append(res.Succeeded, series[i])
	}
	ev := f.logger.Info().Int("succeeded", len(res.Succeeded)).Int("failed", len(res.Failures))
	if c, ok := f.pages.(networkCounter); ok {
		ev = ev.Int64("network_fetches", c.NetworkFetches())
	}
	ev.Msg("batch finished")
	return res, nil
}
