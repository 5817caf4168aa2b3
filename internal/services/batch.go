package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/irfndi/tradeyodha-signals/internal/models"
)

// TickerFunc processes one ticker and reports its outcome.
type TickerFunc func(ctx context.Context, ticker string) models.TickerResult

// RunBatched processes tickers in consecutive batches. Tickers within a batch
// run concurrently and each is isolated: a panic becomes that ticker's error
// result. Tickers never started because ctx ended report the context error.
// Results keep the input order.
func RunBatched(ctx context.Context, tickers []string, batchSize int, fn TickerFunc) []models.TickerResult {
	if batchSize <= 0 {
		batchSize = 1
	}
	results := make([]models.TickerResult, len(tickers))

	for start := 0; start < len(tickers); start += batchSize {
		end := start + batchSize
		if end > len(tickers) {
			end = len(tickers)
		}

		if err := ctx.Err(); err != nil {
			for i := start; i < len(tickers); i++ {
				results[i] = errorResult(tickers[i], err.Error())
			}
			break
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						results[i] = errorResult(tickers[i], fmt.Sprintf("panic: %v", r))
					}
				}()
				results[i] = fn(ctx, tickers[i])
			}(i)
		}
		wg.Wait()
	}

	return results
}

func errorResult(ticker, message string) models.TickerResult {
	return models.TickerResult{Ticker: ticker, Status: models.TickerStatusError, Message: message}
}

// UniverseSource lists the tickers users are watching.
type UniverseSource interface {
	TrackedTickers(ctx context.Context, limit int) ([]string, error)
}

// ResolveUniverse merges the core tickers with the watchlist, upper-cased and
// de-duplicated, core first, capped at maxTickers when it is positive.
func ResolveUniverse(ctx context.Context, source UniverseSource, core []string, maxTickers int) ([]string, error) {
	limit := maxTickers
	if limit <= 0 {
		limit = 10_000
	}

	watched, err := source.TrackedTickers(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracked tickers: %w", err)
	}

	seen := make(map[string]bool, len(core)+len(watched))
	universe := make([]string, 0, len(core)+len(watched))
	for _, group := range [][]string{core, watched} {
		for _, t := range group {
			t = strings.ToUpper(strings.TrimSpace(t))
			if t == "" || seen[t] {
				continue
			}
			if maxTickers > 0 && len(universe) >= maxTickers {
				return universe, nil
			}
			seen[t] = true
			universe = append(universe, t)
		}
	}
	return universe, nil
}

// summarize folds per-ticker results into the run counters.
func summarize(summary *models.RunSummary, results []models.TickerResult) {
	summary.Results = results
	summary.Tickers = len(results)
	for _, r := range results {
		summary.SignalsDetected += r.Signals
		summary.AlertsCreated += r.Alerts
	}
}
