package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/milkspot-proxy/pkg/records"
)

// ErrNoMorePages is returned by a PageIterator once every page has been delivered.
var ErrNoMorePages = errors.New("no more pages")

// PageIterator yields upstream pages one at a time, in order.
type PageIterator interface {
	// Next requests and returns the next page. It returns ErrNoMorePages
	// when the sequence is complete.
	Next(ctx context.Context) ([]records.Record, error)
}

// Outcome is how a walk ended.
type Outcome string

const (
	// Found means the target page arrived and was projected.
	Found Outcome = "found"

	// Exhausted means the upstream ran out of pages before the target.
	Exhausted Outcome = "exhausted"

	// Failed means the upstream reported an error before the target.
	Failed Outcome = "failed"
)

// Result is the terminal state of one walk.
type Result struct {
	Outcome Outcome

	// Records holds the projected target page. Empty unless Outcome is Found.
	Records records.ResultSet

	// PagesFetched counts pages delivered by the iterator, including the target.
	PagesFetched int

	// Err is set when Outcome is Failed.
	Err error
}

// Walk advances it until page target arrives, then projects that page with
// table. It never requests a page beyond the target.
func Walk(ctx context.Context, it PageIterator, table records.Table, target int, logger zerolog.Logger) Result {
	start := time.Now()
	if target < 0 {
		return Result{Outcome: Failed, Records: records.ResultSet{}, Err: fmt.Errorf("invalid target page %d", target)}
	}

	for current := 0; ; current++ {
		page, err := it.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrNoMorePages) {
				logger.Debug().
					Int("target_page", target).
					Int("pages", current).
					Dur("duration", time.Since(start)).
					Msg("Upstream exhausted before target page")
				return Result{Outcome: Exhausted, Records: records.ResultSet{}, PagesFetched: current}
			}
			logger.Warn().
				Err(err).
				Int("target_page", target).
				Int("page", current).
				Msg("Page fetch failed")
			return Result{
				Outcome:      Failed,
				Records:      records.ResultSet{},
				PagesFetched: current,
				Err:          fmt.Errorf("fetch page %d: %w", current, err),
			}
		}

		if current == target {
			rs := table.ProjectAll(page)
			logger.Debug().
				Int("target_page", target).
				Int("records", len(rs)).
				Dur("duration", time.Since(start)).
				Msg("Target page found")
			return Result{Outcome: Found, Records: rs, PagesFetched: current + 1}
		}
	}
}
