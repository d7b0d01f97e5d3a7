package airtable

import (
	"context"

	"github.com/Sternrassler/milkspot-proxy/pkg/pagination"
	"github.com/Sternrassler/milkspot-proxy/pkg/records"
)

// PageIterator walks a table listing by following Airtable offsets.
// It is not safe for concurrent use.
type PageIterator struct {
	client *Client
	table  string
	opts   ListOptions

	offset  string
	fetched int
	done    bool
}

// Next fetches the next page. After the last page, or after an error, it
// returns pagination.ErrNoMorePages.
func (it *PageIterator) Next(ctx context.Context) ([]records.Record, error) {
	if it.done {
		return nil, pagination.ErrNoMorePages
	}

	page, err := it.client.ListRecords(ctx, it.table, it.opts, it.offset)
	if err != nil {
		it.done = true
		return nil, err
	}

	it.fetched++
	if page.Offset == "" {
		it.done = true
	}
	it.offset = page.Offset

	it.client.logger.Debug().
		Str("table", it.table).
		Int("page", it.fetched-1).
		Int("records", len(page.Records)).
		Bool("last", it.done).
		Msg("Page fetched")

	return page.Records, nil
}

// Fetched returns how many pages have been delivered.
func (it *PageIterator) Fetched() int {
	return it.fetched
}
