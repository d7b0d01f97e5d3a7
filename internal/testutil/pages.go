package testutil

import (
	"context"
	"sync"

	"github.com/Sternrassler/milkspot-proxy/pkg/pagination"
	"github.com/Sternrassler/milkspot-proxy/pkg/records"
)

// StaticPages is an in-memory pagination.PageIterator.
type StaticPages struct {
	Pages [][]records.Record

	// FailAt makes the call that would deliver this page index return Err.
	// Negative disables failure injection.
	FailAt int
	Err    error

	mu    sync.Mutex
	next  int
	calls int
}

// NewStaticPages creates an iterator over the given pages.
func NewStaticPages(pages ...[]records.Record) *StaticPages {
	return &StaticPages{Pages: pages, FailAt: -1}
}

// Next implements pagination.PageIterator.
func (s *StaticPages) Next(ctx context.Context) ([]records.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.FailAt >= 0 && s.next == s.FailAt {
		return nil, s.Err
	}
	if s.next >= len(s.Pages) {
		return nil, pagination.ErrNoMorePages
	}
	page := s.Pages[s.next]
	s.next++
	return page, nil
}

// Calls returns how many times Next was called.
func (s *StaticPages) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
