// Package testutil provides testing utilities for the milkspot proxy.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/milkspot-proxy/pkg/records"
)

// MockResponse defines a canned response for an injected failure.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is one request seen by the mock server.
type RecordedRequest struct {
	Table    string
	View     string
	PageSize string
	Offset   string
	Header   http.Header
	At       time.Time
}

// MockAirtable is a configurable mock of the Airtable list-records endpoint.
// Pages are chained with offsets "page-1", "page-2", ...; the last page
// carries no offset.
type MockAirtable struct {
	server *httptest.Server

	mu       sync.RWMutex
	tables   map[string][][]records.Record
	failures map[string][]MockResponse
	requests []RecordedRequest
}

// NewMockAirtable creates a new mock Airtable server.
func NewMockAirtable() *MockAirtable {
	mock := &MockAirtable{
		tables:   make(map[string][][]records.Record),
		failures: make(map[string][]MockResponse),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockAirtable) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAirtable) Close() {
	m.server.Close()
}

// SetPages configures the pages served for a table.
func (m *MockAirtable) SetPages(table string, pages ...[]records.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = pages
}

// FailPage queues responses returned instead of the given page, one per
// request, before the page is served normally.
func (m *MockAirtable) FailPage(table string, page int, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := failureKey(table, page)
	m.failures[key] = append(m.failures[key], responses...)
}

// Reset clears recorded requests.
func (m *MockAirtable) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAirtable) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Requests returns a copy of the recorded requests.
func (m *MockAirtable) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockAirtable) handle(w http.ResponseWriter, r *http.Request) {
	// Path: /v0/{baseID}/{table}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "v0" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown path")
		return
	}
	table := parts[2]
	query := r.URL.Query()

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Table:    table,
		View:     query.Get("view"),
		PageSize: query.Get("pageSize"),
		Offset:   query.Get("offset"),
		Header:   r.Header.Clone(),
		At:       time.Now(),
	})
	pages, ok := m.tables[table]
	m.mu.Unlock()

	if r.Header.Get("Authorization") == "" {
		writeError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Authentication required")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "TABLE_NOT_FOUND", fmt.Sprintf("Could not find table %s", table))
		return
	}

	page := 0
	if offset := query.Get("offset"); offset != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(offset, "page-"))
		if err != nil || n <= 0 || n >= len(pages) {
			writeError(w, http.StatusUnprocessableEntity, "LIST_RECORDS_ITERATOR_NOT_AVAILABLE", "invalid offset")
			return
		}
		page = n
	}

	if resp, injected := m.nextFailure(table, page); injected {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
		return
	}

	body := struct {
		Records []records.Record `json:"records"`
		Offset  string           `json:"offset,omitempty"`
	}{Records: []records.Record{}}
	if len(pages) > 0 {
		body.Records = pages[page]
	}
	if page+1 < len(pages) {
		body.Offset = fmt.Sprintf("page-%d", page+1)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body)
}

func (m *MockAirtable) nextFailure(table string, page int) (MockResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := failureKey(table, page)
	queued := m.failures[key]
	if len(queued) == 0 {
		return MockResponse{}, false
	}
	m.failures[key] = queued[1:]
	return queued[0], true
}

func failureKey(table string, page int) string {
	return table + "#" + strconv.Itoa(page)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"type":%q,"message":%q}}`, errType, message)
}

// NewRateLimitResponse creates a 429 Too Many Requests response as Airtable sends it.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"errors":[{"error":"RATE_LIMIT_REACHED","message":"Rate limit exceeded. Please try again later"}]}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error":{"type":"SERVER_ERROR","message":"Internal server error"}}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 response for an unknown view.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error":{"type":"VIEW_NAME_NOT_FOUND","message":"Could not find view"}}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// MilkspotPage builds n milkspot records with ids prefixed by prefix.
func MilkspotPage(prefix string, n int) []records.Record {
	page := make([]records.Record, 0, n)
	for i := 0; i < n; i++ {
		page = append(page, records.Record{
			ID: fmt.Sprintf("%s%d", prefix, i),
			Fields: map[string]any{
				"name":      fmt.Sprintf("Milkspot %s%d", prefix, i),
				"address":   "1 Main St",
				"lat":       40.7,
				"lng":       -73.9,
				"category":  "Library",
				"Amenities": []any{"recAmenity"},
				"verified":  true,
			},
		})
	}
	return page
}

// ReviewPage builds n review records with ids prefixed by prefix.
func ReviewPage(prefix string, n int) []records.Record {
	page := make([]records.Record, 0, n)
	for i := 0; i < n; i++ {
		page = append(page, records.Record{
			ID: fmt.Sprintf("%s%d", prefix, i),
			Fields: map[string]any{
				"Timestamp":  "2019-05-01T12:00:00.000Z",
				"Milkspot":   []any{"recMilk"},
				"Recommend?": "Yes",
			},
		})
	}
	return page
}

// AmenityPage builds n amenity records with ids prefixed by prefix.
func AmenityPage(prefix string, n int) []records.Record {
	page := make([]records.Record, 0, n)
	for i := 0; i < n; i++ {
		page = append(page, records.Record{
			ID: fmt.Sprintf("%s%d", prefix, i),
			Fields: map[string]any{
				"Name":             fmt.Sprintf("Amenity %s%d", prefix, i),
				"Glitch Image URL": "https://cdn.example.com/amenity.png",
			},
		})
	}
	return page
}
