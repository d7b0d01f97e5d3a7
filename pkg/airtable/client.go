// Package airtable provides a read-only Airtable client that lists table
// records page by page, spacing every request through a rate limiter.
package airtable

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/milkspot-proxy/pkg/logging"
	"github.com/Sternrassler/milkspot-proxy/pkg/ratelimit"
	"github.com/Sternrassler/milkspot-proxy/pkg/records"
)

const (
	// DefaultBaseURL is the public Airtable API.
	DefaultBaseURL = "https://api.airtable.com"

	// MaxPageSize is the largest page Airtable serves.
	MaxPageSize = 100

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Prometheus metrics for Airtable client operations.
var (
	airtableRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airtable_requests_total",
		Help: "Total Airtable requests by table and status",
	}, []string{"table", "status"})

	airtableRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "airtable_request_duration_seconds",
		Help:    "Airtable request duration in seconds by table",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"table"})

	airtableErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airtable_errors_total",
		Help: "Total Airtable errors by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// APIKey is the personal access token or API key (REQUIRED)
	APIKey string

	// BaseID identifies the Airtable base, e.g. "appXXXXXXXXXXXXXX" (REQUIRED)
	BaseID string

	// BaseURL is the API root; override for tests
	BaseURL string

	// PageSize is the default number of records per page (1..100)
	PageSize int

	// Timeout bounds a single HTTP request
	Timeout time.Duration

	// Retry selects backoff per error class; nil uses RetryConfigForErrorClass
	Retry RetryPolicy
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey, baseID string) Config {
	return Config{
		APIKey:   apiKey,
		BaseID:   baseID,
		BaseURL:  DefaultBaseURL,
		PageSize: MaxPageSize,
		Timeout:  30 * time.Second,
		Retry:    RetryConfigForErrorClass,
	}
}

// Client lists Airtable records.
type Client struct {
	httpClient *http.Client
	limiter    ratelimit.Limiter
	tracker    *ratelimit.Tracker
	config     Config
	logger     zerolog.Logger
}

// New creates a new Airtable client. Every page request waits on limiter;
// a 429 response opens a penalty window on tracker (which may be nil).
func New(cfg Config, limiter ratelimit.Limiter, tracker *ratelimit.Tracker) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.BaseID == "" {
		return nil, fmt.Errorf("base id is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = MaxPageSize
	}
	if cfg.PageSize > MaxPageSize {
		return nil, fmt.Errorf("page size must be <= %d (got %d)", MaxPageSize, cfg.PageSize)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = RetryConfigForErrorClass
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: ratelimit.Gate(limiter, tracker),
		tracker: tracker,
		config:  cfg,
		logger:  logging.NewLogger(logging.ComponentAirtable),
	}, nil
}

// ListOptions selects what to list.
type ListOptions struct {
	// View restricts and orders records by an Airtable view
	View string

	// PageSize overrides the client default when > 0
	PageSize int
}

// ListResponse is one page of the list-records endpoint.
type ListResponse struct {
	Records []records.Record `json:"records"`

	// Offset continues the listing; empty on the last page
	Offset string `json:"offset,omitempty"`
}

// ListRecords fetches the page starting at offset ("" for the first page).
// The request is rate limited and retried according to the retry policy.
func (c *Client) ListRecords(ctx context.Context, table string, opts ListOptions, offset string) (*ListResponse, error) {
	endpoint, err := c.listURL(table, opts, offset)
	if err != nil {
		return nil, err
	}

	var page *ListResponse
	err = retryWithBackoff(ctx, c.config.Retry, func() (ErrorClass, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}

		var (
			class ErrorClass
			err   error
		)
		page, class, err = c.do(ctx, table, endpoint)
		return class, err
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// do performs one HTTP request and decodes the page.
func (c *Client) do(ctx context.Context, table, endpoint string) (*ListResponse, ErrorClass, error) {
	startTime := time.Now()
	defer func() {
		airtableRequestDuration.WithLabelValues(table).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("table", table).
		Str("url", redactURL(endpoint)).
		Msg("Executing Airtable request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("table", table).Msg("HTTP request failed")
		airtableErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		airtableRequestsTotal.WithLabelValues(table, "network_error").Inc()
		if ctx.Err() != nil {
			// Our own deadline, not a flaky network
			return nil, "", err
		}
		return nil, ErrorClassNetwork, err
	}
	defer resp.Body.Close()

	airtableRequestsTotal.WithLabelValues(table, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := parseAPIError(resp.StatusCode, body)
		airtableErrorsTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()

		c.logger.Warn().
			Str("table", table).
			Int("status", resp.StatusCode).
			Str("error_class", string(apiErr.ErrorClass)).
			Str("error_type", apiErr.Type).
			Msg("Airtable request error")

		if apiErr.ErrorClass == ErrorClassRateLimit && c.tracker != nil {
			if err := c.tracker.RecordPenalty(ctx, retryAfter(resp.Header)); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to record rate limit penalty")
			}
		}
		return nil, apiErr.ErrorClass, apiErr
	}

	var page ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, "", fmt.Errorf("decode list response: %w", err)
	}
	return &page, "", nil
}

// listURL builds GET {base}/v0/{baseID}/{table}?view=&pageSize=&offset=.
func (c *Client) listURL(table string, opts ListOptions, offset string) (string, error) {
	if table == "" {
		return "", fmt.Errorf("table name is required")
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = c.config.PageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	query := url.Values{}
	if opts.View != "" {
		query.Set("view", opts.View)
	}
	query.Set("pageSize", strconv.Itoa(pageSize))
	if offset != "" {
		query.Set("offset", offset)
	}

	return fmt.Sprintf("%s/v0/%s/%s?%s",
		strings.TrimRight(c.config.BaseURL, "/"),
		url.PathEscape(c.config.BaseID),
		url.PathEscape(table),
		query.Encode(),
	), nil
}

// Pages returns an iterator over the pages of a table listing.
func (c *Client) Pages(table string, opts ListOptions) *PageIterator {
	return &PageIterator{
		client: c,
		table:  table,
		opts:   opts,
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// retryAfter reads a Retry-After header in seconds. Airtable does not
// always send one; 0 lets the tracker apply its default penalty.
func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// redactURL drops the query string so offsets do not flood debug logs.
func redactURL(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
