//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/milkspot-proxy/internal/testutil"
	"github.com/Sternrassler/milkspot-proxy/pkg/airtable"
	"github.com/Sternrassler/milkspot-proxy/pkg/cache"
	"github.com/Sternrassler/milkspot-proxy/pkg/proxy"
	"github.com/Sternrassler/milkspot-proxy/pkg/ratelimit"
	"github.com/Sternrassler/milkspot-proxy/pkg/records"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// newInstance wires one proxy process against the shared Redis and mock upstream.
func newInstance(t *testing.T, redisClient *redis.Client, mock *testutil.MockAirtable, interval time.Duration) *httptest.Server {
	t.Helper()

	limiter := ratelimit.NewRedis(redisClient, ratelimit.Config{MinInterval: interval}, zerolog.Nop())
	tracker := ratelimit.NewTracker(redisClient, zerolog.Nop())

	cfg := airtable.DefaultConfig("keyTest", "appTest")
	cfg.BaseURL = mock.URL()
	client, err := airtable.New(cfg, limiter, tracker)
	if err != nil {
		t.Fatalf("airtable.New: %v", err)
	}

	store := cache.NewRedisStore(redisClient, cache.DefaultRedisPrefix)
	coordinator, err := proxy.New(store, proxy.AirtableSource(client, 0), proxy.DefaultConfig())
	if err != nil {
		t.Fatalf("proxy.New: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /milkspots/{page}", coordinator.ServeTable(records.Milkspots, "Grid view"))
	mux.HandleFunc("GET /reviews/{page}", coordinator.ServeTable(records.Reviews, "Grid view"))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, []map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var body []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp, body
}

func TestIntegration_SharedCacheAcrossInstances(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockAirtable()
	defer mock.Close()
	mock.SetPages("Milkspots", testutil.MilkspotPage("a", 2), testutil.MilkspotPage("b", 2))

	first := newInstance(t, redisClient, mock, 10*time.Millisecond)
	second := newInstance(t, redisClient, mock, 10*time.Millisecond)

	resp, body := get(t, first.URL+"/milkspots/1")
	if resp.Header.Get(proxy.HeaderCache) != "MISS" || len(body) != 2 {
		t.Fatalf("first instance: X-Cache=%s records=%d", resp.Header.Get(proxy.HeaderCache), len(body))
	}

	resp, body = get(t, second.URL+"/milkspots/1")
	if resp.Header.Get(proxy.HeaderCache) != "HIT" {
		t.Errorf("second instance should hit the shared cache, X-Cache=%s", resp.Header.Get(proxy.HeaderCache))
	}
	if len(body) != 2 || body[0]["id"] != "b0" {
		t.Errorf("unexpected records from shared cache: %v", body)
	}
	if mock.GetRequestCount() != 2 {
		t.Errorf("upstream requests = %d, want 2", mock.GetRequestCount())
	}
}

func TestIntegration_SharedLimiterSpacesInstances(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockAirtable()
	defer mock.Close()
	mock.SetPages("Milkspots", testutil.MilkspotPage("m", 1))
	mock.SetPages("Reviews", testutil.ReviewPage("r", 1))

	interval := 100 * time.Millisecond
	instances := []*httptest.Server{
		newInstance(t, redisClient, mock, interval),
		newInstance(t, redisClient, mock, interval),
	}

	var wg sync.WaitGroup
	for i, path := range []string{"/milkspots/0", "/reviews/0", "/milkspots/0", "/reviews/0"} {
		wg.Add(1)
		go func(srv *httptest.Server, path string) {
			defer wg.Done()
			http.Get(srv.URL + path)
		}(instances[i%2], path)
	}
	wg.Wait()

	reqs := mock.Requests()
	if len(reqs) < 2 {
		t.Fatalf("upstream requests = %d, want at least 2", len(reqs))
	}
	starts := make([]time.Time, len(reqs))
	for i, r := range reqs {
		starts[i] = r.At
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < interval-10*time.Millisecond {
			t.Errorf("requests %d and %d only %v apart across instances", i-1, i, gap)
		}
	}
}

func TestIntegration_PenaltyWindowShared(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockAirtable()
	defer mock.Close()
	mock.SetPages("Milkspots", testutil.MilkspotPage("m", 1))
	mock.SetPages("Reviews", testutil.ReviewPage("r", 1))
	rateLimited := testutil.NewRateLimitResponse()
	rateLimited.Headers["Retry-After"] = "1"
	mock.FailPage("Milkspots", 0, rateLimited)

	first := newInstance(t, redisClient, mock, 10*time.Millisecond)
	second := newInstance(t, redisClient, mock, 10*time.Millisecond)

	// The 429 on the first instance opens the window; its retry succeeds
	// after the window closes.
	start := time.Now()
	resp, body := get(t, first.URL+"/milkspots/0")
	if resp.StatusCode != http.StatusOK || len(body) != 1 {
		t.Fatalf("first instance: status=%d records=%d", resp.StatusCode, len(body))
	}
	if elapsed := time.Since(start); elapsed < 800*time.Millisecond {
		t.Errorf("retry did not wait for the penalty window (%v)", elapsed)
	}

	// Opening a new window makes the second instance wait as well
	tracker := ratelimit.NewTracker(redisClient, zerolog.Nop())
	if err := tracker.RecordPenalty(context.Background(), time.Second); err != nil {
		t.Fatalf("RecordPenalty: %v", err)
	}
	start = time.Now()
	get(t, second.URL+"/reviews/0")
	if elapsed := time.Since(start); elapsed < 800*time.Millisecond {
		t.Errorf("second instance did not honour the shared penalty window (%v)", elapsed)
	}
}
