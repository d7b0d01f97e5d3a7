package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/milkspot-proxy/pkg/airtable"
	"github.com/Sternrassler/milkspot-proxy/pkg/cache"
	"github.com/Sternrassler/milkspot-proxy/pkg/logging"
	"github.com/Sternrassler/milkspot-proxy/pkg/metrics"
	"github.com/Sternrassler/milkspot-proxy/pkg/proxy"
	"github.com/Sternrassler/milkspot-proxy/pkg/ratelimit"
	"github.com/Sternrassler/milkspot-proxy/pkg/records"
)

const shutdownTimeout = 10 * time.Second

// route binds an Airtable table to the view it is listed through.
type route struct {
	table string
	view  string
}

// server holds the wired components of one proxy process.
type server struct {
	cfg         Config
	redis       *redis.Client
	coordinator *proxy.Coordinator
	handler     http.Handler
	logger      zerolog.Logger
}

// newServer connects Redis when configured and wires store, limiter,
// upstream client and coordinator.
func newServer(ctx context.Context, cfg Config) (*server, error) {
	logger := logging.NewLogger(logging.ComponentServer)
	s := &server{cfg: cfg, logger: logger}

	if cfg.needsRedis() {
		client, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		s.redis = client
		logger.Info().Str("redis", redactRedisURL(cfg.RedisURL)).Msg("Connected to Redis")
	}

	store, err := s.newStore()
	if err != nil {
		s.Close()
		return nil, err
	}

	limiterCfg := ratelimit.Config{
		MinInterval: cfg.RateLimitInterval,
		MaxQueue:    cfg.RateLimitMaxQueue,
	}
	limiterLogger := logging.NewLogger(logging.ComponentRateLimit)
	var limiter ratelimit.Limiter
	if cfg.RateLimitShared {
		limiter = ratelimit.NewRedis(s.redis, limiterCfg, limiterLogger)
	} else {
		limiter = ratelimit.NewInterval(limiterCfg, limiterLogger)
	}
	tracker := ratelimit.NewTracker(s.redis, limiterLogger)

	upstreamCfg := airtable.DefaultConfig(cfg.APIKey, cfg.BaseID)
	upstreamCfg.BaseURL = cfg.APIURL
	upstreamCfg.PageSize = cfg.PageSize
	upstream, err := airtable.New(upstreamCfg, limiter, tracker)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create airtable client: %w", err)
	}

	coordinator, err := proxy.New(store, proxy.AirtableSource(upstream, cfg.PageSize), proxy.Config{
		FailOnUpstreamError: cfg.FailOnUpstreamError,
		RequestTimeout:      cfg.RequestTimeout,
		CacheTTL:            cfg.CacheTTL,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.coordinator = coordinator

	routes := []route{
		{table: "Milkspots", view: cfg.MilkspotsView},
		{table: "Reviews", view: cfg.ReviewsView},
		{table: "Amenities", view: cfg.AmenitiesView},
	}
	handler, err := s.routes(routes)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.handler = handler

	logger.Info().
		Str("cache_backend", cfg.CacheBackend).
		Bool("shared_rate_limit", cfg.RateLimitShared).
		Dur("rate_limit_interval", cfg.RateLimitInterval).
		Int("page_size", cfg.PageSize).
		Msg("Proxy configured")

	return s, nil
}

func (s *server) newStore() (cache.Store, error) {
	logger := logging.NewLogger(logging.ComponentCache)
	switch s.cfg.CacheBackend {
	case backendRedis:
		logger.Info().Msg("Using Redis page cache")
		return cache.NewRedisStore(s.redis, cache.DefaultRedisPrefix), nil
	default:
		store, err := cache.NewDiskStore(s.cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
		logger.Info().Str("dir", store.Dir()).Msg("Using disk page cache")
		return store, nil
	}
}

// routes registers one page route per table plus the operational endpoints.
// An unknown table name fails here, before the server starts listening.
func (s *server) routes(tables []route) (http.Handler, error) {
	mux := http.NewServeMux()
	for _, r := range tables {
		table, err := records.ParseTable(r.table)
		if err != nil {
			return nil, fmt.Errorf("register route: %w", err)
		}
		pattern := "GET /" + strings.ToLower(table.Name()) + "/{page}"
		mux.HandleFunc(pattern, s.coordinator.ServeTable(table, r.view))
		s.logger.Debug().Str("route", pattern).Str("view", r.view).Msg("Route registered")
	}

	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(s.redis))
	mux.Handle("GET /metrics", metrics.Handler())
	return mux, nil
}

// run serves until ctx is cancelled, then shuts down gracefully.
func (s *server) run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", httpServer.Addr).Msg("Starting milkspot proxy")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases the Redis connection, if any.
func (s *server) Close() error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Close()
}

// connectRedis accepts either a redis:// URL or a bare host:port.
func connectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts := &redis.Options{Addr: redisURL}
	if strings.Contains(redisURL, "://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		opts = parsed
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// redactRedisURL drops credentials from a redis:// URL.
func redactRedisURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	if at := strings.LastIndexByte(rest, '@'); at >= 0 {
		rest = rest[at+1:]
	}
	return scheme + "://" + rest
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports ready once Redis answers a ping. Without Redis the
// process is ready as soon as it serves.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}
