// Package cache stores projected Airtable pages keyed by request path.
//
// Two backends implement Store:
//
// - DiskStore writes one JSON file per key below a cache directory, the
//   layout the proxy has always used (<cache-dir>/<path>.json)
// - RedisStore keeps entries in Redis so several proxy instances share them
//
// Entries never expire unless a TTL is configured.
//
// # Basic Usage
//
//	store, err := cache.NewDiskStore(".newcache")
//	if err != nil {
//		return err
//	}
//
//	key := cache.NewKey("/milkspots/0")
//
//	entry, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// Cache miss - fetch from Airtable
//		entry = cache.NewEntry(results, 0)
//		if err := store.Set(ctx, key, entry); err != nil {
//			return err
//		}
//	}
//
// # Redis
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//	store := cache.NewRedisStore(redisClient, cache.DefaultRedisPrefix)
//
// # Metrics
//
//   - milkspot_cache_hits_total{backend} - Cache hits
//   - milkspot_cache_misses_total{backend} - Cache misses
//   - milkspot_cache_written_bytes_total{backend} - Bytes persisted
//   - milkspot_cache_errors_total{backend, operation} - Cache operation errors
package cache
