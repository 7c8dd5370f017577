// Package cache provides a Redis-backed response cache for catalog lookups.
//
// Movie details and credits change rarely, and a harvest over many years
// asks for the same movie from several partitions. Caching those responses
// in Redis lets parallel workers and later runs skip the upstream call.
//
// Entries are JSON-encoded and then zstd-compressed before they are written,
// which keeps large credit lists small in Redis.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//
//	manager, err := cache.NewManager(redisClient)
//	if err != nil {
//		return err
//	}
//	defer manager.Close()
//
//	key := cache.CacheKey{
//		Endpoint:    "/movie/603",
//		QueryParams: url.Values{"language": []string{"en-US"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the catalog, then:
//		entry, _ = cache.ResponseToEntry(resp)
//		_ = manager.Set(ctx, key, entry)
//	}
//
// # Freshness
//
// The TTL comes from Cache-Control max-age, then Expires, then DefaultTTL.
// Responses marked no-store or no-cache are never cached. Credentials such as
// the api_key query parameter are excluded from cache keys.
//
// # Metrics
//
//   - catalog_cache_hits_total{layer="redis"} - Cache hits
//   - catalog_cache_misses_total - Cache misses
//   - catalog_cache_stored_bytes_total{encoding} - Bytes written, raw and compressed
//   - catalog_cache_errors_total{operation} - Cache operation errors
package cache
