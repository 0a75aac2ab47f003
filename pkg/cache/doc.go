// Package cache provides a small Redis-backed TTL cache for values that are
// expensive to fetch and only informational, such as the search API's
// population estimate.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	total, hit, err := manager.Estimate(ctx, cache.EstimateKey("is:public"), time.Hour,
//		githubClient.SearchTotal)
//
// # Entries
//
// Entries are JSON documents holding the value and its expiry. Redis
// removes them at expiry; Get also treats an entry past its Expires time
// as a miss.
//
// # Metrics
//
// The cache manager exports Prometheus metrics:
//
//   - census_cache_hits_total - Cache hits
//   - census_cache_misses_total - Cache misses
//   - census_cache_errors_total{operation} - Cache operation errors
package cache
