package api

import (
	"strings"
	"time"

	"github.com/bluele/gcache"
	"go.uber.org/zap"
)

// responseCache memoises aggregate responses for a short TTL. A nil cache
// always misses.
type responseCache struct {
	cache  gcache.Cache
	logger *zap.Logger
}

func newResponseCache(size int, ttl time.Duration, logger *zap.Logger) *responseCache {
	if size <= 0 || ttl <= 0 {
		return nil
	}
	return &responseCache{
		cache:  gcache.New(size).LRU().Expiration(ttl).Build(),
		logger: logger,
	}
}

func cacheKey(parts ...string) string {
	return strings.Join(parts, "\x00")
}

// getOrLoad returns the cached value for key, calling load on a miss
func (rc *responseCache) getOrLoad(key string, load func() (interface{}, error)) (interface{}, error) {
	if rc == nil {
		return load()
	}
	if cached, err := rc.cache.Get(key); err == nil {
		rc.logger.Debug("Cache hit", zap.String("key", key))
		return cached, nil
	}

	value, err := load()
	if err != nil {
		return nil, err
	}
	if err := rc.cache.Set(key, value); err != nil {
		rc.logger.Warn("Failed to cache response", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}
