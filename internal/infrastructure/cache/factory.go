package cache

import "go.uber.org/zap"

// NewReplayCache picks the cache backing from configuration. Redis when
// enabled and reachable, in-memory otherwise.
func NewReplayCache(redisEnabled bool, cfg RedisConfig, logger *zap.Logger) ReplayCache {
	if redisEnabled {
		store, err := NewRedisReplayCache(cfg)
		if err == nil {
			logger.Info("Using Redis replay cache",
				zap.String("host", cfg.Host),
				zap.Int("port", cfg.Port),
			)
			return store
		}
		logger.Warn("Redis unavailable, falling back to in-memory replay cache", zap.Error(err))
	}
	logger.Info("Using in-memory replay cache")
	return NewInMemoryReplayCache()
}
