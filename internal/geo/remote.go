package geo

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/respstack/respstats/internal/cache"
	"github.com/respstack/respstats/internal/models"
)

// ProviderCache adapts an external cache.Provider to the geo Cache
// interface, so looked-up attributes survive across runs. Values round-trip
// through their string form and are re-coerced on load.
type ProviderCache struct {
	provider cache.Provider
	ttl      time.Duration
	logger   *slog.Logger
}

// NewProviderCache wraps a provider. A zero TTL stores entries without
// expiry.
func NewProviderCache(provider cache.Provider, ttl time.Duration, logger *slog.Logger) *ProviderCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderCache{provider: provider, ttl: ttl, logger: logger}
}

// Get fetches and decodes cached attributes. Any provider or decode failure
// reads as a miss.
func (c *ProviderCache) Get(key string) (map[string]models.Value, bool) {
	data, err := c.provider.Get(context.Background(), key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Debug("geo cache get failed", slog.String("key", key), slog.Any("error", err))
		}
		return nil, false
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		c.logger.Debug("geo cache entry corrupt", slog.String("key", key), slog.Any("error", err))
		return nil, false
	}
	attrs := make(map[string]models.Value, len(raw))
	for name, value := range raw {
		attrs[name] = models.Coerce(value)
	}
	return attrs, true
}

// Set encodes and stores attributes. Failures are logged and dropped; the
// cache is an optimisation, not a dependency.
func (c *ProviderCache) Set(key string, attrs map[string]models.Value) {
	raw := make(map[string]string, len(attrs))
	for name, value := range attrs {
		raw[name] = value.AsString()
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return
	}
	if err := c.provider.Set(context.Background(), key, data, c.ttl); err != nil {
		c.logger.Debug("geo cache set failed", slog.String("key", key), slog.Any("error", err))
	}
}
