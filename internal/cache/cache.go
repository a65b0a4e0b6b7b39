// Package cache provides a response cache that is invalidated when the
// modification time of the underlying data changes.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// DefaultTTL is the expiry applied to cache entries when none is configured.
const DefaultTTL = time.Hour

// metadataSuffix names the entry that records which data version a
// cached response was computed from.
const metadataSuffix = ":metadata"

// Cache lookup results.
const (
	resultHit    = "hit"
	resultMiss   = "miss"
	resultBypass = "bypass"
)

var cacheRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "response_cache_requests_total",
		Help: "Total number of response cache lookups",
	},
	[]string{"route", "result"},
)

// Backend stores opaque values with an expiry.
type Backend interface {
	// Get returns the value for key. The boolean is false when the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// VersionFunc reports the modification time of the data behind cached responses.
type VersionFunc func(ctx context.Context) (time.Time, error)

// ComputeFunc produces a serialized response.
type ComputeFunc func(ctx context.Context) ([]byte, error)

type metadata struct {
	LastModified int64 `json:"lastModified"`
}

// ResponseCache serves stored responses while the data version they were
// computed from is unchanged. A nil *ResponseCache always computes.
type ResponseCache struct {
	backend Backend
	version VersionFunc
	ttl     time.Duration
	logger  *zap.Logger
}

// NewResponseCache creates a ResponseCache over backend.
func NewResponseCache(backend Backend, version VersionFunc, ttl time.Duration, logger *zap.Logger) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResponseCache{
		backend: backend,
		version: version,
		ttl:     ttl,
		logger:  logger,
	}
}

// Fetch returns the stored response for key when it is still valid, and
// otherwise runs compute and stores its result. The boolean reports a hit.
// Cache failures are logged and bypassed; compute errors are returned as is
// and never stored.
func (c *ResponseCache) Fetch(ctx context.Context, key string, compute ComputeFunc) ([]byte, bool, error) {
	if c == nil {
		body, err := compute(ctx)
		return body, false, err
	}

	route := routeLabel(key)

	modified, err := c.version(ctx)
	if err != nil {
		c.logger.Warn("cache version check failed", zap.String("key", key), zap.Error(err))
		cacheRequestsTotal.WithLabelValues(route, resultBypass).Inc()
		body, err := compute(ctx)
		return body, false, err
	}
	// A collection that was never written has the zero stamp.
	var stamp int64
	if !modified.IsZero() {
		stamp = modified.UnixNano()
	}

	body, ok, err := c.lookup(ctx, key, stamp)
	if err != nil {
		c.logger.Warn("cache lookup failed", zap.String("key", key), zap.Error(err))
		cacheRequestsTotal.WithLabelValues(route, resultBypass).Inc()
		body, err := compute(ctx)
		return body, false, err
	}
	if ok {
		cacheRequestsTotal.WithLabelValues(route, resultHit).Inc()
		return body, true, nil
	}

	cacheRequestsTotal.WithLabelValues(route, resultMiss).Inc()

	body, err = compute(ctx)
	if err != nil {
		return nil, false, err
	}

	c.store(ctx, key, stamp, body)
	return body, false, nil
}

// Ping checks the backend.
func (c *ResponseCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.backend.Ping(ctx)
}

// Close releases the backend.
func (c *ResponseCache) Close() error {
	if c == nil {
		return nil
	}
	return c.backend.Close()
}

func (c *ResponseCache) lookup(ctx context.Context, key string, stamp int64) ([]byte, bool, error) {
	raw, ok, err := c.backend.Get(ctx, key+metadataSuffix)
	if err != nil || !ok {
		return nil, false, err
	}

	var meta metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		// Unreadable metadata is treated as stale.
		return nil, false, nil
	}
	if meta.LastModified != stamp {
		return nil, false, nil
	}

	return c.backend.Get(ctx, key)
}

func (c *ResponseCache) store(ctx context.Context, key string, stamp int64, body []byte) {
	raw, err := json.Marshal(metadata{LastModified: stamp})
	if err != nil {
		c.logger.Warn("encode cache metadata", zap.String("key", key), zap.Error(err))
		return
	}

	if err := c.backend.Set(ctx, key, body, c.ttl); err != nil {
		c.logger.Warn("cache store failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.backend.Set(ctx, key+metadataSuffix, raw, c.ttl); err != nil {
		c.logger.Warn("cache metadata store failed", zap.String("key", key), zap.Error(err))
	}
}

// routeLabel keeps metric cardinality bounded by dropping per-query key parts.
func routeLabel(key string) string {
	route, _, _ := strings.Cut(key, ":")
	return route
}
