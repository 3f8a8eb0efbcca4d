// Package cache stores generated answers keyed by a hash of the question.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/russo2100/trading-analytics-rag/internal/config"
)

// Defaults.
const (
	DefaultTTL  = 30 * time.Minute
	DefaultSize = 1000
	keyPrefix   = "tradingrag:answer:"
)

// Cache is a TTL key/value store for answers. Implementations must be safe
// for concurrent use.
type Cache interface {
	// Get returns ("", false, nil) on a miss.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Key hashes a question into a cache key.
func Key(question string) string {
	sum := md5.Sum([]byte(question))
	return hex.EncodeToString(sum[:])
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (Noop) Set(context.Context, string, string) error         { return nil }
func (Noop) Close() error                                      { return nil }

// New builds the configured cache.
func New(cfg config.CacheConfig) (Cache, error) {
	ttl := config.Duration(cfg.TTL, DefaultTTL)
	switch cfg.Backend {
	case "", "memory":
		size := cfg.Size
		if size <= 0 {
			size = DefaultSize
		}
		return NewMemory(size, ttl), nil
	case "redis":
		return NewRedis(RedisConfig{Addr: cfg.RedisAddr, DB: cfg.RedisDB, TTL: ttl})
	case "none":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
