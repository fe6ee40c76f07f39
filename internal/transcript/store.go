// Package transcript keeps the per-session history of relayed chat lines.
package transcript

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"tabletalk-web/internal/models"
)

type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"

	DefaultTTL         = 24 * time.Hour
	DefaultMaxMessages = 200
)

var (
	ErrInvalidStoreType = errors.New("transcript: invalid store type")
	ErrInvalidConfig    = errors.New("transcript: invalid store config")
)

// Store persists transcript entries per session.
type Store interface {
	// Append adds an entry to the end of its session's transcript.
	Append(ctx context.Context, entry models.TranscriptEntry) error

	// List returns up to limit of the most recent entries, oldest first.
	// A limit <= 0 returns everything kept. Unknown sessions yield an empty slice.
	List(ctx context.Context, sessionID string, limit int) ([]models.TranscriptEntry, error)

	Close() error
}

type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	ttl         time.Duration
	maxMessages int
}

func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithTTL sets how long an idle session's transcript is kept.
func WithTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.ttl = ttl
	}
}

// WithMaxMessages caps the number of entries kept per session.
func WithMaxMessages(n int) StoreOption {
	return func(c *storeConfig) {
		c.maxMessages = n
	}
}

func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ttl <= 0 {
		cfg.ttl = DefaultTTL
	}
	if cfg.maxMessages <= 0 {
		cfg.maxMessages = DefaultMaxMessages
	}

	switch storeType {
	case StoreTypeMemory:
		return NewMemoryStore(cfg.maxMessages, cfg.ttl), nil

	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedisStore(cfg.redisClient, cfg.maxMessages, cfg.ttl), nil

	default:
		return nil, ErrInvalidStoreType
	}
}

func tail(entries []models.TranscriptEntry, limit int) []models.TranscriptEntry {
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]models.TranscriptEntry, len(entries))
	copy(out, entries)
	return out
}
