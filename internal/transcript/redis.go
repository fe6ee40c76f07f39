package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tabletalk-web/internal/models"
)

const transcriptKeyPrefix = "transcript:"

// RedisStore keeps each session's transcript in a capped Redis list.
type RedisStore struct {
	client      *redis.Client
	maxMessages int
	ttl         time.Duration
}

func NewRedisStore(client *redis.Client, maxMessages int, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:      client,
		maxMessages: maxMessages,
		ttl:         ttl,
	}
}

func (s *RedisStore) Append(ctx context.Context, entry models.TranscriptEntry) error {
	val, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	listKey := key(entry.SessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, listKey, val)
		pipe.LTrim(ctx, listKey, int64(-s.maxMessages), -1)
		pipe.Expire(ctx, listKey, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, sessionID string, limit int) ([]models.TranscriptEntry, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	vals, err := s.client.LRange(ctx, key(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list transcript: %w", err)
	}

	entries := make([]models.TranscriptEntry, 0, len(vals))
	for _, v := range vals {
		var e models.TranscriptEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			// skip entries written by an incompatible version
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (s *RedisStore) Close() error {
	return nil
}

func key(sessionID string) string {
	return transcriptKeyPrefix + sessionID
}
