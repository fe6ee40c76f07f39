package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients holds one connection pool for transcript commands and a
// separate one for pub/sub, since subscriptions pin their connection.
type RedisClients struct {
	Transcript *redis.Client
	PubSub     *redis.Client
}

func NewRedisClients(ctx context.Context, redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	transcriptClient := redis.NewClient(opt)
	if err := transcriptClient.Ping(ctx).Err(); err != nil {
		transcriptClient.Close()
		return nil, fmt.Errorf("failed to ping Redis (transcript): %w", err)
	}

	pubsubOpt := *opt
	pubsubClient := redis.NewClient(&pubsubOpt)
	if err := pubsubClient.Ping(ctx).Err(); err != nil {
		transcriptClient.Close()
		pubsubClient.Close()
		return nil, fmt.Errorf("failed to ping Redis (pubsub): %w", err)
	}

	return &RedisClients{
		Transcript: transcriptClient,
		PubSub:     pubsubClient,
	}, nil
}

func (r *RedisClients) Close() {
	r.Transcript.Close()
	r.PubSub.Close()
}
