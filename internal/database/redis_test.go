package database

import (
	"context"
	"os"
	"strings"
	"testing"
)

func TestNewRedisClients_InvalidURL(t *testing.T) {
	_, err := NewRedisClients(context.Background(), "not a url")
	if err == nil || !strings.Contains(err.Error(), "parse Redis URL") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestNewRedisClients_Live(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	clients, err := NewRedisClients(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer clients.Close()

	if clients.Transcript == clients.PubSub {
		t.Error("expected separate clients for transcript and pub/sub")
	}
}
