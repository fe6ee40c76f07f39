package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"tabletalk-web/internal/models"
	"tabletalk-web/internal/transcript"
)

const (
	DefaultQueueSize = 1024
	appendTimeout    = 5 * time.Second
)

// Pool persists transcript entries off the request path. Every session is
// pinned to one worker, so its entries are appended in the order recorded.
type Pool struct {
	store  transcript.Store
	logger *slog.Logger
	queues []chan models.TranscriptEntry
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewPool builds a pool of workerCount workers, each with its own queue of
// queueSize entries.
func NewPool(store transcript.Store, workerCount, queueSize int, logger *slog.Logger) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	queues := make([]chan models.TranscriptEntry, workerCount)
	for i := range queues {
		queues[i] = make(chan models.TranscriptEntry, queueSize)
	}
	return &Pool{
		store:  store,
		logger: logger,
		queues: queues,
	}
}

func (p *Pool) Start() {
	for i, q := range p.queues {
		p.wg.Add(1)
		go p.worker(i, q)
	}

	p.logger.Info("transcript workers started", "workers", len(p.queues), "queue_size", cap(p.queues[0]))
}

// Record queues an entry for persistence. It never blocks: when the session's
// queue is full or the pool is stopped the entry is dropped and false is
// returned.
func (p *Pool) Record(entry models.TranscriptEntry) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return false
	}

	select {
	case p.queueFor(entry.SessionID) <- entry:
		return true
	default:
		p.logger.Warn("transcript queue full, dropping entry",
			"session_id", entry.SessionID,
			"role", entry.Role)
		return false
	}
}

func (p *Pool) queueFor(sessionID string) chan models.TranscriptEntry {
	return p.queues[xxhash.Sum64String(sessionID)%uint64(len(p.queues))]
}

// Stop closes the queues and waits for queued entries to be written, or for
// ctx to expire.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		for _, q := range p.queues {
			close(q)
		}
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker(id int, queue <-chan models.TranscriptEntry) {
	defer p.wg.Done()

	for entry := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		if err := p.store.Append(ctx, entry); err != nil {
			p.logger.Error("failed to persist transcript entry",
				"worker", id,
				"session_id", entry.SessionID,
				"error", err)
		}
		cancel()
	}

	p.logger.Debug("transcript worker shutting down", "worker", id)
}
