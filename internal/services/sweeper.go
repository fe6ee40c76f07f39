package services

import (
	"log/slog"
	"time"
)

const DefaultSweepInterval = 10 * time.Minute

// Sweepable is a store that can reclaim expired sessions.
type Sweepable interface {
	Sweep(now time.Time) int
}

// TranscriptSweeper periodically reclaims idle in-memory transcripts. Redis
// expires its keys itself and needs no sweeper.
type TranscriptSweeper struct {
	store    Sweepable
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewTranscriptSweeper(store Sweepable, interval time.Duration, logger *slog.Logger) *TranscriptSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TranscriptSweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

func (s *TranscriptSweeper) Start() {
	go s.loop()
	s.logger.Info("transcript sweeper started", "interval", s.interval)
}

// Stop ends the loop and waits for an in-progress sweep to finish.
func (s *TranscriptSweeper) Stop() {
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
	<-s.doneChan
}

func (s *TranscriptSweeper) loop() {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce performs a single sweep.
func (s *TranscriptSweeper) RunOnce() int {
	removed := s.store.Sweep(s.now())
	if removed > 0 {
		s.logger.Debug("transcript sessions expired", "removed", removed)
	}
	return removed
}
