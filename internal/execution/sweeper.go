package execution

import (
	"context"
	"sync"
	"time"

	"github.com/opencode-ai/actiongate/internal/logging"
)

// Sweeper periodically times out overdue pending executions. Approve and
// Deny expire overdue executions on their own, so the sweeper only makes
// timeouts visible without waiting for a response.
type Sweeper struct {
	service  *Service
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(service *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sweeper{
		service:  service,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins sweeping in the background.
func (s *Sweeper) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	go s.run()
}

func (s *Sweeper) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			n, err := s.service.ExpireOverdue(ctx)
			if err != nil && ctx.Err() == nil {
				logging.Warn().Err(err).Msg("confirmation sweep failed")
				continue
			}
			if n > 0 {
				logging.Info().Int("expired", n).Msg("expired pending confirmations")
			}
		}
	}
}

// Stop stops the sweeper and waits for an in-progress sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	if started {
		<-s.doneCh
	}
}
