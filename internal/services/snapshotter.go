package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"envelope/internal/log"
)

// Snapshotter flushes a budget service on an interval and once more on stop.
type Snapshotter struct {
	svc      *BudgetService
	interval time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSnapshotter(svc *BudgetService, interval time.Duration, logger *log.Logger) *Snapshotter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Snapshotter{svc: svc, interval: interval, logger: logger.WithComponent(log.ComponentStorage)}
}

func (s *Snapshotter) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("snapshotter is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.runLoop(ctx)
	return nil
}

func (s *Snapshotter) runLoop(ctx context.Context) {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.svc.Flush(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Periodic snapshot failed", log.FieldError, err)
			}
		}
	}
}

// Stop ends the loop and performs a final flush with ctx.
func (s *Snapshotter) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return s.svc.Flush(ctx)
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	select {
	case <-s.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.svc.Flush(ctx)
}

func (s *Snapshotter) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
