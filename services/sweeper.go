package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AutoExitSweeper runs the scheduled auto-exit on a fixed interval until stopped.
type AutoExitSweeper struct {
	engine   *Engine
	interval time.Duration
	siteID   string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAutoExitSweeper sweeps siteID ("" for every site) every interval.
func NewAutoExitSweeper(engine *Engine, interval time.Duration, siteID string) *AutoExitSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &AutoExitSweeper{engine: engine, interval: interval, siteID: siteID}
}

// Start launches the loop. Calling Start on a running sweeper is a no-op.
func (s *AutoExitSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *AutoExitSweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *AutoExitSweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.engine.log.Info("auto-exit sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.engine.log.Info("auto-exit sweeper stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *AutoExitSweeper) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.engine.log.Error("auto-exit sweep panic", zap.Any("panic", r))
		}
	}()
	if _, err := s.engine.RunAutoExit(ctx, s.siteID, SweepScheduled); err != nil && ctx.Err() == nil {
		s.engine.log.Error("auto-exit sweep failed", zap.Error(err))
	}
}
