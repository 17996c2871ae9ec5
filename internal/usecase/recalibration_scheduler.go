package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	domrepo "ConfluenceCal/internal/domain/repository"
	"ConfluenceCal/internal/domain/service"
	applogger "ConfluenceCal/pkg/logger"
)

// RecalibrationScheduler periodically recalibrates and publishes the
// configured symbols from their stored signals. Symbols run one at a time;
// a single run already uses every core.
type RecalibrationScheduler struct {
	cal     service.Calibrator
	symbols []string
	every   time.Duration
	metrics domrepo.Metrics
	l       *applogger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRecalibrationScheduler(cal service.Calibrator, symbols []string, every time.Duration, metrics domrepo.Metrics) *RecalibrationScheduler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &RecalibrationScheduler{cal: cal, symbols: symbols, every: every, metrics: metrics}
}

func (s *RecalibrationScheduler) SetLogger(l *applogger.Logger) { s.l = l }

// Start runs one pass immediately and then one every interval until ctx is
// done or Shutdown is called. A non-positive interval disables the scheduler.
func (s *RecalibrationScheduler) Start(ctx context.Context) {
	if s.every <= 0 || len(s.symbols) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(s.every)
		defer t.Stop()
		for {
			s.RunOnce(ctx)
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
}

// RunOnce calibrates every symbol and returns how many were published.
func (s *RecalibrationScheduler) RunOnce(ctx context.Context) int {
	published := 0
	for _, sym := range s.symbols {
		if ctx.Err() != nil {
			return published
		}
		rep, err := s.cal.CalibrateSymbol(ctx, service.SymbolRun{Symbol: sym})
		switch {
		case err == nil:
			if rep.Published {
				published++
			}
			s.info("scheduled calibration done",
				applogger.String("symbol", sym),
				applogger.Float64("score", rep.Score),
				applogger.Bool("published", rep.Published))
		case errors.Is(err, service.ErrInsufficientSignals), errors.Is(err, service.ErrRunInProgress):
			s.warn("scheduled calibration skipped", applogger.String("symbol", sym), applogger.Error(err))
		case errors.Is(err, context.Canceled):
			return published
		default:
			s.metrics.RecordError("scheduled_run")
			if s.l != nil {
				s.l.Error("scheduled calibration failed", applogger.String("symbol", sym), applogger.Error(err))
			}
		}
	}
	return published
}

// Shutdown stops the loop and waits for the current pass to return.
func (s *RecalibrationScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *RecalibrationScheduler) info(msg string, fields ...applogger.Field) {
	if s.l != nil {
		s.l.Info(msg, fields...)
	}
}

func (s *RecalibrationScheduler) warn(msg string, fields ...applogger.Field) {
	if s.l != nil {
		s.l.Warn(msg, fields...)
	}
}
