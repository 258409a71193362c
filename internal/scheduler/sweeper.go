// Package scheduler runs the offer expiration sweep on a fixed interval.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jtj60/dorado-exchange-sub003/internal/config"
	purchaseorder "github.com/jtj60/dorado-exchange-sub003/internal/service/purchaseorder"
)

// Sweeper periodically drives expired offers through unlock-and-resend or
// auto-accept. Failure isolation lives in the service: each order is its own
// transaction and a failed order never aborts the sweep.
type Sweeper struct {
	svc      *purchaseorder.Service
	logger   *zap.Logger
	interval time.Duration
	enabled  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSweeper constructs the sweeper from configuration.
func NewSweeper(svc *purchaseorder.Service, cfg config.Config, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		svc:      svc,
		logger:   logger,
		interval: cfg.Offers.SweepInterval,
		enabled:  cfg.Offers.SweepEnabled,
	}
}

// Module wires the sweeper into the Fx lifecycle.
var Module = fx.Options(
	fx.Provide(NewSweeper),
	fx.Invoke(func(lc fx.Lifecycle, sweeper *Sweeper) {
		lc.Append(fx.Hook{
			OnStart: sweeper.start,
			OnStop:  sweeper.stop,
		})
	}),
)

func (s *Sweeper) start(context.Context) error {
	if !s.enabled {
		s.logger.Info("offer expiration sweeper disabled")
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(runCtx)
	}()

	s.logger.Info("offer expiration sweeper started", zap.Duration("interval", s.interval))
	return nil
}

func (s *Sweeper) stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		s.logger.Info("offer expiration sweeper stopped")
		return nil
	}
}

func (s *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single sweep pass; sweep errors are logged, not fatal.
func (s *Sweeper) RunOnce(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	processed, err := s.svc.SweepExpired(sweepCtx)
	if err != nil {
		s.logger.Error("offer expiration sweep failed", zap.Error(err))
		return
	}
	if processed > 0 {
		s.logger.Info("offer expiration sweep completed", zap.Int("processed", processed))
	}
}
