package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper periodically settles expired active trades. A sweep pass is
// idempotent, so overlapping runs (or a concurrent manual trigger) are safe.
type Sweeper struct {
	engine   *Engine
	cron     *cron.Cron
	interval time.Duration
}

func NewSweeper(engine *Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Sweeper{
		engine:   engine,
		cron:     cron.New(),
		interval: interval,
	}
}

// Start schedules the sweep and returns; Stop waits for a running pass.
func (s *Sweeper) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.interval)
	_, err := s.cron.AddFunc(spec, func() {
		settled, err := s.engine.SettleExpired(ctx)
		if err != nil {
			zap.L().Error("expiry sweep failed", zap.Error(err))
			return
		}
		if settled > 0 {
			zap.L().Info("expiry sweep", zap.Int("settled", settled))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	s.cron.Start()
	zap.L().Info("expiry sweeper started", zap.Duration("interval", s.interval))
	return nil
}

// Stop halts scheduling and blocks until any in-flight pass completes.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.L().Info("expiry sweeper stopped")
}
