package accrual

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Scheduler drives the engine's jobs on independent tickers.
type Scheduler struct {
	engine            *Engine
	subscriptionEvery time.Duration
	autoInvestEvery   time.Duration
	logger            *slog.Logger
}

func NewScheduler(engine *Engine, subscriptionEvery, autoInvestEvery time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		engine:            engine,
		subscriptionEvery: subscriptionEvery,
		autoInvestEvery:   autoInvestEvery,
		logger:            logger,
	}
}

// Run blocks until ctx is done and waits for in-flight runs to return.
// A tick that finds its job still running is dropped.
func (s *Scheduler) Run(ctx context.Context) {
	subTicker := time.NewTicker(s.subscriptionEvery)
	defer subTicker.Stop()
	investTicker := time.NewTicker(s.autoInvestEvery)
	defer investTicker.Stop()

	s.logger.InfoContext(ctx, "Accrual scheduler started",
		slog.Duration("subscription_every", s.subscriptionEvery),
		slog.Duration("auto_invest_every", s.autoInvestEvery))

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-subTicker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.engine.RunSubscriptions(ctx)
				s.logRunError(ctx, JobSubscriptions, err)
			}()
		case <-investTicker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.engine.RunAutoInvest(ctx)
				s.logRunError(ctx, JobAutoInvest, err)
			}()
		case <-ctx.Done():
			s.logger.Info("Accrual scheduler stopping")
			return
		}
	}
}

func (s *Scheduler) logRunError(ctx context.Context, job string, err error) {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, ErrJobRunning):
		s.logger.DebugContext(ctx, "Previous run still in progress, tick dropped", slog.String("job", job))
	default:
		s.logger.ErrorContext(ctx, "Accrual job failed", slog.String("job", job), slog.String("error", err.Error()))
	}
}
