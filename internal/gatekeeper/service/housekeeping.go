package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/clock"
	"github.com/aussiebroadwan/gatekeeper/pkg/ratelimit"
)

// Sweeper drops idle in-memory limiter state.
type Sweeper interface {
	Sweep() ratelimit.SweepStats
}

// HousekeepingService periodically deletes expired refresh credentials and
// sweeps idle buckets and elapsed lockouts from the rate limiter.
type HousekeepingService struct {
	Refresh  store.RefreshCredentials
	Limiter  Sweeper
	Clock    clock.Clock
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 5 minutes.
func NewHousekeepingService(refresh store.RefreshCredentials, limiter Sweeper, c clock.Clock, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &HousekeepingService{
		Refresh:  refresh,
		Limiter:  limiter,
		Clock:    clock.OrReal(c),
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop() to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup runs one pass. Each step is independent; a failure in one does not
// stop the others.
func (s *HousekeepingService) Cleanup(ctx context.Context) {
	if s.Refresh != nil {
		n, err := s.Refresh.DeleteExpiredRefreshCredentials(ctx, s.Clock.Now())
		if err != nil {
			s.Logger.Error("failed to delete expired refresh credentials", "error", err)
		} else {
			s.Logger.Debug("deleted expired refresh credentials", "count", n)
		}
	}

	if s.Limiter != nil {
		stats := s.Limiter.Sweep()
		s.Logger.Debug("swept rate limiter state", "buckets", stats.Buckets, "throttles", stats.Throttles)
	}
}
