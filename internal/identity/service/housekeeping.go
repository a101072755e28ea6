package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgecoder/identity/internal/identity/store"
)

// HousekeepingService periodically deletes expired rows (sessions, email
// verification tokens, oauth states and passkey challenges) so the inert
// data the consume paths already ignore does not grow without bound.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService builds the worker. An interval of zero or less
// defaults to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background worker. Non-blocking; call Stop to shut it
// down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping started", "interval", s.Interval)
}

// Stop shuts the worker down, blocking until any in-progress sweep finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Sweep once at startup so a long interval doesn't postpone the first
	// cleanup after a restart.
	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep deletes expired rows across all swept tables. Each deletion is
// independent; a failure in one table does not stop the others.
func (s *HousekeepingService) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	if err := s.Store.Sessions().DeleteExpiredSessions(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired sessions", "error", err)
	}
	if err := s.Store.EmailVerificationTokens().DeleteExpiredTokens(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired verification tokens", "error", err)
	}
	if err := s.Store.OAuthStates().DeleteExpiredStates(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired oauth states", "error", err)
	}
	if err := s.Store.PasskeyChallenges().DeleteExpiredChallenges(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired passkey challenges", "error", err)
	}

	s.Logger.Debug("housekeeping sweep completed")
}
