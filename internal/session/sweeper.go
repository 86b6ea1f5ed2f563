package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper purges session rows whose idle time passed the cutoff while the
// monitor was not running (crashes, restarts). Runs on a cron schedule.
// Authenticated sessions go through the ForceLogout hook so the session
// manager can release its per-session state and record the logout; rows the
// hook cannot cover fall back to a bulk delete.
type Sweeper struct {
	store    Store
	hooks    Hooks
	logger   *slog.Logger
	schedule string
	maxIdle  time.Duration
	cron     *cron.Cron

	now func() time.Time
}

func NewSweeper(store Store, hooks Hooks, schedule string, maxIdle time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		hooks:    hooks,
		logger:   logger,
		schedule: schedule,
		maxIdle:  maxIdle,
		cron:     cron.New(),
		now:      time.Now,
	}
}

func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		s.SweepOnce(context.Background())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("session sweeper started", "schedule", s.schedule, "max_idle", s.maxIdle)
	return nil
}

func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("session sweeper stopped")
}

func (s *Sweeper) SweepOnce(ctx context.Context) {
	cutoff := s.now().Add(-s.maxIdle)

	if s.hooks.ForceLogout != nil {
		sessions, err := s.store.Active(ctx)
		if err != nil {
			s.logger.Error("session sweep failed to list sessions", "error", err)
		} else {
			for _, sess := range sessions {
				if sess.LastActivity.Before(cutoff) {
					s.logger.Info("sweeping idle session", "session_id", sess.ID)
					s.hooks.ForceLogout(ctx, sess.ID, "You have been logged out due to inactivity.")
				}
			}
		}
	}

	// Remaining idle rows have no access token, so there is no session
	// state for the hook to release.
	removed, err := s.store.DeleteIdle(ctx, cutoff)
	if err != nil {
		s.logger.Error("session sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("swept idle sessions", "removed", removed, "cutoff", cutoff)
	}
}
