package session

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/approvalflow/approval-gateway/internal"
	"github.com/approvalflow/approval-gateway/internal/obs"
)

// Hooks are the monitor's outbound actions, wired to the auth manager at
// startup. Refresh failures are swallowed here; the API client's own 401
// handling is the backstop.
type Hooks struct {
	ForceLogout func(ctx context.Context, sessionID, reason string)
	Refresh     func(ctx context.Context, sessionID string) error
}

// Monitor evaluates every live session on a fixed interval: sessions idle
// past the cutoff are logged out, sessions entering the warning window get a
// one-shot warning flag, and each check opportunistically refreshes tokens.
type Monitor struct {
	store  Store
	hooks  Hooks
	logger *slog.Logger

	idleCutoff    time.Duration
	warningLead   time.Duration
	checkInterval time.Duration

	cancel context.CancelFunc
	done   chan struct{}

	now func() time.Time
}

func NewMonitor(store Store, hooks Hooks, cfg internal.SessionConfig, logger *slog.Logger) *Monitor {
	return &Monitor{
		store:         store,
		hooks:         hooks,
		logger:        logger,
		idleCutoff:    cfg.IdleCutoff,
		warningLead:   cfg.WarningLead,
		checkInterval: cfg.CheckInterval,
		now:           time.Now,
	}
}

func (m *Monitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)

		ticker := time.NewTicker(m.checkInterval)
		defer ticker.Stop()

		m.logger.Info("session monitor started",
			"idle_cutoff", m.idleCutoff,
			"warning_lead", m.warningLead,
			"check_interval", m.checkInterval)

		for {
			select {
			case <-ticker.C:
				m.checkOnce(ctx)
			case <-ctx.Done():
				m.logger.Info("session monitor stopped")
				return
			}
		}
	}()
}

func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *Monitor) checkOnce(ctx context.Context) {
	sessions, err := m.store.Active(ctx)
	if err != nil {
		m.logger.Error("session monitor: failed to list sessions", "error", err)
		return
	}

	now := m.now()
	for _, sess := range sessions {
		idle := sess.IdleSince(now)

		if idle >= m.idleCutoff {
			m.logger.Info("session idle past cutoff, forcing logout",
				"session_id", sess.ID,
				"idle", idle)
			obs.ObserveIdleLogout()
			m.hooks.ForceLogout(ctx, sess.ID, "You have been logged out due to inactivity.")
			continue
		}

		if idle >= m.idleCutoff-m.warningLead && sess.WarnedAt == nil {
			remaining := int(math.Ceil((m.idleCutoff - idle).Minutes()))
			if err := m.store.MarkWarned(ctx, sess.ID, now); err != nil {
				m.logger.Error("session monitor: failed to mark warning", "session_id", sess.ID, "error", err)
			} else {
				m.logger.Info("session nearing idle cutoff, warning armed",
					"session_id", sess.ID,
					"remaining_minutes", remaining)
			}
		}

		if m.hooks.Refresh != nil {
			if err := m.hooks.Refresh(ctx, sess.ID); err != nil {
				m.logger.Debug("opportunistic token refresh failed", "session_id", sess.ID, "error", err)
			}
		}
	}
}
