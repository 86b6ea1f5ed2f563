package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	app "github.com/approvalflow/approval-gateway/internal"
	"github.com/approvalflow/approval-gateway/internal/auth"
	"github.com/approvalflow/approval-gateway/internal/core/events"
)

// Entry is one persisted audit record. Session and approval events both
// land here; the payload keeps whatever detail the event carried, as JSON.
type Entry struct {
	ID         int64     `json:"id"`
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	SessionID  string    `json:"session_id,omitempty"`
	UserID     int64     `json:"user_id,omitempty"`
	RequestID  int64     `json:"request_id,omitempty"`
	Payload    string    `json:"payload,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

type ListQuery struct {
	EventType string
	UserID    int64
	Limit     int
	Offset    int
}

type Repository interface {
	Insert(ctx context.Context, entry *Entry) error
	List(ctx context.Context, q ListQuery) ([]Entry, error)
}

// Service turns bus events into durable audit entries and serves the
// admin-side history view.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// auditedEvents is every event type worth keeping a trail of.
var auditedEvents = []string{
	events.SessionLoggedIn,
	events.SessionLoggedOut,
	events.SessionForcedOut,
	events.SessionRefreshed,
	events.ApprovalSubmitted,
	events.ApprovalDecided,
	events.ApprovalCancelled,
	events.ApprovalResubmitted,
	events.ApprovalArchived,
	events.ApprovalRestored,
}

// Register subscribes the audit trail to the event bus.
func (s *Service) Register(bus *events.EventBus) {
	for _, eventType := range auditedEvents {
		bus.Subscribe(eventType, s.record)
	}
}

func (s *Service) record(ctx context.Context, event events.Event) error {
	entry := &Entry{
		EventID:    event.EventID(),
		EventType:  event.EventType(),
		OccurredAt: event.OccurredAt(),
	}

	if data, ok := event.Payload().(map[string]interface{}); ok {
		if sessionID, ok := data["session_id"].(string); ok {
			entry.SessionID = sessionID
		}
		if userID, ok := data["user_id"].(int64); ok {
			entry.UserID = userID
		}
		if actorID, ok := data["actor_id"].(int64); ok {
			entry.UserID = actorID
		}
		if requestID, ok := data["request_id"].(int64); ok {
			entry.RequestID = requestID
		}
		if payload, err := json.Marshal(data); err == nil {
			entry.Payload = string(payload)
		}
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		return err
	}
	s.logger.Debug("audit entry recorded", "event_type", entry.EventType, "event_id", entry.EventID)
	return nil
}

// List returns audit entries for the admin history view, newest first.
func (s *Service) List(ctx context.Context, actor *auth.User, q ListQuery) ([]Entry, error) {
	if !actor.IsAdmin() {
		return nil, app.NewForbiddenError("only administrators may read the audit log", app.ErrCodeUnauthorizedAccess)
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 50
	}
	return s.repo.List(ctx, q)
}
