package session

import (
	"context"
	"errors"
	"time"
)

// Session is the durable per-browser-session record. The three payload
// fields mirror what the browser build kept in local storage: access token,
// refresh token and the serialized user snapshot. Absence of any of them
// means the session is not logged in.
type Session struct {
	ID           string
	AccessToken  string
	RefreshToken string
	UserJSON     string
	LastActivity time.Time
	WarnedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s *Session) IsAuthenticated() bool {
	return s != nil && s.AccessToken != "" && s.UserJSON != ""
}

func (s *Session) IdleSince(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}

var ErrNotFound = errors.New("session not found")

// Store persists sessions.
type Store interface {
	Save(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	// Touch records user activity: resets the idle clock and re-arms the
	// one-shot idle warning.
	Touch(ctx context.Context, id string, at time.Time) error
	MarkWarned(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	Active(ctx context.Context) ([]*Session, error)
	DeleteIdle(ctx context.Context, cutoff time.Time) (int64, error)
}

// ActivityKinds is the closed set of client input events that count as user
// activity for the idle clock.
var ActivityKinds = map[string]bool{
	"pointer":  true,
	"keyboard": true,
	"scroll":   true,
	"touch":    true,
}

func ValidActivityKind(kind string) bool {
	return ActivityKinds[kind]
}
