package auth

import (
	errors "github.com/approvalflow/approval-gateway/internal"
	"github.com/approvalflow/approval-gateway/internal/core/common/validation"
	"github.com/approvalflow/approval-gateway/internal/session"
)

type LoginDTO struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (d *LoginDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("username", d.Username).Required()
	validator.Field("password", d.Password).Required()
	if err := validator.Validate(); err != nil {
		return err
	}
	return nil
}

// ActivityDTO reports a single user-activity beacon. Event must be one of
// the known activity kinds.
type ActivityDTO struct {
	Event string `json:"event"`
}

func (d *ActivityDTO) Validate() error {
	if !session.ValidActivityKind(d.Event) {
		return errors.NewValidationFieldError("event", "unknown activity event", errors.ErrCodeInvalidAction)
	}
	return nil
}

// LoginResponse returns the fetched user alongside the role-derived landing
// path so the caller can redirect without a second round trip.
type LoginResponse struct {
	User         *User  `json:"user"`
	DefaultRoute string `json:"default_route"`
}

// SessionStatus describes how close the session is to the idle cutoff.
// Durations are reported in whole seconds.
type SessionStatus struct {
	Authenticated bool  `json:"authenticated"`
	IdleFor       int64 `json:"idle_for_seconds"`
	Remaining     int64 `json:"remaining_seconds"`
	Warned        bool  `json:"warned"`
}

type loginPayload struct {
	User         *User  `json:"user"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
}

type refreshPayload struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}
