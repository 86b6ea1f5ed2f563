package events

import (
	"time"

	"github.com/google/uuid"
)

// Event types published by the gateway. Audit subscribes to all of them.
const (
	SessionLoggedIn     = "session.logged_in"
	SessionLoggedOut    = "session.logged_out"
	SessionForcedOut    = "session.forced_out"
	SessionRefreshed    = "session.refreshed"
	ApprovalSubmitted   = "approval.submitted"
	ApprovalDecided     = "approval.decided"
	ApprovalCancelled   = "approval.cancelled"
	ApprovalResubmitted = "approval.resubmitted"
	ApprovalArchived    = "approval.archived"
	ApprovalRestored    = "approval.restored"
)

func newEvent(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func NewSessionEvent(eventType, sessionID string, userID int64, reason string) BaseEvent {
	data := map[string]interface{}{
		"session_id": sessionID,
		"user_id":    userID,
	}
	if reason != "" {
		data["reason"] = reason
	}
	return newEvent(eventType, data)
}

func NewApprovalEvent(eventType string, requestID int64, actorID int64, detail map[string]interface{}) BaseEvent {
	data := map[string]interface{}{
		"request_id": requestID,
		"actor_id":   actorID,
	}
	for k, v := range detail {
		data[k] = v
	}
	return newEvent(eventType, data)
}
