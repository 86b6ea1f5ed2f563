package approval

import (
	"time"

	"github.com/approvalflow/approval-gateway/internal/auth"
)

// Status is the request lifecycle state. The upstream service owns the
// machine; this side only reads it and derives UI affordances from it.
//
//	pending -> approved | rejected | cancelled | needs_revision
//	needs_revision -> pending (resubmission)
//
// approved, rejected and cancelled are terminal. archived is an admin-side
// parking state reachable from any terminal status and reversible through
// restore.
type Status string

const (
	StatusPending       Status = "pending"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusCancelled     Status = "cancelled"
	StatusNeedsRevision Status = "needs_revision"
	StatusArchived      Status = "archived"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusNeedsRevision, StatusArchived:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Request is the workflow record as the upstream returns it. Copies held
// here are read-only snapshots; every mutating call replaces them with the
// state the server answered with.
type Request struct {
	ID            int64      `json:"id"`
	OrderNumber   string     `json:"order_number"`
	RequesterID   int64      `json:"requester_id"`
	RequesterName string     `json:"requester_name"`
	ProfileID     int64      `json:"profile_id"`
	Amount        float64    `json:"amount"`
	Description   string     `json:"description"`
	Status        Status     `json:"status"`
	ApproverID    *int64     `json:"approver_id,omitempty"`
	ApproverName  string     `json:"approver_name,omitempty"`
	DelegatedToID *int64     `json:"delegated_to_id,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	EditGranted   bool       `json:"edit_granted"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	ArchivedAt    *time.Time `json:"archived_at,omitempty"`
}

// Affordances are hints for the caller's UI, not a security boundary: the
// upstream may still reject an action these allow, and that rejection must
// surface to the user as returned.

func (r *Request) CanCancel() bool {
	return r.Status == StatusPending
}

func (r *Request) CanEdit() bool {
	return r.Status == StatusNeedsRevision || r.EditGranted
}

func (r *Request) CanResubmit() bool {
	return r.Status == StatusNeedsRevision
}

func (r *Request) CanDecide(user *auth.User) bool {
	return r.Status == StatusPending && user != nil && user.IsManager()
}

func (r *Request) CanRestore() bool {
	return r.Status == StatusArchived
}

// HistoryEntry is one line of a request's audit trail as recorded upstream.
type HistoryEntry struct {
	ID         int64     `json:"id"`
	RequestID  int64     `json:"request_id"`
	ActorID    int64     `json:"actor_id"`
	ActorName  string    `json:"actor_name"`
	Action     string    `json:"action"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	Notes      string    `json:"notes,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
