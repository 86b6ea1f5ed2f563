package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	app "github.com/approvalflow/approval-gateway/internal"
	"github.com/approvalflow/approval-gateway/internal/auth"
	"github.com/approvalflow/approval-gateway/internal/cache"
	"github.com/approvalflow/approval-gateway/internal/core/events"
	"github.com/approvalflow/approval-gateway/internal/upstream"
)

// OrderValidation is the upstream's verdict on a purchase order number
// checked before submission.
type OrderValidation struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// Service fronts the upstream approval API. Reads go through per-session
// caches with a five-minute staleness window; every mutation invalidates
// the session's cached lists and the touched request, and the state the
// server answers with replaces whatever this side believed.
type Service struct {
	api     *upstream.Client
	lists   *cache.Store[[]Request]
	items   *cache.Store[Request]
	history *cache.Store[[]HistoryEntry]
	bus     *events.EventBus
	logger  *slog.Logger
}

func NewService(api *upstream.Client, cfg app.CacheConfig, bus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		api:     api,
		lists:   cache.New[[]Request](cfg.StaleAfter, logger),
		items:   cache.New[Request](cfg.StaleAfter, logger),
		history: cache.New[[]HistoryEntry](cfg.StaleAfter, logger),
		bus:     bus,
		logger:  logger,
	}
}

func (s *Service) listKey(ctx context.Context, q ListQuery) string {
	return fmt.Sprintf("approvals/%s/list?%s", app.SessionIDFromContext(ctx), listQueryString(q))
}

func (s *Service) itemKey(ctx context.Context, id int64) string {
	return fmt.Sprintf("approvals/%s/item/%d", app.SessionIDFromContext(ctx), id)
}

func (s *Service) historyKey(ctx context.Context, id int64) string {
	return fmt.Sprintf("approvals/%s/history/%d", app.SessionIDFromContext(ctx), id)
}

// invalidateSession drops every cached read the session holds for this
// domain: lists, items and history alike.
func (s *Service) invalidateSession(ctx context.Context) {
	prefix := "approvals/" + app.SessionIDFromContext(ctx) + "/"
	s.lists.InvalidatePrefix(prefix)
	s.items.InvalidatePrefix(prefix)
	s.history.InvalidatePrefix(prefix)
}

func listQueryString(q ListQuery) string {
	values := url.Values{}
	if q.Status != "" {
		values.Set("status", q.Status)
	}
	if q.Scope != "" {
		values.Set("scope", q.Scope)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		values.Set("offset", strconv.Itoa(q.Offset))
	}
	return values.Encode()
}

// List returns the requests visible to the session under the given scope.
func (s *Service) List(ctx context.Context, q ListQuery) ([]Request, error) {
	return s.lists.Get(ctx, s.listKey(ctx, q), func(ctx context.Context) ([]Request, error) {
		endpoint := s.api.EP.Approvals()
		if qs := listQueryString(q); qs != "" {
			endpoint += "?" + qs
		}
		var out []Request
		if err := s.api.Get(ctx, endpoint, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (s *Service) Get(ctx context.Context, id int64) (*Request, error) {
	req, err := s.items.Get(ctx, s.itemKey(ctx, id), func(ctx context.Context) (Request, error) {
		var out Request
		if err := s.api.Get(ctx, s.api.EP.Approval(id), &out); err != nil {
			return Request{}, mapNotFound(err)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Service) History(ctx context.Context, id int64) ([]HistoryEntry, error) {
	return s.history.Get(ctx, s.historyKey(ctx, id), func(ctx context.Context) ([]HistoryEntry, error) {
		var out []HistoryEntry
		if err := s.api.Get(ctx, s.api.EP.ApprovalHistory(id), &out); err != nil {
			return nil, mapNotFound(err)
		}
		return out, nil
	})
}

// ValidateOrder asks the upstream whether an order number is acceptable
// before the user submits the full request.
func (s *Service) ValidateOrder(ctx context.Context, orderNumber string) (*OrderValidation, error) {
	var out OrderValidation
	body := map[string]string{"order_number": orderNumber}
	if err := s.api.Post(ctx, s.api.EP.ValidateOrder(), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit creates a new purchase request under one of the user's profiles.
func (s *Service) Submit(ctx context.Context, user *auth.User, dto SubmitDTO) (*Request, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if !user.HasProfile(dto.ProfileID) {
		return nil, app.NewValidationFieldError("profile_id", "profile is not assigned to this user", app.ErrCodeInvalidProfile)
	}

	var created Request
	if err := s.api.Post(ctx, s.api.EP.Approvals(), dto, &created); err != nil {
		return nil, err
	}

	s.invalidateSession(ctx)
	s.logger.Info("approval request submitted", "request_id", created.ID, "user_id", user.ID, "amount", created.Amount)
	s.bus.Publish(ctx, events.NewApprovalEvent(events.ApprovalSubmitted, created.ID, user.ID, map[string]interface{}{
		"amount": created.Amount,
		"status": string(created.Status),
	}))
	return &created, nil
}

// Cancel withdraws a pending request. The affordance check is a hint; the
// upstream remains the authority and its rejection passes through.
func (s *Service) Cancel(ctx context.Context, user *auth.User, id int64) (*Request, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.CanCancel() {
		return nil, app.ErrInvalidRequestStatus
	}

	var updated Request
	if err := s.api.Post(ctx, s.api.EP.CancelApproval(id), nil, &updated); err != nil {
		s.items.Invalidate(s.itemKey(ctx, id))
		return nil, mapNotFound(err)
	}

	s.invalidateSession(ctx)
	s.bus.Publish(ctx, events.NewApprovalEvent(events.ApprovalCancelled, id, user.ID, nil))
	return &updated, nil
}

// Resubmit pushes an edited needs_revision request back to pending.
func (s *Service) Resubmit(ctx context.Context, user *auth.User, id int64, dto ResubmitDTO) (*Request, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.CanResubmit() {
		return nil, app.ErrInvalidRequestStatus
	}

	var updated Request
	if err := s.api.Post(ctx, s.api.EP.ResubmitApproval(id), dto, &updated); err != nil {
		s.items.Invalidate(s.itemKey(ctx, id))
		return nil, mapNotFound(err)
	}

	s.invalidateSession(ctx)
	s.bus.Publish(ctx, events.NewApprovalEvent(events.ApprovalResubmitted, id, user.ID, map[string]interface{}{
		"status": string(updated.Status),
	}))
	return &updated, nil
}

// Decide records a manager's verdict: approve, reject or delegate.
func (s *Service) Decide(ctx context.Context, user *auth.User, id int64, dto DecisionDTO) (*Request, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.CanDecide(user) {
		if !user.IsManager() {
			return nil, app.NewForbiddenError("only managers may decide requests", app.ErrCodeUnauthorizedAccess)
		}
		return nil, app.ErrInvalidRequestStatus
	}

	var updated Request
	if err := s.api.Post(ctx, s.api.EP.DecideApproval(id), dto, &updated); err != nil {
		s.items.Invalidate(s.itemKey(ctx, id))
		return nil, mapNotFound(err)
	}

	s.invalidateSession(ctx)
	s.bus.Publish(ctx, events.NewApprovalEvent(events.ApprovalDecided, id, user.ID, map[string]interface{}{
		"action": dto.Action,
		"status": string(updated.Status),
	}))
	return &updated, nil
}

// GrantEdit lets a manager reopen a request for editing without a full
// rejection.
func (s *Service) GrantEdit(ctx context.Context, user *auth.User, id int64) (*Request, error) {
	if !user.IsManager() {
		return nil, app.NewForbiddenError("only managers may grant edits", app.ErrCodeUnauthorizedAccess)
	}

	var updated Request
	if err := s.api.Post(ctx, s.api.EP.GrantEditApproval(id), nil, &updated); err != nil {
		return nil, mapNotFound(err)
	}

	s.invalidateSession(ctx)
	return &updated, nil
}

// Archive parks a batch of terminal-status requests.
func (s *Service) Archive(ctx context.Context, user *auth.User, dto ArchiveDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}
	if !user.IsAdmin() {
		return app.NewForbiddenError("only administrators may archive requests", app.ErrCodeUnauthorizedAccess)
	}

	if err := s.api.Post(ctx, s.api.EP.ArchiveApprovals(), dto, nil); err != nil {
		return err
	}

	s.invalidateSession(ctx)
	for _, id := range dto.RequestIDs {
		s.bus.Publish(ctx, events.NewApprovalEvent(events.ApprovalArchived, id, user.ID, nil))
	}
	return nil
}

// Restore brings an archived request back to its pre-archive status.
func (s *Service) Restore(ctx context.Context, user *auth.User, id int64) (*Request, error) {
	if !user.IsAdmin() {
		return nil, app.NewForbiddenError("only administrators may restore requests", app.ErrCodeUnauthorizedAccess)
	}

	var updated Request
	if err := s.api.Post(ctx, s.api.EP.RestoreApproval(id), nil, &updated); err != nil {
		return nil, mapNotFound(err)
	}

	s.invalidateSession(ctx)
	s.bus.Publish(ctx, events.NewApprovalEvent(events.ApprovalRestored, id, user.ID, nil))
	return &updated, nil
}

func mapNotFound(err error) error {
	var appErr *app.AppError
	if errors.As(err, &appErr) && appErr.StatusCode == 404 {
		return app.ErrRequestNotFound
	}
	return err
}
