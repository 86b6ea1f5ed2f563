package profile

import (
	"context"
	"log/slog"

	app "github.com/approvalflow/approval-gateway/internal"
	"github.com/approvalflow/approval-gateway/internal/auth"
	"github.com/approvalflow/approval-gateway/internal/core/common/validation"
	"github.com/approvalflow/approval-gateway/internal/upstream"
)

// AssignmentDTO binds or unbinds a profile for a user.
type AssignmentDTO struct {
	UserID    int64 `json:"user_id"`
	ProfileID int64 `json:"profile_id"`
}

func (d *AssignmentDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("user_id", d.UserID).Required()
	validator.Field("profile_id", d.ProfileID).Required()
	if err := validator.Validate(); err != nil {
		return err
	}
	return nil
}

// CatalogInvalidator drops the calling session's cached reference
// catalogs. Profile assignments decide which catalog rows the upstream
// serves a session, so a change must evict what was cached under the old
// assignment.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context)
}

// Service covers the admin-side profile administration: listing users and
// assigning or revoking their approval profiles. All state lives upstream;
// nothing here is cached because admins expect assignment changes to be
// visible immediately.
type Service struct {
	api      *upstream.Client
	catalogs CatalogInvalidator
	logger   *slog.Logger
}

func NewService(api *upstream.Client, catalogs CatalogInvalidator, logger *slog.Logger) *Service {
	return &Service{api: api, catalogs: catalogs, logger: logger}
}

func (s *Service) ListUsers(ctx context.Context, actor *auth.User) ([]auth.User, error) {
	if !actor.IsAdmin() {
		return nil, app.NewForbiddenError("only administrators may list users", app.ErrCodeUnauthorizedAccess)
	}

	var out []auth.User
	if err := s.api.Get(ctx, s.api.EP.Users(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetUser fetches one user record, with current roles and profile, for the
// admin assignment screen.
func (s *Service) GetUser(ctx context.Context, actor *auth.User, id int64) (*auth.User, error) {
	if !actor.IsAdmin() {
		return nil, app.NewForbiddenError("only administrators may view users", app.ErrCodeUnauthorizedAccess)
	}

	var out auth.User
	if err := s.api.Get(ctx, s.api.EP.User(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) Assign(ctx context.Context, actor *auth.User, dto AssignmentDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return app.NewForbiddenError("only administrators may assign profiles", app.ErrCodeUnauthorizedAccess)
	}

	if err := s.api.Post(ctx, s.api.EP.AssignProfile(), dto, nil); err != nil {
		return err
	}
	s.catalogs.Invalidate(ctx)
	s.logger.Info("profile assigned", "user_id", dto.UserID, "profile_id", dto.ProfileID, "actor_id", actor.ID)
	return nil
}

func (s *Service) Revoke(ctx context.Context, actor *auth.User, dto AssignmentDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return app.NewForbiddenError("only administrators may revoke profiles", app.ErrCodeUnauthorizedAccess)
	}

	if err := s.api.Post(ctx, s.api.EP.RevokeProfile(), dto, nil); err != nil {
		return err
	}
	s.catalogs.Invalidate(ctx)
	s.logger.Info("profile revoked", "user_id", dto.UserID, "profile_id", dto.ProfileID, "actor_id", actor.ID)
	return nil
}
