package auth

import (
	"context"
	"time"
)

// Role is the closed role enumeration. Precedence is admin > manager > user
// when a single primary role must be picked.
type Role string

const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

var rolePrecedence = []Role{RoleAdmin, RoleManager, RoleUser}

// RoleGrant mirrors the upstream role record: a named role plus the
// capability strings it carries.
type RoleGrant struct {
	ID           int64    `json:"id"`
	Name         Role     `json:"name"`
	Capabilities []string `json:"capabilities"`
}

// ProfileAssignment binds the user to an approval scope: a profile within a
// company/department whose reference data they may use when submitting.
type ProfileAssignment struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id"`
	ProfileID    int64  `json:"profile_id"`
	ProfileName  string `json:"profile_name"`
	CompanyID    *int64 `json:"company_id,omitempty"`
	DepartmentID *int64 `json:"department_id,omitempty"`
	IsActive     bool   `json:"is_active"`
}

// User is the session's cached snapshot of the upstream identity record.
// It is replaced wholesale on every successful fetch, never patched.
type User struct {
	ID          int64               `json:"id"`
	Email       string              `json:"email"`
	DisplayName string              `json:"display_name"`
	Roles       []RoleGrant         `json:"roles"`
	Profiles    []ProfileAssignment `json:"profiles"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func (u *User) HasRole(role Role) bool {
	for _, grant := range u.Roles {
		if grant.Name == role {
			return true
		}
	}
	return false
}

func (u *User) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if u.HasRole(role) {
			return true
		}
	}
	return false
}

func (u *User) HasCapability(capability string) bool {
	for _, grant := range u.Roles {
		for _, c := range grant.Capabilities {
			if c == capability {
				return true
			}
		}
	}
	return false
}

func (u *User) HasProfile(profileID int64) bool {
	for _, assignment := range u.Profiles {
		if assignment.ProfileID == profileID && assignment.IsActive {
			return true
		}
	}
	return false
}

// PrimaryRole returns the highest-precedence role the user holds, falling
// back to the first listed role for role names outside the known set. The
// second return is false when the user has no roles at all.
func (u *User) PrimaryRole() (Role, bool) {
	for _, role := range rolePrecedence {
		if u.HasRole(role) {
			return role, true
		}
	}
	if len(u.Roles) > 0 {
		return u.Roles[0].Name, true
	}
	return "", false
}

// DefaultRoute maps the primary role to the landing path used after login.
func (u *User) DefaultRoute() string {
	role, ok := u.PrimaryRole()
	if !ok {
		return "/dashboard"
	}
	switch role {
	case RoleAdmin:
		return "/admin"
	case RoleManager:
		return "/manager"
	default:
		return "/dashboard"
	}
}

func (u *User) IsManager() bool {
	return u.HasAnyRole(RoleManager, RoleAdmin)
}

func (u *User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

type userCtxKey struct{}

func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, user)
}

func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userCtxKey{}).(*User)
	return user, ok
}
