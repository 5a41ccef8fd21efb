package crossauth

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/MrEthical07/crossauth/session"
)

// Role is a closed enumeration of user roles. Only values present in the Manager's
// [RoleSet] are accepted at the boundary.
type Role string

const (
	// RoleUser is the default role assigned when none is requested.
	RoleUser Role = "USER"
	// RoleAdmin is the built-in administrative role.
	RoleAdmin Role = "ADMIN"
)

// RoleSet is the set of roles a deployment recognizes, plus the default applied to
// new users. The zero value is not usable; build one with [NewRoleSet].
type RoleSet struct {
	roles []Role
	def   Role
}

// NewRoleSet returns a set containing the built-in roles and extra. Role names are
// upper-cased. def must be a member of the resulting set.
func NewRoleSet(def Role, extra ...Role) (RoleSet, error) {
	rs := RoleSet{roles: []Role{RoleUser, RoleAdmin}}
	for _, r := range extra {
		r = normalizeRole(string(r))
		if r == "" {
			return RoleSet{}, ErrInvalidRole
		}
		if !slices.Contains(rs.roles, r) {
			rs.roles = append(rs.roles, r)
		}
	}

	def = normalizeRole(string(def))
	if def == "" {
		def = RoleUser
	}
	if !slices.Contains(rs.roles, def) {
		return RoleSet{}, ErrInvalidRole
	}
	rs.def = def
	return rs, nil
}

func normalizeRole(s string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(s)))
}

// Parse maps raw to a known role. Empty input yields the default role; anything not
// in the set yields [ErrInvalidRole].
func (rs RoleSet) Parse(raw string) (Role, error) {
	r := normalizeRole(raw)
	if r == "" {
		return rs.def, nil
	}
	if !slices.Contains(rs.roles, r) {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Contains reports whether r is a member of the set.
func (rs RoleSet) Contains(r Role) bool {
	return slices.Contains(rs.roles, r)
}

// Default returns the role assigned when none is requested.
func (rs RoleSet) Default() Role {
	return rs.def
}

// Roles returns the members of the set in registration order.
func (rs RoleSet) Roles() []Role {
	return slices.Clone(rs.roles)
}

// User is an identity record owned by the credential store. The core reads users but
// never mutates them after creation.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          Role      `json:"role"`
	EmailVerified bool      `json:"emailVerified"`
	Image         string    `json:"image,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	PasswordHash  string    `json:"-"`
}

// Identity is the resolved (session, user) pair for a validated token.
type Identity struct {
	Session session.Session
	User    User
}

// RegisterInput carries a sign-up request. Role is optional; empty selects the
// default role.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// CredentialStore is the durable backing store for users and sessions.
//
// Reads of unknown records return [ErrUserNotFound] or [session.ErrNotFound]. Deletes
// of unknown records succeed. Every other failure should wrap [ErrStorage].
type CredentialStore interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)

	CreateSession(ctx context.Context, sess *session.Session) error
	GetSession(ctx context.Context, token string) (*session.Session, error)
	DeleteSession(ctx context.Context, token string) error
	// DeleteUserSessions removes every session owned by userID and returns their tokens.
	DeleteUserSessions(ctx context.Context, userID string) ([]string, error)
}

// Invalidator fans revocations out to other processes sharing the same store.
// [session.Broadcaster] implements it over Redis Pub/Sub.
type Invalidator interface {
	Publish(ctx context.Context, token string) error
	Subscribe(ctx context.Context, fn func(token string)) (func(), error)
}

// Clock abstracts wall-clock time. Tests inject a fake to drive expiry.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
