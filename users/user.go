package users

import (
	"strings"
	"time"
)

// Role is a coarse authorization label carried by users and sessions.
type Role string

const (
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

// User is the full account record. Stores hand out copies.
type User struct {
	ID          int64
	Email       string
	Username    string
	DisplayName string

	PasswordHash string

	// Provider and ExternalID identify accounts created through an external
	// identity authority. Both are empty for local accounts.
	Provider   string
	ExternalID string

	Role     Role
	Verified bool

	FailedAttempts int
	LockedUntil    time.Time

	TOTPSecret  string
	TOTPEnabled bool

	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastLogin         time.Time
	PasswordChangedAt time.Time
}

// Locked reports whether the account is locked at now.
func (u *User) Locked(now time.Time) bool {
	return !u.LockedUntil.IsZero() && u.LockedUntil.After(now)
}

// Patch lists the fields Update may change. Nil fields are left untouched.
type Patch struct {
	Email       *string
	Username    *string
	DisplayName *string

	PasswordHash *string

	// Provider and ExternalID are applied together; setting only one of
	// them is rejected.
	Provider   *string
	ExternalID *string

	Role     *Role
	Verified *bool

	FailedAttempts *int
	LockedUntil    *time.Time

	TOTPSecret  *string
	TOTPEnabled *bool

	LastLogin         *time.Time
	PasswordChangedAt *time.Time
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Role     Role
	Verified *bool
}

func (f Filter) match(u *User) bool {
	if f.Role != "" && u.Role != f.Role {
		return false
	}
	if f.Verified != nil && u.Verified != *f.Verified {
		return false
	}
	return true
}

// NormalizeEmail returns the index form of an email address. Only
// surrounding space is dropped; addresses match case-sensitively.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

// FoldEmail returns the case-folded form of email. Attempt budgets are
// keyed by it so casing variants of one address share a budget.
func FoldEmail(email string) string {
	return strings.ToLower(NormalizeEmail(email))
}

// Ptr returns a pointer to v. It keeps Patch literals short.
func Ptr[T any](v T) *T {
	return &v
}
