package session

import "time"

// Session is a server-side sign-in record. Values returned by the Registry
// are copies; mutating them has no effect on the registry.
type Session struct {
	ID       string
	UserID   int64
	Role     string
	Provider string
	Token    string

	UserAgent string
	IP        string

	CreatedAt  time.Time
	LastActive time.Time
	ExpiresAt  time.Time
	EndedAt    time.Time
	Active     bool
}

// Meta is caller-supplied context recorded on a new session.
type Meta struct {
	Role      string
	Provider  string
	UserAgent string
	IP        string
}

// Expired reports whether now is past the session's expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
