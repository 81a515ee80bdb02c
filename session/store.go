package session

import (
	"crypto/subtle"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/goSignIn/internal"
)

// DefaultLifetime applies when Config.Lifetime is zero.
const DefaultLifetime = 24 * time.Hour

var (
	// ErrNotFound is returned by RotateToken for unknown, ended, or expired sessions.
	ErrNotFound = errors.New("session not found")
	// ErrTokenMismatch is returned by RotateToken when the presented token is stale.
	ErrTokenMismatch = errors.New("session token mismatch")
	// ErrEmptyToken is returned by Create when the mint callback yields no token.
	ErrEmptyToken = errors.New("session token empty")
)

// MintFunc produces the bearer token for a session that is about to exist.
type MintFunc func(sessionID string) (string, error)

// Config defines a public type used by goSignIn APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Lifetime time.Duration
	Now      func() time.Time
}

// Registry is the process-local session table. One lock guards the table
// and both indices so they can never disagree.
type Registry struct {
	lifetime time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[int64]map[string]struct{}
	byToken  map[[32]byte]string
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultLifetime
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		lifetime: cfg.Lifetime,
		now:      cfg.Now,
		sessions: make(map[string]*Session),
		byUser:   make(map[int64]map[string]struct{}),
		byToken:  make(map[[32]byte]string),
	}
}

// Lifetime returns the configured session lifetime.
func (r *Registry) Lifetime() time.Duration {
	return r.lifetime
}

// Create allocates a session id, asks mint for the session's token, and only
// then stores the session. A mint failure leaves no trace.
func (r *Registry) Create(userID int64, meta Meta, mint MintFunc) (*Session, error) {
	sid, err := r.newID()
	if err != nil {
		return nil, err
	}

	token, err := mint(sid)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrEmptyToken
	}

	now := r.now()
	s := &Session{
		ID:         sid,
		UserID:     userID,
		Role:       meta.Role,
		Provider:   meta.Provider,
		Token:      token,
		UserAgent:  meta.UserAgent,
		IP:         meta.IP,
		CreatedAt:  now,
		LastActive: now,
		ExpiresAt:  now.Add(r.lifetime),
		Active:     true,
	}

	r.mu.Lock()
	r.sessions[sid] = s
	ids, ok := r.byUser[userID]
	if !ok {
		ids = make(map[string]struct{})
		r.byUser[userID] = ids
	}
	ids[sid] = struct{}{}
	r.byToken[internal.HashToken(token)] = sid
	out := *s
	r.mu.Unlock()

	return &out, nil
}

func (r *Registry) newID() (string, error) {
	for {
		raw, err := internal.NewSessionID()
		if err != nil {
			return "", err
		}
		sid := raw.String()

		r.mu.RLock()
		_, taken := r.sessions[sid]
		r.mu.RUnlock()
		if !taken {
			return sid, nil
		}
	}
}

// Get returns a live session and refreshes its LastActive. It returns nil for
// unknown or ended sessions, and ends a session found past its expiry.
func (r *Registry) Get(sessionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || !s.Active {
		return nil
	}

	now := r.now()
	if s.Expired(now) {
		r.endLocked(s, now)
		return nil
	}

	s.LastActive = now
	out := *s
	return &out
}

// End deactivates a session. It reports whether this call ended it; ending
// an unknown or already-ended session is a no-op.
func (r *Registry) End(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || !s.Active {
		return false
	}
	r.endLocked(s, r.now())
	return true
}

// EndByToken ends the session that was issued token, if any.
func (r *Registry) EndByToken(token string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sid, ok := r.byToken[internal.HashToken(token)]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[sid]
	if !ok || !s.Active {
		return nil, false
	}
	r.endLocked(s, r.now())
	out := *s
	return &out, true
}

// EndAllForUser ends every active session of userID and returns how many
// were ended.
func (r *Registry) EndAllForUser(userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.byUser[userID]
	if len(ids) == 0 {
		return 0
	}

	now := r.now()
	ended := 0
	for sid := range ids {
		if s, ok := r.sessions[sid]; ok && s.Active {
			r.endLocked(s, now)
			ended++
		}
	}
	delete(r.byUser, userID)
	return ended
}

// EndByRole ends every active session created for role and returns how
// many were ended. Sessions are locked one at a time.
func (r *Registry) EndByRole(role string) int {
	r.mu.RLock()
	ids := make([]string, 0)
	for sid, s := range r.sessions {
		if s.Active && s.Role == role {
			ids = append(ids, sid)
		}
	}
	r.mu.RUnlock()

	ended := 0
	for _, sid := range ids {
		r.mu.Lock()
		if s, ok := r.sessions[sid]; ok && s.Active && s.Role == role {
			r.endLocked(s, r.now())
			ended++
		}
		r.mu.Unlock()
	}
	return ended
}

// GetUserSessions lists the live sessions of userID ordered by creation
// time. Sessions found expired are ended on the way.
func (r *Registry) GetUserSessions(userID int64) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	ids := r.byUser[userID]
	out := make([]Session, 0, len(ids))
	for sid := range ids {
		s, ok := r.sessions[sid]
		if !ok || !s.Active {
			continue
		}
		if s.Expired(now) {
			r.endLocked(s, now)
			continue
		}
		out = append(out, *s)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// RotateToken replaces the token of a live session, provided oldToken is
// still the current one.
func (r *Registry) RotateToken(sessionID, oldToken, newToken string) error {
	if newToken == "" {
		return ErrEmptyToken
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || !s.Active {
		return ErrNotFound
	}
	now := r.now()
	if s.Expired(now) {
		r.endLocked(s, now)
		return ErrNotFound
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(oldToken)) != 1 {
		return ErrTokenMismatch
	}

	delete(r.byToken, internal.HashToken(s.Token))
	s.Token = newToken
	s.LastActive = now
	r.byToken[internal.HashToken(newToken)] = sessionID
	return nil
}

// Sweep ends sessions past their expiry and drops records of sessions that
// have already ended. The lock is taken per session, never for the whole
// pass. It returns the number of records removed.
func (r *Registry) Sweep() int {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for sid := range r.sessions {
		ids = append(ids, sid)
	}
	r.mu.RUnlock()

	removed := 0
	for _, sid := range ids {
		r.mu.Lock()
		s, ok := r.sessions[sid]
		if ok {
			now := r.now()
			if s.Active && s.Expired(now) {
				r.endLocked(s, now)
			}
			if !s.Active {
				delete(r.sessions, sid)
				removed++
			}
		}
		r.mu.Unlock()
	}
	return removed
}

// ActiveCount returns the number of sessions currently marked active,
// including ones whose expiry has passed but were not yet looked up.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.sessions {
		if s.Active {
			n++
		}
	}
	return n
}

func (r *Registry) endLocked(s *Session, now time.Time) {
	s.Active = false
	s.EndedAt = now

	if ids, ok := r.byUser[s.UserID]; ok {
		delete(ids, s.ID)
		if len(ids) == 0 {
			delete(r.byUser, s.UserID)
		}
	}
	if sid, ok := r.byToken[internal.HashToken(s.Token)]; ok && sid == s.ID {
		delete(r.byToken, internal.HashToken(s.Token))
	}
}
