package users

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/goSignIn/autherr"
)

// Store persists user records. Implementations must keep every lookup path
// consistent with the others after each call returns.
//
// Lookups that find nothing return an error matching autherr.ErrUserNotFound.
// Create and Update return an error matching autherr.ErrUserExists when the
// email, username, or external identity is already taken by another record.
type Store interface {
	Create(ctx context.Context, u User) (*User, error)
	ByID(ctx context.Context, id int64) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	ByUsername(ctx context.Context, username string) (*User, error)
	ByExternalIdentity(ctx context.Context, provider, externalID string) (*User, error)
	Update(ctx context.Context, id int64, p Patch) (*User, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f Filter) ([]User, error)
}

type externalKey struct {
	provider string
	id       string
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	now func() time.Time

	mu         sync.RWMutex
	nextID     int64
	byID       map[int64]*User
	byEmail    map[string]int64
	byUsername map[string]int64
	byExternal map[externalKey]int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. A nil now uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:        now,
		byID:       make(map[int64]*User),
		byEmail:    make(map[string]int64),
		byUsername: make(map[string]int64),
		byExternal: make(map[externalKey]int64),
	}
}

// Create assigns the next id and stores u. The ID, CreatedAt, and UpdatedAt
// fields of u are ignored.
func (s *MemoryStore) Create(ctx context.Context, u User) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u.Email = NormalizeEmail(u.Email)
	if u.Email == "" {
		return nil, fmt.Errorf("%w: email required", autherr.ErrValidation)
	}
	if u.Role == "" {
		u.Role = RoleUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[u.Email]; taken {
		return nil, fmt.Errorf("%w: email", autherr.ErrUserExists)
	}
	if u.Username != "" {
		if _, taken := s.byUsername[u.Username]; taken {
			return nil, fmt.Errorf("%w: username", autherr.ErrUserExists)
		}
	}
	ext := externalKey{provider: u.Provider, id: u.ExternalID}
	if u.ExternalID != "" {
		if _, taken := s.byExternal[ext]; taken {
			return nil, fmt.Errorf("%w: external identity", autherr.ErrUserExists)
		}
	}

	s.nextID++
	now := s.now()
	u.ID = s.nextID
	u.CreatedAt = now
	u.UpdatedAt = now

	rec := u
	s.byID[rec.ID] = &rec
	s.byEmail[rec.Email] = rec.ID
	if rec.Username != "" {
		s.byUsername[rec.Username] = rec.ID
	}
	if rec.ExternalID != "" {
		s.byExternal[ext] = rec.ID
	}

	out := rec
	return &out, nil
}

// ByID returns the user with id.
func (s *MemoryStore) ByID(ctx context.Context, id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked(id)
}

// ByEmail returns the user registered under email, ignoring case.
func (s *MemoryStore) ByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, autherr.ErrUserNotFound
	}
	return s.copyLocked(id)
}

// ByUsername returns the user registered under username.
func (s *MemoryStore) ByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok || username == "" {
		return nil, autherr.ErrUserNotFound
	}
	return s.copyLocked(id)
}

// ByExternalIdentity returns the user linked to externalID at provider.
func (s *MemoryStore) ByExternalIdentity(ctx context.Context, provider, externalID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byExternal[externalKey{provider: provider, id: externalID}]
	if !ok || externalID == "" {
		return nil, autherr.ErrUserNotFound
	}
	return s.copyLocked(id)
}

// Update merges p into the record, re-indexes a changed email, username, or
// external identity, and stamps UpdatedAt. Nothing changes when the new email or username
// belongs to another record.
func (s *MemoryStore) Update(ctx context.Context, id int64, p Patch) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[id]
	if !ok {
		return nil, autherr.ErrUserNotFound
	}

	next := *cur
	if p.Email != nil {
		next.Email = NormalizeEmail(*p.Email)
		if next.Email == "" {
			return nil, fmt.Errorf("%w: email required", autherr.ErrValidation)
		}
		if owner, taken := s.byEmail[next.Email]; taken && owner != id {
			return nil, fmt.Errorf("%w: email", autherr.ErrUserExists)
		}
	}
	if p.Username != nil {
		next.Username = *p.Username
		if owner, taken := s.byUsername[next.Username]; next.Username != "" && taken && owner != id {
			return nil, fmt.Errorf("%w: username", autherr.ErrUserExists)
		}
	}
	if (p.Provider == nil) != (p.ExternalID == nil) {
		return nil, fmt.Errorf("%w: provider and external id must change together", autherr.ErrValidation)
	}
	if p.Provider != nil {
		next.Provider = *p.Provider
		next.ExternalID = *p.ExternalID
		key := externalKey{provider: next.Provider, id: next.ExternalID}
		if owner, taken := s.byExternal[key]; next.ExternalID != "" && taken && owner != id {
			return nil, fmt.Errorf("%w: external identity", autherr.ErrUserExists)
		}
	}
	if p.DisplayName != nil {
		next.DisplayName = *p.DisplayName
	}
	if p.PasswordHash != nil {
		next.PasswordHash = *p.PasswordHash
	}
	if p.Role != nil {
		next.Role = *p.Role
	}
	if p.Verified != nil {
		next.Verified = *p.Verified
	}
	if p.FailedAttempts != nil {
		next.FailedAttempts = *p.FailedAttempts
	}
	if p.LockedUntil != nil {
		next.LockedUntil = *p.LockedUntil
	}
	if p.TOTPSecret != nil {
		next.TOTPSecret = *p.TOTPSecret
	}
	if p.TOTPEnabled != nil {
		next.TOTPEnabled = *p.TOTPEnabled
	}
	if p.LastLogin != nil {
		next.LastLogin = *p.LastLogin
	}
	if p.PasswordChangedAt != nil {
		next.PasswordChangedAt = *p.PasswordChangedAt
	}
	next.UpdatedAt = s.now()

	if next.Email != cur.Email {
		delete(s.byEmail, cur.Email)
		s.byEmail[next.Email] = id
	}
	if next.Username != cur.Username {
		if cur.Username != "" {
			delete(s.byUsername, cur.Username)
		}
		if next.Username != "" {
			s.byUsername[next.Username] = id
		}
	}

	if next.Provider != cur.Provider || next.ExternalID != cur.ExternalID {
		if cur.ExternalID != "" {
			delete(s.byExternal, externalKey{provider: cur.Provider, id: cur.ExternalID})
		}
		if next.ExternalID != "" {
			s.byExternal[externalKey{provider: next.Provider, id: next.ExternalID}] = id
		}
	}

	*cur = next
	out := next
	return &out, nil
}

// Delete removes the record and all of its index entries. Deleting an
// unknown id is not an error.
func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return nil
	}
	delete(s.byID, id)
	delete(s.byEmail, u.Email)
	if u.Username != "" {
		delete(s.byUsername, u.Username)
	}
	if u.ExternalID != "" {
		delete(s.byExternal, externalKey{provider: u.Provider, id: u.ExternalID})
	}
	return nil
}

// List returns matching users ordered by id.
func (s *MemoryStore) List(ctx context.Context, f Filter) ([]User, error) {
	s.mu.RLock()
	out := make([]User, 0, len(s.byID))
	for _, u := range s.byID {
		if f.match(u) {
			out = append(out, *u)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Len returns the number of stored users.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *MemoryStore) copyLocked(id int64) (*User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, autherr.ErrUserNotFound
	}
	out := *u
	return &out, nil
}
