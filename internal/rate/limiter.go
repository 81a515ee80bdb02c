package rate

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultMaxAttempts is used when neither Config nor Options set a budget.
	DefaultMaxAttempts = 5
	// DefaultWindow is used when neither Config nor Options set a window.
	DefaultWindow = 15 * time.Minute
)

// Options overrides the limiter defaults for a single check. Zero fields
// inherit the defaults.
type Options struct {
	MaxAttempts int
	Window      time.Duration
}

// Decision is the outcome of a check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter is implemented by both backends.
type Limiter interface {
	Check(ctx context.Context, key string, opts Options) (Decision, error)
	Reset(ctx context.Context, key string) error
}

// Config holds limiter defaults.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	Prefix      string
	Now         func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Prefix == "" {
		c.Prefix = "thr"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

func (c Config) resolve(opts Options) (int, time.Duration, error) {
	maxAttempts, window := opts.MaxAttempts, opts.Window
	if maxAttempts == 0 {
		maxAttempts = c.MaxAttempts
	}
	if window == 0 {
		window = c.Window
	}
	if maxAttempts < 1 || window <= 0 {
		return 0, 0, ErrInvalidOptions
	}
	return maxAttempts, window, nil
}

type entry struct {
	mu   sync.Mutex
	hits []time.Time
	// window is the widest window any check has applied to this key.
	window time.Duration
	dead   bool
}

// prune drops hits outside the trailing window. hits is kept in
// ascending order, so the survivors are a suffix.
func (e *entry) prune(now time.Time, window time.Duration) {
	i := 0
	for i < len(e.hits) && now.Sub(e.hits[i]) >= window {
		i++
	}
	if i > 0 {
		e.hits = append(e.hits[:0], e.hits[i:]...)
	}
}

// Memory is the process-local sliding-window limiter.
type Memory struct {
	cfg     Config
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewMemory creates an empty in-memory limiter.
func NewMemory(cfg Config) *Memory {
	return &Memory{
		cfg:     cfg.withDefaults(),
		entries: make(map[string]*entry),
	}
}

// Check applies the sliding window to key.
func (m *Memory) Check(_ context.Context, key string, opts Options) (Decision, error) {
	maxAttempts, window, err := m.cfg.resolve(opts)
	if err != nil {
		return Decision{}, err
	}

	for {
		e := m.entry(key)
		e.mu.Lock()
		if e.dead {
			// Reclaimed by Sweep between lookup and lock.
			e.mu.Unlock()
			continue
		}

		if window > e.window {
			e.window = window
		}
		now := m.cfg.Now()
		e.prune(now, window)

		if len(e.hits) >= maxAttempts {
			d := Decision{Allowed: false, Remaining: 0, ResetAt: e.hits[0].Add(window)}
			e.mu.Unlock()
			return d, nil
		}

		e.hits = append(e.hits, now)
		d := Decision{
			Allowed:   true,
			Remaining: maxAttempts - len(e.hits),
			ResetAt:   e.hits[0].Add(window),
		}
		e.mu.Unlock()
		return d, nil
	}
}

// Reset forgets every attempt recorded for key.
func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	e, ok := m.entries[key]
	delete(m.entries, key)
	m.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.dead = true
		e.hits = nil
		e.mu.Unlock()
	}
	return nil
}

// Sweep prunes every key against the widest window it was checked with and
// removes keys left empty. It returns the number of keys reclaimed.
func (m *Memory) Sweep() int {
	m.mu.RLock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	removed := 0
	for _, k := range keys {
		m.mu.RLock()
		e, ok := m.entries[k]
		m.mu.RUnlock()
		if !ok {
			continue
		}

		e.mu.Lock()
		window := e.window
		if window <= 0 {
			window = m.cfg.Window
		}
		e.prune(m.cfg.Now(), window)
		if len(e.hits) == 0 && !e.dead {
			e.dead = true
			m.mu.Lock()
			if m.entries[k] == e {
				delete(m.entries, k)
			}
			m.mu.Unlock()
			removed++
		}
		e.mu.Unlock()
	}

	return removed
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) entry(key string) *entry {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok = m.entries[key]; ok {
		return e
	}
	e = &entry{}
	m.entries[key] = e
	return e
}
