package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/voicecal/internal/logging"
)

const (
	DefaultIdleTimeout     = 30 * time.Minute
	DefaultMaxSessions     = 1000
	DefaultCleanupInterval = time.Minute
)

// SessionObserver is notified when sessions come and go. Reason is one of
// "idle", "capacity" or "cleared".
type SessionObserver interface {
	IncrementActiveSessions(ctx context.Context)
	DecrementActiveSessions(ctx context.Context, reason string)
}

const (
	releaseIdle     = "idle"
	releaseCapacity = "capacity"
	releaseCleared  = "cleared"
)

type memoryEntry struct {
	session    *Session
	lastAccess time.Time
}

// MemoryStore keeps sessions in process memory. Idle sessions are evicted in
// the background and the least recently used session makes room when the
// store is full.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memoryEntry

	idleTimeout time.Duration
	maxSessions int
	interval    time.Duration
	observer    SessionObserver
	logger      *slog.Logger
	now         func() time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithIdleTimeout sets how long an untouched session survives. Zero disables
// idle eviction.
func WithIdleTimeout(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.idleTimeout = d }
}

// WithMaxSessions caps the number of live sessions. Zero means unlimited.
func WithMaxSessions(n int) MemoryOption {
	return func(s *MemoryStore) { s.maxSessions = n }
}

// WithCleanupInterval sets how often idle sessions are swept.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.interval = d }
}

// WithObserver reports session creation and release.
func WithObserver(o SessionObserver) MemoryOption {
	return func(s *MemoryStore) { s.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) MemoryOption {
	return func(s *MemoryStore) { s.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates a store and starts its eviction loop. Call Stop to
// end it.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions:    make(map[string]*memoryEntry),
		idleTimeout: DefaultIdleTimeout,
		maxSessions: DefaultMaxSessions,
		interval:    DefaultCleanupInterval,
		logger:      slog.Default(),
		now:         time.Now,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.idleTimeout > 0 && s.interval > 0 {
		go s.cleanupLoop()
	}
	return s
}

// Stop ends the eviction loop. Sessions stay readable.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// GetSession returns a copy of the session, creating it on first access.
func (s *MemoryStore) GetSession(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrEmptySessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entry(ctx, id).session.clone(), nil
}

// UpdateLastQuery records a query on the session.
func (s *MemoryStore) UpdateLastQuery(ctx context.Context, id, operation string, params, result any) error {
	if id == "" {
		return ErrEmptySessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entry(ctx, id).session.recordQuery(operation, params, result, s.now())
}

// FindEventByReference resolves phrase against the session's last listing.
// It returns nil when nothing matches.
func (s *MemoryStore) FindEventByReference(ctx context.Context, id, phrase string) (*EventRef, error) {
	if id == "" {
		return nil, ErrEmptySessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := ResolveReference(s.entry(ctx, id).session.LastEventsList, phrase)
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

// AddConversationItem appends to the session history.
func (s *MemoryStore) AddConversationItem(ctx context.Context, id, itemType, content string) error {
	if id == "" {
		return ErrEmptySessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(ctx, id).session.appendHistory(itemType, content, s.now())
	return nil
}

// ClearSession drops all state of the session.
func (s *MemoryStore) ClearSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		delete(s.sessions, id)
		s.release(ctx, releaseCleared)
	}
	return nil
}

// entry returns the live entry for id, creating it if needed, and marks it
// accessed. Callers hold the write lock.
func (s *MemoryStore) entry(ctx context.Context, id string) *memoryEntry {
	now := s.now()
	if e, ok := s.sessions[id]; ok {
		e.lastAccess = now
		return e
	}

	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		s.evictOldest(ctx)
	}
	e := &memoryEntry{session: newSession(id, now), lastAccess: now}
	s.sessions[id] = e
	if s.observer != nil {
		s.observer.IncrementActiveSessions(ctx)
	}
	s.logger.Debug("Created conversation session", logging.Session(id))
	return e
}

func (s *MemoryStore) evictOldest(ctx context.Context) {
	var oldestID string
	var oldest time.Time
	for id, e := range s.sessions {
		if oldestID == "" || e.lastAccess.Before(oldest) {
			oldestID, oldest = id, e.lastAccess
		}
	}
	if oldestID == "" {
		return
	}
	delete(s.sessions, oldestID)
	s.release(ctx, releaseCapacity)
	s.logger.Info("Evicted least recently used session", logging.Session(oldestID))
}

func (s *MemoryStore) release(ctx context.Context, reason string) {
	if s.observer != nil {
		s.observer.DecrementActiveSessions(ctx, reason)
	}
}

// EvictIdle removes sessions untouched for longer than the idle timeout and
// returns how many were removed.
func (s *MemoryStore) EvictIdle(ctx context.Context) int {
	if s.idleTimeout <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for id, e := range s.sessions {
		if now.Sub(e.lastAccess) > s.idleTimeout {
			delete(s.sessions, id)
			s.release(ctx, releaseIdle)
			evicted++
		}
	}
	return evicted
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.EvictIdle(context.Background()); n > 0 {
				s.logger.Info("Cleaned up idle sessions", "count", n)
			}
		case <-s.done:
			return
		}
	}
}
