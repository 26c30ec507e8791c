package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/voicecal/internal/conversation"
	"github.com/teemow/voicecal/internal/logging"
)

// DefaultSessionTimeout is how long an unused transport session stays valid.
const DefaultSessionTimeout = 30 * time.Minute

// ErrUnknownSession is returned when a client presents a session id this
// server never issued or has already forgotten.
var ErrUnknownSession = errors.New("unknown session id")

// sessionInfo tracks session metadata for cleanup
type sessionInfo struct {
	lastAccess time.Time
	terminated bool
}

// SessionIDManager issues and tracks streamable HTTP session ids. Ending a
// transport session, either by the client or by idle expiry, clears the
// matching conversation context.
type SessionIDManager struct {
	sessions       map[string]*sessionInfo
	mu             sync.RWMutex
	store          conversation.Store
	cleanupTicker  *time.Ticker
	cleanupDone    chan struct{}
	stopOnce       sync.Once
	sessionTimeout time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

// NewSessionIDManager creates a session ID manager and starts its cleanup
// loop. A zero timeout uses DefaultSessionTimeout.
func NewSessionIDManager(store conversation.Store, timeout time.Duration, logger *slog.Logger) *SessionIDManager {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}

	interval := timeout / 10
	if interval < time.Second {
		interval = time.Second
	}

	m := &SessionIDManager{
		sessions:       make(map[string]*sessionInfo),
		store:          store,
		cleanupTicker:  time.NewTicker(interval),
		cleanupDone:    make(chan struct{}),
		sessionTimeout: timeout,
		logger:         logger,
		now:            time.Now,
	}

	go m.cleanupLoop()

	return m
}

// Generate issues a new random session id.
func (m *SessionIDManager) Generate() string {
	id := uuid.NewString()

	m.mu.Lock()
	m.sessions[id] = &sessionInfo{lastAccess: m.now()}
	m.mu.Unlock()

	m.logger.Debug("Issued transport session", logging.Session(id))
	return id
}

// Validate reports whether id is a live session and marks it used.
func (m *SessionIDManager) Validate(id string) (isTerminated bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.sessions[id]
	if !ok {
		return false, ErrUnknownSession
	}
	if info.terminated {
		return true, nil
	}
	info.lastAccess = m.now()
	return false, nil
}

// Terminate ends a session on client request and drops its conversation
// context.
func (m *SessionIDManager) Terminate(id string) (isNotAllowed bool, err error) {
	m.mu.Lock()
	info, ok := m.sessions[id]
	if ok {
		info.terminated = true
		info.lastAccess = m.now()
	}
	m.mu.Unlock()

	if !ok {
		return false, ErrUnknownSession
	}

	m.clearContext(id)
	m.logger.Info("Transport session terminated", logging.Session(id))
	return false, nil
}

// ActiveSessions returns the number of live, non-terminated sessions.
func (m *SessionIDManager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, info := range m.sessions {
		if !info.terminated {
			n++
		}
	}
	return n
}

// Stop ends the cleanup loop.
func (m *SessionIDManager) Stop() {
	m.stopOnce.Do(func() {
		m.cleanupTicker.Stop()
		close(m.cleanupDone)
	})
}

func (m *SessionIDManager) clearContext(id string) {
	if m.store == nil {
		return
	}
	if err := m.store.ClearSession(context.Background(), id); err != nil {
		m.logger.Warn("Failed to clear conversation context", logging.Session(id), logging.Err(err))
	}
}

// expire drops sessions idle for longer than the timeout. Terminated
// sessions are kept for one more timeout so that late requests still get a
// "terminated" answer.
func (m *SessionIDManager) expire() int {
	now := m.now()
	var expired []string

	m.mu.Lock()
	for id, info := range m.sessions {
		if now.Sub(info.lastAccess) <= m.sessionTimeout {
			continue
		}
		if !info.terminated {
			expired = append(expired, id)
		}
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.clearContext(id)
	}
	return len(expired)
}

// cleanupLoop periodically removes expired sessions
func (m *SessionIDManager) cleanupLoop() {
	for {
		select {
		case <-m.cleanupTicker.C:
			if n := m.expire(); n > 0 {
				m.logger.Info("Cleaned up expired sessions", "count", n)
			}
		case <-m.cleanupDone:
			return
		}
	}
}
