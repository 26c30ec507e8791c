package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/voicecal/internal/instrumentation"
	"github.com/teemow/voicecal/internal/logging"
)

const (
	// DefaultRefreshThreshold refreshes tokens that expire within this window.
	DefaultRefreshThreshold = 5 * time.Minute

	refreshTimeout = 30 * time.Second
)

// RefreshRecorder receives the outcome of every refresh attempt.
type RefreshRecorder interface {
	RecordOAuthTokenRefresh(ctx context.Context, result string)
}

// Status describes the credential currently held in memory.
type Status struct {
	Connected       bool
	Expiry          time.Time
	HasRefreshToken bool
	Scope           string
}

// Manager owns the in-memory calendar credential. It is safe for
// concurrent use.
type Manager struct {
	store      Store
	config     *oauth2.Config
	logger     logging.Logger
	recorder   RefreshRecorder
	httpClient *http.Client
	threshold  time.Duration
	now        func() time.Time

	mu    sync.RWMutex
	token *oauth2.Token

	group singleflight.Group
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithRefreshRecorder reports refresh outcomes, usually to metrics.
func WithRefreshRecorder(r RefreshRecorder) ManagerOption {
	return func(m *Manager) { m.recorder = r }
}

// WithHTTPClient sets the client used for the token exchange.
func WithHTTPClient(c *http.Client) ManagerOption {
	return func(m *Manager) { m.httpClient = c }
}

// WithRefreshThreshold overrides DefaultRefreshThreshold.
func WithRefreshThreshold(d time.Duration) ManagerOption {
	return func(m *Manager) { m.threshold = d }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager. config may be nil, in which case expired
// tokens cannot be refreshed.
func NewManager(store Store, config *oauth2.Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		config:    config,
		logger:    logging.NewSlogAdapter(nil),
		threshold: DefaultRefreshThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize loads the stored credential. It reports false when nothing
// usable is stored. A decryption failure also reports false and returns
// ErrDecrypt so the caller can surface it as a key-rotation problem.
func (m *Manager) Initialize(ctx context.Context) (bool, error) {
	tok, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNotConnected):
		m.reset()
		return false, nil
	case errors.Is(err, ErrDecrypt):
		m.reset()
		m.logger.Error("Failed to decrypt tokens. This may happen if the encryption key has changed.", "error", err)
		return false, err
	case err != nil:
		return false, fmt.Errorf("failed to load credentials: %w", err)
	}

	if tok.AccessToken == "" && tok.RefreshToken == "" {
		m.reset()
		return false, nil
	}

	m.mu.Lock()
	m.token = tok
	m.mu.Unlock()

	m.logger.Debug("Loaded calendar credentials",
		"access_token", logging.SanitizeToken(tok.AccessToken),
		"expiry", tok.Expiry)
	return true, nil
}

// Token returns a valid access token, initializing from the store on first
// use and refreshing when the token is about to expire.
func (m *Manager) Token(ctx context.Context) (*oauth2.Token, error) {
	tok := m.current()
	if tok == nil {
		ok, err := m.Initialize(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
		if !ok {
			return nil, ErrNotConnected
		}
		tok = m.current()
	}

	if !m.needsRefresh(tok) {
		return tok, nil
	}

	v, err, _ := m.group.Do("refresh", func() (any, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Token), nil
}

// Status reports the credential currently held in memory.
func (m *Manager) Status() Status {
	tok := m.current()
	if tok == nil {
		return Status{}
	}
	scope, _ := tok.Extra("scope").(string)
	return Status{
		Connected:       true,
		Expiry:          tok.Expiry,
		HasRefreshToken: tok.RefreshToken != "",
		Scope:           scope,
	}
}

func (m *Manager) refresh(ctx context.Context) (*oauth2.Token, error) {
	// Another caller may have refreshed while this one waited.
	tok := m.current()
	if tok == nil {
		return nil, ErrNotConnected
	}
	if !m.needsRefresh(tok) {
		return tok, nil
	}

	if tok.RefreshToken == "" {
		m.reset()
		m.record(ctx, instrumentation.OAuthResultExpired)
		return nil, fmt.Errorf("%w: access token expired and no refresh token is stored", ErrNotConnected)
	}
	if m.config == nil {
		return nil, fmt.Errorf("failed to refresh token: no OAuth client configured")
	}

	// A single caller's cancellation must not fail everyone waiting on
	// the shared refresh.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
	defer cancel()
	if m.httpClient != nil {
		rctx = context.WithValue(rctx, oauth2.HTTPClient, m.httpClient)
	}

	// An empty access token forces the exchange even when the token is
	// still valid by oauth2's own, shorter, expiry margin.
	newTok, err := m.config.TokenSource(rctx, &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
	if err != nil {
		m.reset()
		m.record(ctx, instrumentation.OAuthResultFailure)
		m.logger.Error("Failed to refresh token", "error", err)
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	if _, ok := newTok.Extra("scope").(string); !ok {
		if scope, ok := tok.Extra("scope").(string); ok {
			newTok = newTok.WithExtra(map[string]any{"scope": scope})
		}
	}

	m.mu.Lock()
	m.token = newTok
	m.mu.Unlock()
	m.record(ctx, instrumentation.OAuthResultSuccess)

	if err := m.store.Save(rctx, newTok); err != nil {
		// The new token is still usable for this process.
		m.logger.Warn("Failed to save refreshed token", "error", err)
	}

	m.logger.Info("Refreshed calendar access token", "expiry", newTok.Expiry)
	return newTok, nil
}

func (m *Manager) needsRefresh(tok *oauth2.Token) bool {
	if tok.AccessToken == "" {
		return true
	}
	if tok.Expiry.IsZero() {
		return false
	}
	return m.now().Add(m.threshold).After(tok.Expiry)
}

func (m *Manager) current() *oauth2.Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *Manager) reset() {
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()
}

func (m *Manager) record(ctx context.Context, result string) {
	if m.recorder != nil {
		m.recorder.RecordOAuthTokenRefresh(ctx, result)
	}
}
