package google

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type staticProvider struct {
	token *oauth2.Token
	err   error
	calls int
}

func (p *staticProvider) Token(context.Context) (*oauth2.Token, error) {
	p.calls++
	return p.token, p.err
}

func TestOAuthConfig(t *testing.T) {
	conf := OAuthConfig("id", "secret", "http://localhost/callback")

	assert.Equal(t, "id", conf.ClientID)
	assert.Equal(t, "secret", conf.ClientSecret)
	assert.Equal(t, "http://localhost/callback", conf.RedirectURL)
	assert.Contains(t, conf.Scopes, "https://www.googleapis.com/auth/calendar")
	assert.Equal(t, "https://oauth2.googleapis.com/token", conf.Endpoint.TokenURL)
}

func TestHasCalendarScope(t *testing.T) {
	tests := []struct {
		name  string
		scope string
		want  bool
	}{
		{"full calendar", "openid https://www.googleapis.com/auth/calendar", true},
		{"events only", "https://www.googleapis.com/auth/calendar.events", true},
		{"readonly", "https://www.googleapis.com/auth/calendar.readonly", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasCalendarScope(tt.scope))
		})
	}
}

func TestNewHTTPClient_AuthorizesRequests(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	provider := &staticProvider{token: &oauth2.Token{
		AccessToken: "ya29.test",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}}

	client := NewHTTPClient(provider, http.DefaultTransport)
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer ya29.test", gotAuth)

	resp, err = client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 1, provider.calls, "valid token should be reused")
}

func TestNewHTTPClient_ProviderError(t *testing.T) {
	provider := &staticProvider{err: errors.New("not connected")}
	client := NewHTTPClient(provider, nil)

	_, err := client.Get("http://127.0.0.1:1/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestDefaultCredentialsPath(t *testing.T) {
	path := DefaultCredentialsPath()
	assert.Equal(t, "google_tokens.json", filepath.Base(path))
	assert.Equal(t, "voicecal", filepath.Base(filepath.Dir(path)))
}
