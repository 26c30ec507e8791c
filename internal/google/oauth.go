package google

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// TokenProvider hands out a currently valid access token, refreshing it
// first when needed.
type TokenProvider interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// OAuthConfig returns the OAuth2 configuration used to refresh stored
// calendar credentials.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       CalendarScopes,
	}
}

// providerSource adapts a TokenProvider to oauth2.TokenSource. Callers are
// expected to have refreshed with their own context before issuing requests,
// so the background context here only ever hits the cached token.
type providerSource struct {
	provider TokenProvider
}

func (s providerSource) Token() (*oauth2.Token, error) {
	return s.provider.Token(context.Background())
}

// NewHTTPClient returns an HTTP client that authorizes every request with
// the provider's token. The client uses HTTP/1.1 to avoid HTTP/2 stream
// errors seen against the Google APIs. A nil base uses a fresh transport.
func NewHTTPClient(provider TokenProvider, base http.RoundTripper) *http.Client {
	if base == nil {
		base = &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			ForceAttemptHTTP2: false,
		}
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(nil, providerSource{provider: provider}),
			Base:   base,
		},
	}
}

// DefaultCredentialsPath is where the encrypted credential file lives when
// no path is configured.
func DefaultCredentialsPath() string {
	return filepath.Join(userCacheDir(), "voicecal", "google_tokens.json")
}

func splitScopes(scope string) []string {
	return strings.Fields(scope)
}

func userCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir
	}
	if runtime.GOOS == "windows" {
		return os.TempDir()
	}
	return filepath.Join(homeDir(), ".cache")
}

func homeDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
	}
	return os.Getenv("HOME")
}
