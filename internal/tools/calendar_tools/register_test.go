package calendar_tools

import (
	"context"
	"testing"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/voicecal/internal/calendar"
	"github.com/teemow/voicecal/internal/server"
)

type staticCredentials struct{}

func (staticCredentials) Token(ctx context.Context) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "test-token", Expiry: time.Now().Add(time.Hour)}, nil
}

func (staticCredentials) Initialize(ctx context.Context) (bool, error) {
	return true, nil
}

func TestRegisterCalendarTools(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a calendar client", func(t *testing.T) {
		sc, err := server.NewServerContext(ctx)
		require.NoError(t, err)
		defer sc.Shutdown()

		s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(true))
		err = RegisterCalendarTools(s, sc)
		assert.ErrorContains(t, err, "calendar client is not configured")
	})

	t.Run("registers all tools", func(t *testing.T) {
		client, err := calendar.NewClient(ctx, staticCredentials{}, calendar.Config{
			Endpoint:  "http://127.0.0.1:0/",
			RateLimit: -1,
		})
		require.NoError(t, err)

		sc, err := server.NewServerContext(ctx, server.WithCalendarClient(client))
		require.NoError(t, err)
		defer sc.Shutdown()

		s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(true))
		require.NoError(t, RegisterCalendarTools(s, sc))

		tools := s.ListTools()
		assert.Len(t, tools, 7)
		for _, tool := range Tools() {
			require.Contains(t, tools, tool.Name)
			assert.NotNil(t, tools[tool.Name].Handler, tool.Name)
		}
	})
}
