package conversation

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	tests := []struct {
		name     string
		cfg      RedisConfig
		wantErr  bool
		wantAddr string
		wantDB   int
		wantTLS  bool
	}{
		{name: "missing url", cfg: RedisConfig{}, wantErr: true},
		{name: "invalid url", cfg: RedisConfig{URL: "http://nope"}, wantErr: true},
		{name: "plain", cfg: RedisConfig{URL: "redis://localhost:6379/2"}, wantAddr: "localhost:6379", wantDB: 2},
		{name: "db override", cfg: RedisConfig{URL: "redis://localhost:6379/2", DB: 5}, wantAddr: "localhost:6379", wantDB: 5},
		{name: "tls", cfg: RedisConfig{URL: "redis://cache:6380", TLS: true}, wantAddr: "cache:6380", wantTLS: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewRedisClient(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer client.Close()
			opts := client.Options()
			assert.Equal(t, tt.wantAddr, opts.Addr)
			assert.Equal(t, tt.wantDB, opts.DB)
			assert.Equal(t, tt.wantTLS, opts.TLSConfig != nil)
		})
	}
}

// The Redis contract tests need a live server, e.g. REDIS_URL=redis://localhost:6379/15.
func TestRedisStore_Contract(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	client, err := NewRedisClient(RedisConfig{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	testStoreContract(t, func(t *testing.T) Store {
		// A unique prefix per subtest keeps runs independent.
		return NewRedisStore(client, WithKeyPrefix("voicecal-test:"+uuid.NewString()+":"), WithTTL(time.Minute))
	})
}
