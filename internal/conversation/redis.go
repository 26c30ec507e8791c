package conversation

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisKeyPrefix = "voicecal:session:"

	// attempts of an optimistic read-modify-write before giving up
	redisTxAttempts = 5
)

// RedisConfig describes how to reach the Redis server backing a RedisStore.
type RedisConfig struct {
	URL       string
	Password  string
	DB        int
	TLS       bool
	KeyPrefix string
}

// NewRedisClient builds a client from cfg. Password and DB override the
// values embedded in the URL when set.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	if cfg.TLS && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts), nil
}

// RedisStore keeps one JSON document per session in Redis. Every access
// refreshes the key's TTL so that idle sessions expire on their own.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithTTL sets the idle expiry of a session key.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// NewRedisStore creates a store on top of client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: DefaultRedisKeyPrefix,
		ttl:    DefaultIdleTimeout,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// GetSession returns the session, creating it on first access.
func (s *RedisStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var out *Session
	err := s.update(ctx, id, func(sess *Session) error {
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateLastQuery records a query on the session.
func (s *RedisStore) UpdateLastQuery(ctx context.Context, id, operation string, params, result any) error {
	return s.update(ctx, id, func(sess *Session) error {
		return sess.recordQuery(operation, params, result, s.now())
	})
}

// FindEventByReference resolves phrase against the session's last listing.
// It returns nil when nothing matches.
func (s *RedisStore) FindEventByReference(ctx context.Context, id, phrase string) (*EventRef, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	ev, ok := ResolveReference(sess.LastEventsList, phrase)
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

// AddConversationItem appends to the session history.
func (s *RedisStore) AddConversationItem(ctx context.Context, id, itemType, content string) error {
	return s.update(ctx, id, func(sess *Session) error {
		sess.appendHistory(itemType, content, s.now())
		return nil
	})
}

// ClearSession deletes the session key.
func (s *RedisStore) ClearSession(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// update runs fn on the stored session inside a WATCH/MULTI transaction and
// writes the result back with a fresh TTL.
func (s *RedisStore) update(ctx context.Context, id string, fn func(*Session) error) error {
	if id == "" {
		return ErrEmptySessionID
	}
	key := s.key(id)

	txf := func(tx *redis.Tx) error {
		sess, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			return err
		}
		data, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < redisTxAttempts; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("failed to update session: %w", err)
	}
	return fmt.Errorf("failed to update session: %w", redis.TxFailedErr)
}

func (s *RedisStore) load(ctx context.Context, tx *redis.Tx, id string) (*Session, error) {
	data, err := tx.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return newSession(id, s.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if sess.LastEventsList == nil {
		sess.LastEventsList = []EventRef{}
	}
	if sess.History == nil {
		sess.History = []HistoryItem{}
	}
	return &sess, nil
}
