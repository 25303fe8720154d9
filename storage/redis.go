package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/youssefsiam38/historypg/types"
)

// DefaultRedisKeyPrefix is the key prefix used by agent SDK Redis sessions
const DefaultRedisKeyPrefix = "session"

// RedisStore keeps each session as a Redis list at "{prefix}:{session_id}:items",
// one JSON-encoded item per element.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the "session" key prefix
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTTL sets an expiry refreshed on every write. Zero disables expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// NewRedisStore creates a store over an existing client
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: DefaultRedisKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenRedisStore parses a redis:// URL and verifies the connection
func OpenRedisStore(ctx context.Context, url string, opts ...RedisOption) (*RedisStore, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedisStore(client, opts...), nil
}

// Client returns the underlying Redis client
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

// ItemsKey returns the list key holding a session's items
func (s *RedisStore) ItemsKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:items", s.prefix, sessionID)
}

// GetItems returns the session's items in list order
func (s *RedisStore) GetItems(ctx context.Context, sessionID string) ([]*types.Message, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	return s.readList(ctx, s.ItemsKey(sessionID))
}

// DeleteItems deletes the session's list key
func (s *RedisStore) DeleteItems(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if err := s.client.Del(ctx, s.ItemsKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete items: %w", err)
	}
	return nil
}

// AddItems appends items with a single RPUSH
func (s *RedisStore) AddItems(ctx context.Context, sessionID string, messages []*types.Message) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if len(messages) == 0 {
		return nil
	}

	values, err := encodeItems(messages)
	if err != nil {
		return err
	}

	key := s.ItemsKey(sessionID)
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add items: %w", err)
	}
	return nil
}

// ReplaceItems swaps the session's list inside MULTI/EXEC
func (s *RedisStore) ReplaceItems(ctx context.Context, sessionID string, messages []*types.Message) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	return s.replaceList(ctx, s.ItemsKey(sessionID), messages)
}

// replaceList atomically overwrites key with the encoded messages
func (s *RedisStore) replaceList(ctx context.Context, key string, messages []*types.Message) error {
	values, err := encodeItems(messages)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
			if s.ttl > 0 {
				pipe.Expire(ctx, key, s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace items: %w", err)
	}
	return nil
}

// readList decodes every element of a list key
func (s *RedisStore) readList(ctx context.Context, key string) ([]*types.Message, error) {
	raw, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read items: %w", err)
	}

	var messages []*types.Message
	for i, item := range raw {
		var msg types.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode item %d of %s: %w", i, key, err)
		}
		messages = append(messages, &msg)
	}
	return messages, nil
}

// encodeItems JSON-encodes messages for RPUSH
func encodeItems(messages []*types.Message) ([]any, error) {
	values := make([]any, 0, len(messages))
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to encode item: %w", err)
		}
		values = append(values, string(data))
	}
	return values, nil
}

var (
	_ Store    = (*RedisStore)(nil)
	_ Replacer = (*RedisStore)(nil)
)
