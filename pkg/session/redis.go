package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StoreConfig - параметры хранения истории
type StoreConfig struct {
	Prefix   string        `yaml:"prefix"`
	MaxTurns int           `yaml:"max_turns"`
	TTL      time.Duration `yaml:"ttl"`
}

// RedisStore keeps the latest turns of each session in a capped Redis list.
type RedisStore struct {
	client *redis.Client
	config StoreConfig
}

// NewRedisStore creates a store on a shared client.
func NewRedisStore(client *redis.Client, config StoreConfig) *RedisStore {
	if config.Prefix == "" {
		config.Prefix = "sqlassist"
	}
	if config.MaxTurns <= 0 {
		config.MaxTurns = 10
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	return &RedisStore{client: client, config: config}
}

func (s *RedisStore) key(id string) string {
	return fmt.Sprintf("%s:session:%s:history", s.config.Prefix, id)
}

// Load builds the Session for id. Unknown ids yield an empty history;
// an empty id gets a new one.
func (s *RedisStore) Load(ctx context.Context, id string) (Session, error) {
	if id == "" {
		return New("", nil), nil
	}

	raw, err := s.client.LRange(ctx, s.key(id), 0, -1).Result()
	if err != nil {
		return Session{}, fmt.Errorf("load session %s: %w", id, err)
	}

	history := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var turn Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return Session{}, fmt.Errorf("decode session %s turn: %w", id, err)
		}
		history = append(history, turn)
	}
	return Session{ID: id, History: history}, nil
}

// Append adds a turn, trims the list to MaxTurns and refreshes the TTL.
func (s *RedisStore) Append(ctx context.Context, id string, turn Turn) error {
	if turn.At.IsZero() {
		turn.At = time.Now().UTC()
	}
	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}

	key := s.key(id)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, int64(-s.config.MaxTurns), -1)
	pipe.Expire(ctx, key, s.config.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append session %s: %w", id, err)
	}
	return nil
}

// Ping проверяет доступность Redis
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
