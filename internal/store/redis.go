package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/agora/config"
	"github.com/mohammad-safakhou/agora/internal/debate/core"
)

const checkpointKeyPrefix = "debate:state:"

// RedisCheckpointStore keeps the serialized debate state in Redis so an
// interrupted debate can be inspected or resumed.
type RedisCheckpointStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCheckpointStore connects and ping-checks Redis.
func NewRedisCheckpointStore(ctx context.Context, cfg config.RedisConfig) (*RedisCheckpointStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.Timeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s): %w", cfg.Addr(), err)
	}
	return &RedisCheckpointStore{client: client, ttl: cfg.CheckpointTTL}, nil
}

func (s *RedisCheckpointStore) SaveCheckpoint(ctx context.Context, state *core.DebateState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling debate state: %w", err)
	}
	return s.client.Set(ctx, checkpointKeyPrefix+state.DebateID, payload, s.ttl).Err()
}

func (s *RedisCheckpointStore) LoadCheckpoint(ctx context.Context, debateID string) (*core.DebateState, error) {
	payload, err := s.client.Get(ctx, checkpointKeyPrefix+debateID).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var state core.DebateState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("unmarshalling debate state: %w", err)
	}
	return &state, nil
}

func (s *RedisCheckpointStore) DeleteCheckpoint(ctx context.Context, debateID string) error {
	return s.client.Del(ctx, checkpointKeyPrefix+debateID).Err()
}

func (s *RedisCheckpointStore) Close() error {
	return s.client.Close()
}
