// Package redis backs the actor snapshot store, the workflow journal, the
// session broadcast channel, and the leaderboard projection with Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-session-service/internal/domain"
)

// StateStore persists actor snapshots as JSON values with a TTL.
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStateStore(client *redis.Client, ttl time.Duration) *StateStore {
	return &StateStore{client: client, ttl: ttl}
}

func (s *StateStore) SaveHostState(ctx context.Context, state domain.HostState) error {
	return s.save(ctx, hostKey(state.SessionID), state)
}

func (s *StateStore) LoadHostState(ctx context.Context, sessionID string) (domain.HostState, bool, error) {
	var state domain.HostState
	found, err := s.load(ctx, hostKey(sessionID), &state)
	return state, found, err
}

func (s *StateStore) SavePlayerState(ctx context.Context, state domain.PlayerState) error {
	return s.save(ctx, playerKey(state.PlayerID), state)
}

func (s *StateStore) LoadPlayerState(ctx context.Context, playerID string) (domain.PlayerState, bool, error) {
	var state domain.PlayerState
	found, err := s.load(ctx, playerKey(playerID), &state)
	return state, found, err
}

func (s *StateStore) save(ctx context.Context, key string, state any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *StateStore) load(ctx context.Context, key string, out any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

func hostKey(sessionID string) string {
	return "session:host:" + sessionID
}

func playerKey(playerID string) string {
	return "session:player:" + playerID
}
