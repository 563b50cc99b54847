package memory

import (
	"context"
	"sync"

	"quiz-session-service/internal/domain"
)

// StateStore is an in-process implementation of actor.StateStore.
type StateStore struct {
	mu      sync.RWMutex
	hosts   map[string]domain.HostState
	players map[string]domain.PlayerState
}

func NewStateStore() *StateStore {
	return &StateStore{
		hosts:   make(map[string]domain.HostState),
		players: make(map[string]domain.PlayerState),
	}
}

func (s *StateStore) SaveHostState(_ context.Context, state domain.HostState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hosts[state.SessionID] = state
	return nil
}

func (s *StateStore) LoadHostState(_ context.Context, sessionID string) (domain.HostState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.hosts[sessionID]
	return state, ok, nil
}

func (s *StateStore) SavePlayerState(_ context.Context, state domain.PlayerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[state.PlayerID] = state
	return nil
}

func (s *StateStore) LoadPlayerState(_ context.Context, playerID string) (domain.PlayerState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.players[playerID]
	return state, ok, nil
}
