package actor

import (
	"context"

	"quiz-session-service/internal/domain"
)

// StateStore persists actor snapshots after every mutation and rehydrates
// an actor the first time its key is addressed on this instance.
type StateStore interface {
	SaveHostState(ctx context.Context, state domain.HostState) error
	LoadHostState(ctx context.Context, sessionID string) (domain.HostState, bool, error)
	SavePlayerState(ctx context.Context, state domain.PlayerState) error
	LoadPlayerState(ctx context.Context, playerID string) (domain.PlayerState, bool, error)
}
