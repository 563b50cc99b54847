package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"quiz-session-service/internal/activity"
)

// Broadcaster fans session events out over Redis pub/sub, so every service
// instance holding a websocket for the session sees the event.
type Broadcaster struct {
	client *redis.Client
}

func NewBroadcaster(client *redis.Client) *Broadcaster {
	return &Broadcaster{client: client}
}

func (b *Broadcaster) Publish(ctx context.Context, sessionID string, event activity.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, channel(sessionID), data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *Broadcaster) Subscribe(ctx context.Context, sessionID string) (<-chan activity.Event, func(), error) {
	pubsub := b.client.Subscribe(ctx, channel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan activity.Event, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var event struct {
				Type    string          `json:"type"`
				Payload json.RawMessage `json:"payload"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			out <- activity.Event{Type: event.Type, Payload: event.Payload}
		}
	}()

	cancel := func() { _ = pubsub.Close() }
	return out, cancel, nil
}

func channel(sessionID string) string {
	return "session:events:" + sessionID
}
