package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Journal records workflow step results in a hash per workflow instance.
// HSetNX makes the record atomic: the first writer wins and every retry or
// concurrent run reads the winner's result.
type Journal struct {
	client *redis.Client
	ttl    time.Duration
}

func NewJournal(client *redis.Client, ttl time.Duration) *Journal {
	return &Journal{client: client, ttl: ttl}
}

func (j *Journal) Lookup(ctx context.Context, workflowID, step string) ([]byte, bool, error) {
	data, err := j.client.HGet(ctx, j.key(workflowID), step).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("journal lookup: %w", err)
	}
	return data, true, nil
}

func (j *Journal) Record(ctx context.Context, workflowID, step string, result []byte) ([]byte, bool, error) {
	key := j.key(workflowID)
	inserted, err := j.client.HSetNX(ctx, key, step, result).Result()
	if err != nil {
		return nil, false, fmt.Errorf("journal record: %w", err)
	}
	if inserted {
		if j.ttl > 0 {
			_ = j.client.Expire(ctx, key, j.ttl).Err()
		}
		return result, true, nil
	}
	stored, err := j.client.HGet(ctx, key, step).Bytes()
	if err != nil {
		return nil, false, fmt.Errorf("journal reread: %w", err)
	}
	return stored, false, nil
}

func (j *Journal) key(workflowID string) string {
	return "workflow:journal:" + workflowID
}
