package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"quiz-session-service/internal/activity"
)

// Leaderboard projects player scores into a sorted set per session:
//
//	ZADD session:leaderboard:{sessionID} {score} {playerID}
//	HSET session:names:{sessionID} {playerID} {displayName}
type Leaderboard struct {
	client *redis.Client
}

func NewLeaderboard(client *redis.Client) *Leaderboard {
	return &Leaderboard{client: client}
}

func (l *Leaderboard) UpdateScore(ctx context.Context, update activity.PlayerScoreUpdate) error {
	pipe := l.client.Pipeline()
	pipe.ZAdd(ctx, boardKey(update.SessionID), redis.Z{
		Score:  float64(update.Score),
		Member: update.PlayerID,
	})
	if update.DisplayName != "" {
		pipe.HSet(ctx, namesKey(update.SessionID), update.PlayerID, update.DisplayName)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("leaderboard update: %w", err)
	}
	return nil
}

func (l *Leaderboard) Top(ctx context.Context, sessionID string, n int) ([]activity.PlayerScoreUpdate, error) {
	if n <= 0 {
		n = 10
	}
	members, err := l.client.ZRevRangeWithScores(ctx, boardKey(sessionID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard read: %w", err)
	}
	names, _ := l.client.HGetAll(ctx, namesKey(sessionID)).Result()

	entries := make([]activity.PlayerScoreUpdate, 0, len(members))
	for _, member := range members {
		playerID, _ := member.Member.(string)
		entries = append(entries, activity.PlayerScoreUpdate{
			SessionID:   sessionID,
			PlayerID:    playerID,
			DisplayName: names[playerID],
			Score:       int(member.Score),
		})
	}
	return entries, nil
}

func boardKey(sessionID string) string {
	return "session:leaderboard:" + sessionID
}

func namesKey(sessionID string) string {
	return "session:names:" + sessionID
}
