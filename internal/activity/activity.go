// Package activity holds the external side-effecting operations workflows
// call between actor steps: audit writes, broadcasts, and the leaderboard
// projection. Activities are single-record, idempotent-enough writes; the
// workflow journal is what keeps retries from re-executing them.
package activity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"quiz-session-service/internal/domain"
)

// AnswerAudit is the durable record of one scored answer, written
// independently of the player actor's in-memory ledger.
type AnswerAudit struct {
	PlayerID            string  `json:"playerId"`
	SessionID           string  `json:"sessionId"`
	QuestionID          string  `json:"questionId"`
	QuestionIndex       int     `json:"questionIndex"`
	SelectedOptionIndex int     `json:"selectedOptionIndex"`
	IsCorrect           bool    `json:"isCorrect"`
	TimeElapsedSeconds  float64 `json:"timeElapsedSeconds"`
	PointsEarned        int     `json:"pointsEarned"`
}

// NoAnswerPenalty marks a player who let a question lapse without answering.
type NoAnswerPenalty struct {
	SessionID     string `json:"sessionId"`
	PlayerID      string `json:"playerId"`
	QuestionID    string `json:"questionId"`
	QuestionIndex int    `json:"questionIndex"`
}

// QuestionStartedEvent notifies clients that a question went live.
type QuestionStartedEvent struct {
	SessionID     string          `json:"sessionId"`
	QuestionIndex int             `json:"questionIndex"`
	Question      domain.Question `json:"question"`
	StartedAt     time.Time       `json:"startedAt"`
	TimeLimit     int             `json:"timeLimit"`
}

// GameEndedEvent carries the final standings.
type GameEndedEvent struct {
	SessionID string                `json:"sessionId"`
	Standings []domain.ScoreSummary `json:"standings"`
}

// PlayerScoreUpdate refreshes the leaderboard projection for one player.
type PlayerScoreUpdate struct {
	SessionID   string `json:"sessionId"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// PlayerStatusUpdate reports a connection status change.
type PlayerStatusUpdate struct {
	SessionID string                  `json:"sessionId"`
	PlayerID  string                  `json:"playerId"`
	Status    domain.ConnectionStatus `json:"status"`
}

// Event is the envelope pushed to session subscribers.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// AnswerWriter persists answer audit rows.
type AnswerWriter interface {
	InsertAnswer(ctx context.Context, audit AnswerAudit) error
	InsertPenalty(ctx context.Context, penalty NoAnswerPenalty) error
}

// Broadcaster fans events out to everyone watching a session.
type Broadcaster interface {
	Publish(ctx context.Context, sessionID string, event Event) error
	Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error)
}

// Leaderboard is the ranked score projection kept outside the actors.
type Leaderboard interface {
	UpdateScore(ctx context.Context, update PlayerScoreUpdate) error
	Top(ctx context.Context, sessionID string, n int) ([]PlayerScoreUpdate, error)
}

// Bundle wires concrete infra into the activity surface workflows consume.
type Bundle struct {
	Answers AnswerWriter
	Events  Broadcaster
	Board   Leaderboard
	Log     *zap.Logger
}

func (b *Bundle) PersistAnswer(ctx context.Context, audit AnswerAudit) error {
	return b.Answers.InsertAnswer(ctx, audit)
}

func (b *Bundle) ApplyNoAnswerPenalty(ctx context.Context, penalty NoAnswerPenalty) error {
	return b.Answers.InsertPenalty(ctx, penalty)
}

func (b *Bundle) BroadcastQuestionStarted(ctx context.Context, ev QuestionStartedEvent) error {
	return b.Events.Publish(ctx, ev.SessionID, Event{Type: "questionStarted", Payload: ev})
}

func (b *Bundle) BroadcastGameEnded(ctx context.Context, ev GameEndedEvent) error {
	return b.Events.Publish(ctx, ev.SessionID, Event{Type: "gameEnded", Payload: ev})
}

func (b *Bundle) UpdatePlayerScore(ctx context.Context, update PlayerScoreUpdate) error {
	return b.Board.UpdateScore(ctx, update)
}

func (b *Bundle) UpdatePlayerStatus(ctx context.Context, update PlayerStatusUpdate) error {
	return b.Events.Publish(ctx, update.SessionID, Event{Type: "playerStatus", Payload: update})
}
