package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quiz-session-service/internal/activity"
)

// SessionAnswer is the audit row written for every scored answer (and every
// no-answer penalty, with no option selected).
type SessionAnswer struct {
	bun.BaseModel `bun:"table:session_answers"`

	ID                 int64     `bun:"id,pk,autoincrement"`
	SessionID          string    `bun:"session_id,notnull"`
	PlayerID           string    `bun:"player_id,notnull"`
	QuestionID         string    `bun:"question_id,notnull"`
	QuestionIndex      int       `bun:"question_index,notnull"`
	SelectedOption     int       `bun:"selected_option"`
	IsCorrect          bool      `bun:"is_correct"`
	TimeElapsedSeconds float64   `bun:"time_elapsed_seconds"`
	PointsEarned       int       `bun:"points_earned"`
	Penalty            bool      `bun:"penalty"`
	CreatedAt          time.Time `bun:"created_at,nullzero,default:now()"`
}

// AnswerStore writes answer audit rows through bun.
type AnswerStore struct {
	db *bun.DB
}

func NewAnswerStore(db *bun.DB) *AnswerStore {
	return &AnswerStore{db: db}
}

func (s *AnswerStore) InsertAnswer(ctx context.Context, audit activity.AnswerAudit) error {
	row := &SessionAnswer{
		SessionID:          audit.SessionID,
		PlayerID:           audit.PlayerID,
		QuestionID:         audit.QuestionID,
		QuestionIndex:      audit.QuestionIndex,
		SelectedOption:     audit.SelectedOptionIndex,
		IsCorrect:          audit.IsCorrect,
		TimeElapsedSeconds: audit.TimeElapsedSeconds,
		PointsEarned:       audit.PointsEarned,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

func (s *AnswerStore) InsertPenalty(ctx context.Context, penalty activity.NoAnswerPenalty) error {
	row := &SessionAnswer{
		SessionID:      penalty.SessionID,
		PlayerID:       penalty.PlayerID,
		QuestionID:     penalty.QuestionID,
		QuestionIndex:  penalty.QuestionIndex,
		SelectedOption: -1,
		Penalty:        true,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert penalty: %w", err)
	}
	return nil
}
