package domain

import (
	"math"
	"time"
)

// ProgressionMode controls who moves a session to the next question.
type ProgressionMode string

const (
	ProgressionManual ProgressionMode = "manual"
	ProgressionAuto   ProgressionMode = "auto"
)

// ConnectionStatus tracks a player's link to the session.
type ConnectionStatus string

const (
	ConnectionActive       ConnectionStatus = "active"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// Option represents a possible answer for a question.
type Option struct {
	Text    string `json:"text"`
	Correct bool   `json:"isCorrect"`
}

// Question models an MCQ question with a per-question timer and point value.
// Immutable once loaded into a session.
type Question struct {
	ID               string   `json:"id"`
	Text             string   `json:"text"`
	Options          []Option `json:"options"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
	Points           int      `json:"points"`
}

// QuestionSet is the ordered catalog record a session is initialized from.
type QuestionSet struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// HostState is the full progression state owned by one session's host actor.
// CurrentQuestionIndex is -1 while the session sits in the lobby.
type HostState struct {
	SessionID                string              `json:"sessionId"`
	QuestionSetID            string              `json:"questionSetId"`
	Questions                []Question          `json:"questions"`
	CurrentQuestionIndex     int                 `json:"currentQuestionIndex"`
	CurrentQuestionStartedAt *time.Time          `json:"currentQuestionStartedAt,omitempty"`
	CurrentQuestionTimeLimit int                 `json:"currentQuestionTimeLimit"`
	ProgressionMode          ProgressionMode     `json:"progressionMode"`
	AllowLateJoin            bool                `json:"allowLateJoin"`
	PlayersAnswered          map[string]struct{} `json:"playersAnswered"`
	TotalPlayers             int                 `json:"totalPlayers"`
	Completed                bool                `json:"completed"`
}

// AnswerRecord is one entry in a player's answer ledger.
type AnswerRecord struct {
	QuestionIndex       int       `json:"questionIndex"`
	QuestionID          string    `json:"questionId"`
	SelectedOptionIndex int       `json:"selectedOptionIndex"`
	IsCorrect           bool      `json:"isCorrect"`
	SubmittedAt         time.Time `json:"submittedAt"`
	TimeElapsedSeconds  float64   `json:"timeElapsedSeconds"`
	PointsEarned        int       `json:"pointsEarned"`
}

// PlayerState is the score and history owned by one player actor.
type PlayerState struct {
	PlayerID         string           `json:"playerId"`
	SessionID        string           `json:"sessionId"`
	UserID           string           `json:"userId,omitempty"`
	DisplayName      string           `json:"displayName"`
	Score            int              `json:"score"`
	CorrectAnswers   int              `json:"correctAnswers"`
	TotalAnswers     int              `json:"totalAnswers"`
	AnswerHistory    []AnswerRecord   `json:"answerHistory"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
	LastSeenAt       time.Time        `json:"lastSeenAt"`
	JoinedAt         time.Time        `json:"joinedAt"`
}

// HasAnswered reports whether the ledger already holds an entry for the index.
func (p PlayerState) HasAnswered(questionIndex int) bool {
	for _, rec := range p.AnswerHistory {
		if rec.QuestionIndex == questionIndex {
			return true
		}
	}
	return false
}

// StartQuestionResult reports the outcome of starting a question.
type StartQuestionResult struct {
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	QuestionIndex int       `json:"questionIndex"`
	Question      *Question `json:"question,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	TimeLimit     int       `json:"timeLimit"`
}

// AdvanceResult reports the outcome of moving to the next question.
// HasMore=false signals the session is complete.
type AdvanceResult struct {
	Success   bool      `json:"success"`
	HasMore   bool      `json:"hasMore"`
	NextIndex int       `json:"nextIndex"`
	Question  *Question `json:"question,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	TimeLimit int       `json:"timeLimit"`
}

// TimingValidation is the host actor's verdict on a submission timestamp.
// The answer saga hands it verbatim to the player actor.
type TimingValidation struct {
	Valid         bool    `json:"valid"`
	Reason        string  `json:"reason,omitempty"`
	Elapsed       float64 `json:"elapsed"`
	TimeLimit     int     `json:"timeLimit"`
	AnsweredCount int     `json:"answeredCount"`
	TotalPlayers  int     `json:"totalPlayers"`
}

// TimerState is the live-question snapshot used for late-join and reconnect sync.
type TimerState struct {
	QuestionIndex int       `json:"questionIndex"`
	Question      Question  `json:"question"`
	StartedAt     time.Time `json:"startedAt"`
	TimeLimit     int       `json:"timeLimit"`
	Elapsed       float64   `json:"elapsed"`
	Remaining     float64   `json:"remaining"`
	AnsweredCount int       `json:"answeredCount"`
	TotalPlayers  int       `json:"totalPlayers"`
}

// SubmitResult reports the outcome of recording an answer.
type SubmitResult struct {
	Success        bool   `json:"success"`
	Reason         string `json:"reason,omitempty"`
	IsCorrect      bool   `json:"isCorrect"`
	PointsEarned   int    `json:"pointsEarned"`
	SpeedBonus     int    `json:"speedBonus"`
	NewScore       int    `json:"newScore"`
	CorrectAnswers int    `json:"correctAnswers"`
	TotalAnswers   int    `json:"totalAnswers"`
}

// ScoreSummary is the read-only projection used for standings.
type ScoreSummary struct {
	PlayerID       string  `json:"playerId"`
	DisplayName    string  `json:"displayName"`
	Score          int     `json:"score"`
	CorrectAnswers int     `json:"correctAnswers"`
	TotalAnswers   int     `json:"totalAnswers"`
	Accuracy       float64 `json:"accuracy"`
}

// SpeedBonus computes the quick-answer bonus: a linear decay from 20% of the
// question's point value at elapsed=0 down to zero at the time limit.
func SpeedBonus(points int, elapsed float64, timeLimit int) int {
	if timeLimit <= 0 {
		return 0
	}
	base := int(math.Floor(float64(points) * 0.2))
	frac := 1 - elapsed/float64(timeLimit)
	if frac < 0 {
		frac = 0
	}
	return int(math.Floor(float64(base) * frac))
}
