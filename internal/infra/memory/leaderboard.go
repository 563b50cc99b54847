package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-session-service/internal/activity"
)

// Leaderboard keeps the ranked score projection in process memory.
type Leaderboard struct {
	mu     sync.RWMutex
	scores map[string]map[string]activity.PlayerScoreUpdate
}

func NewLeaderboard() *Leaderboard {
	return &Leaderboard{scores: make(map[string]map[string]activity.PlayerScoreUpdate)}
}

func (l *Leaderboard) UpdateScore(_ context.Context, update activity.PlayerScoreUpdate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.scores[update.SessionID] == nil {
		l.scores[update.SessionID] = make(map[string]activity.PlayerScoreUpdate)
	}
	l.scores[update.SessionID][update.PlayerID] = update
	return nil
}

func (l *Leaderboard) Top(_ context.Context, sessionID string, n int) ([]activity.PlayerScoreUpdate, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entries := make([]activity.PlayerScoreUpdate, 0, len(l.scores[sessionID]))
	for _, entry := range l.scores[sessionID] {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// AnswerLog is an in-memory activity.AnswerWriter for tests and redis-less runs.
type AnswerLog struct {
	mu        sync.Mutex
	answers   []activity.AnswerAudit
	penalties []activity.NoAnswerPenalty
}

func NewAnswerLog() *AnswerLog {
	return &AnswerLog{}
}

func (a *AnswerLog) InsertAnswer(_ context.Context, audit activity.AnswerAudit) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.answers = append(a.answers, audit)
	return nil
}

func (a *AnswerLog) InsertPenalty(_ context.Context, penalty activity.NoAnswerPenalty) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.penalties = append(a.penalties, penalty)
	return nil
}

// Answers returns a copy of the audit rows recorded so far.
func (a *AnswerLog) Answers() []activity.AnswerAudit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]activity.AnswerAudit(nil), a.answers...)
}

// Penalties returns a copy of the penalty rows recorded so far.
func (a *AnswerLog) Penalties() []activity.NoAnswerPenalty {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]activity.NoAnswerPenalty(nil), a.penalties...)
}
