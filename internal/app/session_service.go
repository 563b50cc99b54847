package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quiz-session-service/internal/activity"
	"quiz-session-service/internal/actor"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/workflow"
)

// CatalogRepository loads question sets (from cache/backing store).
type CatalogRepository interface {
	GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// SessionService is the facade the API layer talks to. It derives
// deterministic workflow ids so a retried request lands on the same journal,
// and owns the auto-advance timers that deterministic workflows cannot.
type SessionService struct {
	flows     *workflow.Orchestrator
	catalog   CatalogRepository
	board     activity.Leaderboard
	log       *zap.Logger
	autoGrace time.Duration

	mu      sync.Mutex
	rosters map[string][]string
	modes   map[string]domain.ProgressionMode
	timers  map[string]*time.Timer
}

func NewSessionService(flows *workflow.Orchestrator, catalog CatalogRepository, board activity.Leaderboard, log *zap.Logger, autoGrace time.Duration) *SessionService {
	return &SessionService{
		flows:     flows,
		catalog:   catalog,
		board:     board,
		log:       log,
		autoGrace: autoGrace,
		rosters:   make(map[string][]string),
		modes:     make(map[string]domain.ProgressionMode),
		timers:    make(map[string]*time.Timer),
	}
}

type CreateGameInput struct {
	SessionID       string
	QuestionSetID   string
	ProgressionMode domain.ProgressionMode
	AllowLateJoin   bool
	Players         []workflow.PlayerSeed
}

// CreateGame loads the question set and runs the initialization workflow.
// A missing session id gets a generated one.
func (s *SessionService) CreateGame(ctx context.Context, in CreateGameInput) (workflow.InitializeGameResult, error) {
	if in.SessionID == "" {
		in.SessionID = uuid.NewString()
	}
	if in.ProgressionMode == "" {
		in.ProgressionMode = domain.ProgressionManual
	}

	set, err := s.catalog.GetQuestionSet(ctx, in.QuestionSetID)
	if err != nil {
		return workflow.InitializeGameResult{}, err
	}

	result, err := s.flows.InitializeGame(ctx, workflow.InitializeGameInput{
		WorkflowID:      "init:" + in.SessionID,
		SessionID:       in.SessionID,
		QuestionSetID:   in.QuestionSetID,
		Questions:       set.Questions,
		ProgressionMode: in.ProgressionMode,
		AllowLateJoin:   in.AllowLateJoin,
		Players:         in.Players,
	})
	if err != nil {
		return result, err
	}

	roster := make([]string, 0, len(in.Players))
	for _, p := range in.Players {
		roster = append(roster, p.PlayerID)
	}
	s.mu.Lock()
	s.rosters[in.SessionID] = roster
	s.modes[in.SessionID] = in.ProgressionMode
	s.mu.Unlock()

	return result, nil
}

// StartQuestion starts the indexed question; in auto progression mode the
// next advance is scheduled for when the question's timer lapses.
func (s *SessionService) StartQuestion(ctx context.Context, sessionID string, questionIndex int) (domain.StartQuestionResult, error) {
	workflowID := fmt.Sprintf("start:%s:%d", sessionID, questionIndex)
	result, err := s.flows.StartQuestion(ctx, workflowID, sessionID, questionIndex)
	if err == nil && result.Success {
		s.scheduleAutoAdvance(sessionID, result.TimeLimit)
	}
	return result, err
}

// AdvanceQuestion closes the current question and starts the next. The
// workflow id embeds the index being closed, so double-submitting "next" for
// the same question replays instead of skipping ahead.
func (s *SessionService) AdvanceQuestion(ctx context.Context, sessionID string) (domain.AdvanceResult, error) {
	state, err := s.flows.CallHostState(ctx, sessionID)
	if err != nil {
		return domain.AdvanceResult{}, err
	}
	workflowID := fmt.Sprintf("advance:%s:%d", sessionID, state.CurrentQuestionIndex)
	result, err := s.flows.AdvanceQuestion(ctx, workflowID, sessionID, s.roster(sessionID))
	if err != nil {
		return result, err
	}
	if result.HasMore {
		s.scheduleAutoAdvance(sessionID, result.TimeLimit)
	} else {
		s.cancelAutoAdvance(sessionID)
	}
	return result, nil
}

type SubmitAnswerRequest struct {
	SessionID           string
	PlayerID            string
	QuestionIndex       int
	SelectedOptionIndex int
	SubmittedAt         time.Time
}

// SubmitAnswer resolves the question from the host's loaded set and runs the
// answer saga under a deterministic workflow id, so an at-least-once retry of
// the same submission cannot double-count.
func (s *SessionService) SubmitAnswer(ctx context.Context, in SubmitAnswerRequest) (domain.SubmitResult, error) {
	state, err := s.flows.CallHostState(ctx, in.SessionID)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	if in.QuestionIndex < 0 || in.QuestionIndex >= len(state.Questions) {
		return domain.SubmitResult{Success: false, Reason: domain.ReasonInvalidQuestionIndex}, nil
	}
	question := state.Questions[in.QuestionIndex]

	return s.flows.SubmitAnswer(ctx, workflow.SubmitAnswerInput{
		WorkflowID:          fmt.Sprintf("submit:%s:%s:%d", in.SessionID, in.PlayerID, in.QuestionIndex),
		PlayerID:            in.PlayerID,
		SessionID:           in.SessionID,
		QuestionIndex:       in.QuestionIndex,
		QuestionID:          question.ID,
		SelectedOptionIndex: in.SelectedOptionIndex,
		SubmittedAt:         in.SubmittedAt,
		Question:            question,
	})
}

// EndGame runs the end-of-game workflow and stops any pending auto-advance.
func (s *SessionService) EndGame(ctx context.Context, sessionID string) (workflow.EndGameResult, error) {
	s.cancelAutoAdvance(sessionID)
	return s.flows.EndGame(ctx, "end:"+sessionID, sessionID, s.roster(sessionID))
}

// JoinLate initializes a player into a running session when the session
// allows it, returning the player state and the live timer for sync.
func (s *SessionService) JoinLate(ctx context.Context, sessionID string, seed workflow.PlayerSeed) (domain.PlayerState, *domain.TimerState, error) {
	state, err := s.flows.CallHostState(ctx, sessionID)
	if err != nil {
		return domain.PlayerState{}, nil, err
	}
	if !state.AllowLateJoin {
		return domain.PlayerState{}, nil, domain.ErrLateJoinDisabled
	}

	player, err := s.flows.CallPlayerInitialize(ctx, fmt.Sprintf("latejoin:%s:%s", sessionID, seed.PlayerID), actor.InitializePlayerInput{
		PlayerID:    seed.PlayerID,
		SessionID:   sessionID,
		UserID:      seed.UserID,
		DisplayName: seed.DisplayName,
	})
	if err != nil {
		return domain.PlayerState{}, nil, err
	}

	s.mu.Lock()
	s.rosters[sessionID] = appendUnique(s.rosters[sessionID], seed.PlayerID)
	s.mu.Unlock()

	timer, err := s.flows.CallHostTimerState(ctx, sessionID)
	if err != nil {
		return player, nil, err
	}
	return player, timer, nil
}

// Disconnect marks a player disconnected. Status flips are not idempotent at
// the API level, so each gets a fresh workflow id.
func (s *SessionService) Disconnect(ctx context.Context, sessionID, playerID string) error {
	_, err := s.flows.SetPlayerConnection(ctx, "conn:"+uuid.NewString(), sessionID, playerID, domain.ConnectionDisconnected)
	return err
}

// Reconnect marks a player active again and returns state plus timer for resync.
func (s *SessionService) Reconnect(ctx context.Context, sessionID, playerID string) (domain.PlayerState, *domain.TimerState, error) {
	existing, err := s.flows.CallPlayerState(ctx, playerID)
	if err != nil {
		return domain.PlayerState{}, nil, err
	}
	if existing.SessionID != sessionID {
		return domain.PlayerState{}, nil, domain.ErrPlayerSessionMismatch
	}
	player, err := s.flows.SetPlayerConnection(ctx, "conn:"+uuid.NewString(), sessionID, playerID, domain.ConnectionActive)
	if err != nil {
		return domain.PlayerState{}, nil, err
	}
	timer, err := s.flows.CallHostTimerState(ctx, sessionID)
	if err != nil {
		return player, nil, err
	}
	return player, timer, nil
}

func (s *SessionService) TimerState(ctx context.Context, sessionID string) (*domain.TimerState, error) {
	return s.flows.CallHostTimerState(ctx, sessionID)
}

func (s *SessionService) HostState(ctx context.Context, sessionID string) (domain.HostState, error) {
	return s.flows.CallHostState(ctx, sessionID)
}

func (s *SessionService) PlayerState(ctx context.Context, playerID string) (domain.PlayerState, error) {
	return s.flows.CallPlayerState(ctx, playerID)
}

func (s *SessionService) ScoreSummary(ctx context.Context, playerID string) (domain.ScoreSummary, error) {
	return s.flows.CallPlayerScoreSummary(ctx, playerID)
}

func (s *SessionService) Leaderboard(ctx context.Context, sessionID string, n int) ([]activity.PlayerScoreUpdate, error) {
	return s.board.Top(ctx, sessionID, n)
}

func (s *SessionService) roster(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.rosters[sessionID]...)
}

// scheduleAutoAdvance arms a server-authoritative timer: clients only render
// countdowns, the service decides when the question is over.
func (s *SessionService) scheduleAutoAdvance(sessionID string, timeLimit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.modes[sessionID] != domain.ProgressionAuto {
		return
	}
	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
	}
	delay := time.Duration(timeLimit)*time.Second + s.autoGrace
	s.timers[sessionID] = time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.AdvanceQuestion(ctx, sessionID); err != nil {
			s.log.Warn("auto-advance failed", zap.String("sessionId", sessionID), zap.Error(err))
		}
	})
}

func (s *SessionService) cancelAutoAdvance(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
		delete(s.timers, sessionID)
	}
}

func appendUnique(list []string, id string) []string {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}
