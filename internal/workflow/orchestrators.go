package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quiz-session-service/internal/activity"
	"quiz-session-service/internal/actor"
	"quiz-session-service/internal/domain"
)

// Activities is the external collaborator surface consumed by workflows.
type Activities interface {
	PersistAnswer(ctx context.Context, audit activity.AnswerAudit) error
	ApplyNoAnswerPenalty(ctx context.Context, penalty activity.NoAnswerPenalty) error
	BroadcastQuestionStarted(ctx context.Context, ev activity.QuestionStartedEvent) error
	BroadcastGameEnded(ctx context.Context, ev activity.GameEndedEvent) error
	UpdatePlayerScore(ctx context.Context, update activity.PlayerScoreUpdate) error
	UpdatePlayerStatus(ctx context.Context, update activity.PlayerStatusUpdate) error
}

// ack is the journaled result of a step that returns nothing.
type ack struct{}

// Orchestrator sequences actor operations and activities. It never reads the
// clock or produces randomness itself; timestamps arrive in the inputs.
type Orchestrator struct {
	hosts   *actor.HostRegistry
	players *actor.PlayerRegistry
	acts    Activities
	runner  *Runner
	log     *zap.Logger
}

func NewOrchestrator(hosts *actor.HostRegistry, players *actor.PlayerRegistry, acts Activities, runner *Runner, log *zap.Logger) *Orchestrator {
	return &Orchestrator{hosts: hosts, players: players, acts: acts, runner: runner, log: log}
}

// PlayerSeed identifies one player to initialize at game start.
type PlayerSeed struct {
	PlayerID    string `json:"playerId"`
	UserID      string `json:"userId,omitempty"`
	DisplayName string `json:"displayName"`
}

type InitializeGameInput struct {
	WorkflowID      string
	SessionID       string
	QuestionSetID   string
	Questions       []domain.Question
	ProgressionMode domain.ProgressionMode
	AllowLateJoin   bool
	Players         []PlayerSeed
}

type PlayerInitResult struct {
	PlayerID string `json:"playerId"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

type InitializeGameResult struct {
	Success            bool               `json:"success"`
	SessionID          string             `json:"sessionId"`
	HostInitialized    bool               `json:"hostInitialized"`
	PlayersInitialized int                `json:"playersInitialized"`
	Players            []PlayerInitResult `json:"players"`
}

// InitializeGame seeds the host actor, then fans out player initialization
// concurrently and joins on all results. Player failures are reported, not
// rolled back: initialization is best-effort, not atomic.
func (o *Orchestrator) InitializeGame(ctx context.Context, in InitializeGameInput) (InitializeGameResult, error) {
	res := InitializeGameResult{SessionID: in.SessionID, Players: make([]PlayerInitResult, len(in.Players))}

	_, err := Step(ctx, o.runner, in.WorkflowID, "init-host", func(ctx context.Context) (domain.HostState, error) {
		return o.hosts.Initialize(ctx, actor.InitializeHostInput{
			SessionID:       in.SessionID,
			QuestionSetID:   in.QuestionSetID,
			Questions:       in.Questions,
			ProgressionMode: in.ProgressionMode,
			AllowLateJoin:   in.AllowLateJoin,
			TotalPlayers:    len(in.Players),
		})
	})
	if err != nil {
		return res, err
	}
	res.HostInitialized = true

	var g errgroup.Group
	for i, seed := range in.Players {
		i, seed := i, seed
		g.Go(func() error {
			_, err := Step(ctx, o.runner, in.WorkflowID, "init-player:"+seed.PlayerID, func(ctx context.Context) (domain.PlayerState, error) {
				return o.players.Initialize(ctx, actor.InitializePlayerInput{
					PlayerID:    seed.PlayerID,
					SessionID:   in.SessionID,
					UserID:      seed.UserID,
					DisplayName: seed.DisplayName,
				})
			})
			if err != nil {
				res.Players[i] = PlayerInitResult{PlayerID: seed.PlayerID, Error: err.Error()}
				return nil
			}
			res.Players[i] = PlayerInitResult{PlayerID: seed.PlayerID, Success: true}
			return nil
		})
	}
	_ = g.Wait()

	for _, p := range res.Players {
		if p.Success {
			res.PlayersInitialized++
		}
	}
	res.Success = true
	return res, nil
}

// StartQuestion starts the indexed question and, only on success, broadcasts
// it to the session. A failed start (bad index) is returned as-is with no
// broadcast.
func (o *Orchestrator) StartQuestion(ctx context.Context, workflowID, sessionID string, questionIndex int) (domain.StartQuestionResult, error) {
	result, err := Step(ctx, o.runner, workflowID, "start-question", func(ctx context.Context) (domain.StartQuestionResult, error) {
		return o.hosts.StartQuestion(ctx, sessionID, questionIndex)
	})
	if err != nil || !result.Success {
		return result, err
	}

	_, err = Step(ctx, o.runner, workflowID, "broadcast-question", func(ctx context.Context) (ack, error) {
		return ack{}, o.acts.BroadcastQuestionStarted(ctx, activity.QuestionStartedEvent{
			SessionID:     sessionID,
			QuestionIndex: result.QuestionIndex,
			Question:      *result.Question,
			StartedAt:     result.StartedAt,
			TimeLimit:     result.TimeLimit,
		})
	})
	return result, err
}

// AdvanceQuestion closes the current question, applies no-answer penalties to
// roster players that never answered it, and broadcasts the next question
// when there is one. The host result is returned unchanged, including the
// hasMore=false completion signal (which triggers no question broadcast).
func (o *Orchestrator) AdvanceQuestion(ctx context.Context, workflowID, sessionID string, roster []string) (domain.AdvanceResult, error) {
	before, err := Step(ctx, o.runner, workflowID, "pre-state", func(ctx context.Context) (domain.HostState, error) {
		return o.hosts.State(ctx, sessionID)
	})
	if err != nil {
		return domain.AdvanceResult{}, err
	}

	result, err := Step(ctx, o.runner, workflowID, "advance", func(ctx context.Context) (domain.AdvanceResult, error) {
		return o.hosts.AdvanceQuestion(ctx, sessionID)
	})
	if err != nil || !result.Success {
		return result, err
	}

	if before.CurrentQuestionIndex >= 0 && before.CurrentQuestionIndex < len(before.Questions) {
		closed := before.Questions[before.CurrentQuestionIndex]
		for _, playerID := range roster {
			if _, answered := before.PlayersAnswered[playerID]; answered {
				continue
			}
			playerID := playerID
			_, err := Step(ctx, o.runner, workflowID, "penalty:"+playerID, func(ctx context.Context) (ack, error) {
				return ack{}, o.acts.ApplyNoAnswerPenalty(ctx, activity.NoAnswerPenalty{
					SessionID:     sessionID,
					PlayerID:      playerID,
					QuestionID:    closed.ID,
					QuestionIndex: before.CurrentQuestionIndex,
				})
			})
			if err != nil {
				o.log.Warn("no-answer penalty failed",
					zap.String("sessionId", sessionID), zap.String("playerId", playerID), zap.Error(err))
			}
		}
	}

	if result.HasMore {
		_, err = Step(ctx, o.runner, workflowID, "broadcast-question", func(ctx context.Context) (ack, error) {
			return ack{}, o.acts.BroadcastQuestionStarted(ctx, activity.QuestionStartedEvent{
				SessionID:     sessionID,
				QuestionIndex: result.NextIndex,
				Question:      *result.Question,
				StartedAt:     result.StartedAt,
				TimeLimit:     result.TimeLimit,
			})
		})
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

type SubmitAnswerInput struct {
	WorkflowID          string
	PlayerID            string
	SessionID           string
	QuestionIndex       int
	QuestionID          string
	SelectedOptionIndex int
	SubmittedAt         time.Time
	Question            domain.Question
}

// SubmitAnswer is the three-step answer saga: validate timing on the host,
// apply the answer on the player with the validation passed through verbatim,
// then persist the audit row. Only accepted outcomes are journaled; a
// rejection carries no side effects, so re-submitting under the same
// workflow id re-validates instead of replaying a stale rejection. The saga
// is not transactional: an audit write failure after the score committed is
// logged and the player result is still returned, leaving the ledger/audit
// divergence to operators.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, in SubmitAnswerInput) (domain.SubmitResult, error) {
	validation, err := StepIf(ctx, o.runner, in.WorkflowID, "validate-timing", func(ctx context.Context) (domain.TimingValidation, error) {
		return o.hosts.ValidateAnswerTiming(ctx, in.SessionID, in.PlayerID, in.SubmittedAt)
	}, func(v domain.TimingValidation) bool { return v.Valid })
	if err != nil {
		return domain.SubmitResult{}, err
	}

	result, err := StepIf(ctx, o.runner, in.WorkflowID, "submit-answer", func(ctx context.Context) (domain.SubmitResult, error) {
		return o.players.SubmitAnswer(ctx, in.PlayerID, actor.SubmitAnswerInput{
			QuestionIndex:       in.QuestionIndex,
			QuestionID:          in.QuestionID,
			SelectedOptionIndex: in.SelectedOptionIndex,
			SubmittedAt:         in.SubmittedAt,
			Question:            in.Question,
			Validation:          validation,
		})
	}, func(r domain.SubmitResult) bool { return r.Success })
	if err != nil || !result.Success {
		return result, err
	}

	_, err = Step(ctx, o.runner, in.WorkflowID, "persist-answer", func(ctx context.Context) (ack, error) {
		return ack{}, o.acts.PersistAnswer(ctx, activity.AnswerAudit{
			PlayerID:            in.PlayerID,
			SessionID:           in.SessionID,
			QuestionID:          in.QuestionID,
			QuestionIndex:       in.QuestionIndex,
			SelectedOptionIndex: in.SelectedOptionIndex,
			IsCorrect:           result.IsCorrect,
			TimeElapsedSeconds:  validation.Elapsed,
			PointsEarned:        result.PointsEarned,
		})
	})
	if err != nil {
		o.log.Warn("answer audit write failed after score applied",
			zap.String("sessionId", in.SessionID), zap.String("playerId", in.PlayerID),
			zap.Int("questionIndex", in.QuestionIndex), zap.Error(err))
	}

	if _, err := Step(ctx, o.runner, in.WorkflowID, "update-leaderboard", func(ctx context.Context) (ack, error) {
		state, err := o.players.State(ctx, in.PlayerID)
		if err != nil {
			return ack{}, err
		}
		return ack{}, o.acts.UpdatePlayerScore(ctx, activity.PlayerScoreUpdate{
			SessionID:   in.SessionID,
			PlayerID:    in.PlayerID,
			DisplayName: state.DisplayName,
			Score:       result.NewScore,
		})
	}); err != nil {
		o.log.Warn("leaderboard update failed",
			zap.String("sessionId", in.SessionID), zap.String("playerId", in.PlayerID), zap.Error(err))
	}

	return result, nil
}

type EndGameResult struct {
	Success   bool                  `json:"success"`
	SessionID string                `json:"sessionId"`
	Standings []domain.ScoreSummary `json:"standings"`
}

// EndGame collects score summaries across the roster concurrently, persists
// final standings to the leaderboard, and broadcasts the game-ended event.
func (o *Orchestrator) EndGame(ctx context.Context, workflowID, sessionID string, roster []string) (EndGameResult, error) {
	summaries := make([]domain.ScoreSummary, len(roster))
	var g errgroup.Group
	for i, playerID := range roster {
		i, playerID := i, playerID
		g.Go(func() error {
			summary, err := Step(ctx, o.runner, workflowID, "summary:"+playerID, func(ctx context.Context) (domain.ScoreSummary, error) {
				return o.players.ScoreSummary(ctx, playerID)
			})
			if err != nil {
				return fmt.Errorf("score summary %s: %w", playerID, err)
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return EndGameResult{SessionID: sessionID}, err
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Score != summaries[j].Score {
			return summaries[i].Score > summaries[j].Score
		}
		return summaries[i].PlayerID < summaries[j].PlayerID
	})

	for _, summary := range summaries {
		summary := summary
		if _, err := Step(ctx, o.runner, workflowID, "final-score:"+summary.PlayerID, func(ctx context.Context) (ack, error) {
			return ack{}, o.acts.UpdatePlayerScore(ctx, activity.PlayerScoreUpdate{
				SessionID:   sessionID,
				PlayerID:    summary.PlayerID,
				DisplayName: summary.DisplayName,
				Score:       summary.Score,
			})
		}); err != nil {
			o.log.Warn("final score update failed",
				zap.String("sessionId", sessionID), zap.String("playerId", summary.PlayerID), zap.Error(err))
		}
	}

	if _, err := Step(ctx, o.runner, workflowID, "broadcast-ended", func(ctx context.Context) (ack, error) {
		return ack{}, o.acts.BroadcastGameEnded(ctx, activity.GameEndedEvent{SessionID: sessionID, Standings: summaries})
	}); err != nil {
		return EndGameResult{SessionID: sessionID, Standings: summaries}, err
	}

	return EndGameResult{Success: true, SessionID: sessionID, Standings: summaries}, nil
}

// SetPlayerConnection toggles a player's connection status and notifies the
// session. Reconnects return the full player state for client resync.
func (o *Orchestrator) SetPlayerConnection(ctx context.Context, workflowID, sessionID, playerID string, status domain.ConnectionStatus) (domain.PlayerState, error) {
	state, err := Step(ctx, o.runner, workflowID, "set-status", func(ctx context.Context) (domain.PlayerState, error) {
		if status == domain.ConnectionDisconnected {
			if err := o.players.HandleDisconnect(ctx, playerID); err != nil {
				return domain.PlayerState{}, err
			}
			return o.players.State(ctx, playerID)
		}
		return o.players.HandleReconnect(ctx, playerID)
	})
	if err != nil {
		return domain.PlayerState{}, err
	}

	if _, err := Step(ctx, o.runner, workflowID, "notify-status", func(ctx context.Context) (ack, error) {
		return ack{}, o.acts.UpdatePlayerStatus(ctx, activity.PlayerStatusUpdate{
			SessionID: sessionID,
			PlayerID:  playerID,
			Status:    status,
		})
	}); err != nil {
		o.log.Warn("status notify failed",
			zap.String("sessionId", sessionID), zap.String("playerId", playerID), zap.Error(err))
	}
	return state, nil
}

// CallHostTimerState is the generic single-call passthrough used by timer
// polling; it needs no journaling because the read is pure.
func (o *Orchestrator) CallHostTimerState(ctx context.Context, sessionID string) (*domain.TimerState, error) {
	return o.hosts.TimerState(ctx, sessionID)
}

// CallHostState returns the full host snapshot for external tooling.
func (o *Orchestrator) CallHostState(ctx context.Context, sessionID string) (domain.HostState, error) {
	return o.hosts.State(ctx, sessionID)
}

// CallPlayerState returns the full player state (and touches last-seen).
func (o *Orchestrator) CallPlayerState(ctx context.Context, playerID string) (domain.PlayerState, error) {
	return o.players.State(ctx, playerID)
}

// CallPlayerScoreSummary returns the read-only score projection.
func (o *Orchestrator) CallPlayerScoreSummary(ctx context.Context, playerID string) (domain.ScoreSummary, error) {
	return o.players.ScoreSummary(ctx, playerID)
}

// CallPlayerInitialize initializes a single late-joining player and bumps the
// host roster count.
func (o *Orchestrator) CallPlayerInitialize(ctx context.Context, workflowID string, in actor.InitializePlayerInput) (domain.PlayerState, error) {
	state, err := Step(ctx, o.runner, workflowID, "init-player", func(ctx context.Context) (domain.PlayerState, error) {
		return o.players.Initialize(ctx, in)
	})
	if err != nil {
		return domain.PlayerState{}, err
	}
	_, err = Step(ctx, o.runner, workflowID, "bump-roster", func(ctx context.Context) (domain.HostState, error) {
		host, err := o.hosts.State(ctx, in.SessionID)
		if err != nil {
			return domain.HostState{}, err
		}
		if err := o.hosts.UpdatePlayerCount(ctx, in.SessionID, host.TotalPlayers+1); err != nil {
			return domain.HostState{}, err
		}
		return host, nil
	})
	return state, err
}
