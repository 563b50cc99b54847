package actor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"quiz-session-service/internal/domain"
)

type playerMsg interface{ isPlayerMsg() }

// InitializePlayerInput seeds a player's ledger. Overwrite semantics, same as
// the host actor.
type InitializePlayerInput struct {
	PlayerID    string
	SessionID   string
	UserID      string
	DisplayName string
}

type initializePlayer struct {
	in    InitializePlayerInput
	reply chan domain.PlayerState
}

// SubmitAnswerInput carries the answer together with the timing validation
// already produced by the host actor. The player actor never calls the host
// itself; the saga passes the verdict through verbatim.
type SubmitAnswerInput struct {
	QuestionIndex       int
	QuestionID          string
	SelectedOptionIndex int
	SubmittedAt         time.Time
	Question            domain.Question
	Validation          domain.TimingValidation
}

type submitAnswer struct {
	in    SubmitAnswerInput
	reply chan domain.SubmitResult
}

type setConnection struct {
	status domain.ConnectionStatus
	reply  chan domain.PlayerState
}

type getPlayerState struct {
	reply chan domain.PlayerState
}

type getScoreSummary struct {
	reply chan domain.ScoreSummary
}

func (initializePlayer) isPlayerMsg() {}
func (submitAnswer) isPlayerMsg()     {}
func (setConnection) isPlayerMsg()    {}
func (getPlayerState) isPlayerMsg()   {}
func (getScoreSummary) isPlayerMsg()  {}

// Player is the single authority for one player's score and answer history.
type Player struct {
	inbox chan playerMsg
	state domain.PlayerState
	store StateStore
	clock func() time.Time
	log   *zap.Logger
	ctx   context.Context
}

func newPlayer(ctx context.Context, initial domain.PlayerState, store StateStore, clock func() time.Time, log *zap.Logger) *Player {
	p := &Player{
		inbox: make(chan playerMsg, 64),
		state: initial,
		store: store,
		clock: clock,
		log:   log,
		ctx:   ctx,
	}
	go p.loop()
	return p
}

func (p *Player) loop() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case m := <-p.inbox:
			switch msg := m.(type) {
			case initializePlayer:
				now := p.clock()
				p.state = domain.PlayerState{
					PlayerID:         msg.in.PlayerID,
					SessionID:        msg.in.SessionID,
					UserID:           msg.in.UserID,
					DisplayName:      msg.in.DisplayName,
					AnswerHistory:    []domain.AnswerRecord{},
					ConnectionStatus: domain.ConnectionActive,
					LastSeenAt:       now,
					JoinedAt:         now,
				}
				p.persist()
				msg.reply <- p.snapshot()

			case submitAnswer:
				msg.reply <- p.submit(msg.in)

			case setConnection:
				p.state.ConnectionStatus = msg.status
				p.state.LastSeenAt = p.clock()
				p.persist()
				msg.reply <- p.snapshot()

			case getPlayerState:
				p.state.LastSeenAt = p.clock()
				p.persist()
				msg.reply <- p.snapshot()

			case getScoreSummary:
				msg.reply <- p.scoreSummary()
			}
		}
	}
}

func (p *Player) submit(in SubmitAnswerInput) domain.SubmitResult {
	if !in.Validation.Valid {
		return domain.SubmitResult{Success: false, Reason: in.Validation.Reason}
	}
	// One ledger entry per question index; a retried delivery of the same
	// answer must not double-count the score.
	if p.state.HasAnswered(in.QuestionIndex) {
		return domain.SubmitResult{Success: false, Reason: domain.ReasonAlreadySubmitted}
	}
	if in.SelectedOptionIndex < 0 || in.SelectedOptionIndex >= len(in.Question.Options) {
		return domain.SubmitResult{Success: false, Reason: domain.ReasonInvalidOption}
	}

	correct := in.Question.Options[in.SelectedOptionIndex].Correct
	bonus := domain.SpeedBonus(in.Question.Points, in.Validation.Elapsed, in.Validation.TimeLimit)
	earned := 0
	if correct {
		earned = in.Question.Points + bonus
	}

	p.state.AnswerHistory = append(p.state.AnswerHistory, domain.AnswerRecord{
		QuestionIndex:       in.QuestionIndex,
		QuestionID:          in.QuestionID,
		SelectedOptionIndex: in.SelectedOptionIndex,
		IsCorrect:           correct,
		SubmittedAt:         in.SubmittedAt,
		TimeElapsedSeconds:  in.Validation.Elapsed,
		PointsEarned:        earned,
	})
	p.state.TotalAnswers++
	if correct {
		p.state.CorrectAnswers++
	}
	p.state.Score += earned
	p.state.LastSeenAt = p.clock()
	p.persist()

	return domain.SubmitResult{
		Success:        true,
		IsCorrect:      correct,
		PointsEarned:   earned,
		SpeedBonus:     bonus,
		NewScore:       p.state.Score,
		CorrectAnswers: p.state.CorrectAnswers,
		TotalAnswers:   p.state.TotalAnswers,
	}
}

func (p *Player) scoreSummary() domain.ScoreSummary {
	accuracy := 0.0
	if p.state.TotalAnswers > 0 {
		accuracy = float64(p.state.CorrectAnswers) / float64(p.state.TotalAnswers) * 100
	}
	return domain.ScoreSummary{
		PlayerID:       p.state.PlayerID,
		DisplayName:    p.state.DisplayName,
		Score:          p.state.Score,
		CorrectAnswers: p.state.CorrectAnswers,
		TotalAnswers:   p.state.TotalAnswers,
		Accuracy:       accuracy,
	}
}

func (p *Player) snapshot() domain.PlayerState {
	snap := p.state
	snap.AnswerHistory = append([]domain.AnswerRecord(nil), p.state.AnswerHistory...)
	return snap
}

func (p *Player) persist() {
	if err := p.store.SavePlayerState(p.ctx, p.snapshot()); err != nil {
		p.log.Warn("persist player state failed",
			zap.String("playerId", p.state.PlayerID), zap.Error(err))
	}
}

// PlayerRegistry routes operations to the single player actor for a player key.
type PlayerRegistry struct {
	mu      sync.Mutex
	players map[string]*Player
	store   StateStore
	clock   func() time.Time
	log     *zap.Logger
	ctx     context.Context
}

func NewPlayerRegistry(ctx context.Context, store StateStore, log *zap.Logger) *PlayerRegistry {
	return NewPlayerRegistryWithClock(ctx, store, log, time.Now)
}

// NewPlayerRegistryWithClock allows deterministic timestamps in tests.
func NewPlayerRegistryWithClock(ctx context.Context, store StateStore, log *zap.Logger, clock func() time.Time) *PlayerRegistry {
	return &PlayerRegistry{
		players: make(map[string]*Player),
		store:   store,
		clock:   clock,
		log:     log,
		ctx:     ctx,
	}
}

func (r *PlayerRegistry) player(ctx context.Context, playerID string, create bool) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[playerID]; ok {
		return p, nil
	}
	state, found, err := r.store.LoadPlayerState(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if !found {
		if !create {
			return nil, domain.ErrPlayerNotFound
		}
		state = domain.PlayerState{PlayerID: playerID}
	}
	p := newPlayer(r.ctx, state, r.store, r.clock, r.log)
	r.players[playerID] = p
	return p, nil
}

func (r *PlayerRegistry) Initialize(ctx context.Context, in InitializePlayerInput) (domain.PlayerState, error) {
	p, err := r.player(ctx, in.PlayerID, true)
	if err != nil {
		return domain.PlayerState{}, err
	}
	msg := initializePlayer{in: in, reply: make(chan domain.PlayerState, 1)}
	return ask[playerMsg](ctx, p.inbox, msg, msg.reply)
}

func (r *PlayerRegistry) SubmitAnswer(ctx context.Context, playerID string, in SubmitAnswerInput) (domain.SubmitResult, error) {
	p, err := r.player(ctx, playerID, false)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	msg := submitAnswer{in: in, reply: make(chan domain.SubmitResult, 1)}
	return ask[playerMsg](ctx, p.inbox, msg, msg.reply)
}

func (r *PlayerRegistry) HandleDisconnect(ctx context.Context, playerID string) error {
	p, err := r.player(ctx, playerID, false)
	if err != nil {
		return err
	}
	msg := setConnection{status: domain.ConnectionDisconnected, reply: make(chan domain.PlayerState, 1)}
	_, err = ask[playerMsg](ctx, p.inbox, msg, msg.reply)
	return err
}

// HandleReconnect flips the player back to active and returns the full state
// for client resync.
func (r *PlayerRegistry) HandleReconnect(ctx context.Context, playerID string) (domain.PlayerState, error) {
	p, err := r.player(ctx, playerID, false)
	if err != nil {
		return domain.PlayerState{}, err
	}
	msg := setConnection{status: domain.ConnectionActive, reply: make(chan domain.PlayerState, 1)}
	return ask[playerMsg](ctx, p.inbox, msg, msg.reply)
}

func (r *PlayerRegistry) State(ctx context.Context, playerID string) (domain.PlayerState, error) {
	p, err := r.player(ctx, playerID, false)
	if err != nil {
		return domain.PlayerState{}, err
	}
	msg := getPlayerState{reply: make(chan domain.PlayerState, 1)}
	return ask[playerMsg](ctx, p.inbox, msg, msg.reply)
}

func (r *PlayerRegistry) ScoreSummary(ctx context.Context, playerID string) (domain.ScoreSummary, error) {
	p, err := r.player(ctx, playerID, false)
	if err != nil {
		return domain.ScoreSummary{}, err
	}
	msg := getScoreSummary{reply: make(chan domain.ScoreSummary, 1)}
	return ask[playerMsg](ctx, p.inbox, msg, msg.reply)
}
