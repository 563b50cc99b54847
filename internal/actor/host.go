package actor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"quiz-session-service/internal/domain"
)

// hostMsg is the closed set of operations a host actor accepts. Every message
// carries its own reply channel; the loop switch is exhaustive over this set.
type hostMsg interface{ isHostMsg() }

// InitializeHostInput seeds a session's progression state. Re-initializing
// overwrites the previous state wholesale.
type InitializeHostInput struct {
	SessionID       string
	QuestionSetID   string
	Questions       []domain.Question
	ProgressionMode domain.ProgressionMode
	AllowLateJoin   bool
	TotalPlayers    int
}

type initializeHost struct {
	in    InitializeHostInput
	reply chan domain.HostState
}

type startQuestion struct {
	index int
	reply chan domain.StartQuestionResult
}

type advanceQuestion struct {
	reply chan domain.AdvanceResult
}

type validateAnswerTiming struct {
	playerID    string
	submittedAt time.Time
	reply       chan domain.TimingValidation
}

type getTimerState struct {
	reply chan *domain.TimerState
}

type getHostState struct {
	reply chan domain.HostState
}

type updatePlayerCount struct {
	count int
	reply chan struct{}
}

func (initializeHost) isHostMsg()       {}
func (startQuestion) isHostMsg()        {}
func (advanceQuestion) isHostMsg()      {}
func (validateAnswerTiming) isHostMsg() {}
func (getTimerState) isHostMsg()        {}
func (getHostState) isHostMsg()         {}
func (updatePlayerCount) isHostMsg()    {}

// Host is the single authority for one session's question progression and
// timing. All messages for a session are processed by one goroutine, so each
// operation sees the state committed by the previous one.
type Host struct {
	inbox chan hostMsg
	state domain.HostState
	store StateStore
	clock func() time.Time
	log   *zap.Logger
	ctx   context.Context
}

func newHost(ctx context.Context, initial domain.HostState, store StateStore, clock func() time.Time, log *zap.Logger) *Host {
	h := &Host{
		inbox: make(chan hostMsg, 64),
		state: initial,
		store: store,
		clock: clock,
		log:   log,
		ctx:   ctx,
	}
	go h.loop()
	return h
}

func (h *Host) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case m := <-h.inbox:
			switch msg := m.(type) {
			case initializeHost:
				h.state = domain.HostState{
					SessionID:            msg.in.SessionID,
					QuestionSetID:        msg.in.QuestionSetID,
					Questions:            msg.in.Questions,
					CurrentQuestionIndex: -1,
					ProgressionMode:      msg.in.ProgressionMode,
					AllowLateJoin:        msg.in.AllowLateJoin,
					PlayersAnswered:      make(map[string]struct{}),
					TotalPlayers:         msg.in.TotalPlayers,
				}
				h.persist()
				msg.reply <- h.snapshot()

			case startQuestion:
				msg.reply <- h.startQuestion(msg.index)

			case advanceQuestion:
				msg.reply <- h.advance()

			case validateAnswerTiming:
				msg.reply <- h.validateTiming(msg.playerID, msg.submittedAt)

			case getTimerState:
				msg.reply <- h.timerState()

			case getHostState:
				msg.reply <- h.snapshot()

			case updatePlayerCount:
				h.state.TotalPlayers = msg.count
				h.persist()
				msg.reply <- struct{}{}
			}
		}
	}
}

// startQuestion rejects indexes outside the question list and indexes behind
// the current one, keeping progression monotonic for any call sequence.
func (h *Host) startQuestion(index int) domain.StartQuestionResult {
	if index < 0 || index >= len(h.state.Questions) || index < h.state.CurrentQuestionIndex {
		return domain.StartQuestionResult{Success: false, Error: domain.ReasonInvalidQuestionIndex}
	}
	now := h.clock()
	question := h.state.Questions[index]
	h.state.CurrentQuestionIndex = index
	h.state.CurrentQuestionStartedAt = &now
	h.state.CurrentQuestionTimeLimit = question.TimeLimitSeconds
	h.state.PlayersAnswered = make(map[string]struct{})
	h.state.Completed = false
	h.persist()
	return domain.StartQuestionResult{
		Success:       true,
		QuestionIndex: index,
		Question:      &question,
		StartedAt:     now,
		TimeLimit:     question.TimeLimitSeconds,
	}
}

func (h *Host) advance() domain.AdvanceResult {
	next := h.state.CurrentQuestionIndex + 1
	if next >= len(h.state.Questions) {
		if !h.state.Completed {
			h.state.Completed = true
			h.persist()
		}
		return domain.AdvanceResult{Success: true, HasMore: false, NextIndex: next}
	}
	started := h.startQuestion(next)
	return domain.AdvanceResult{
		Success:   true,
		HasMore:   true,
		NextIndex: next,
		Question:  started.Question,
		StartedAt: started.StartedAt,
		TimeLimit: started.TimeLimit,
	}
}

// validateTiming fails closed when no question is live. Marking the player as
// answered is the only side effect; a player already marked still validates
// true and the repeat is caught by the player actor's ledger.
func (h *Host) validateTiming(playerID string, submittedAt time.Time) domain.TimingValidation {
	if h.state.CurrentQuestionStartedAt == nil {
		return domain.TimingValidation{Valid: false, Reason: domain.ReasonQuestionNotStarted}
	}
	elapsed := submittedAt.Sub(*h.state.CurrentQuestionStartedAt).Seconds()
	limit := h.state.CurrentQuestionTimeLimit
	v := domain.TimingValidation{
		Elapsed:      elapsed,
		TimeLimit:    limit,
		TotalPlayers: h.state.TotalPlayers,
	}
	switch {
	case elapsed < 0:
		v.Reason = domain.ReasonAnswerBeforeStart
	case elapsed > float64(limit):
		v.Reason = domain.ReasonAnswerTooLate
	default:
		v.Valid = true
	}
	if v.Valid {
		if _, seen := h.state.PlayersAnswered[playerID]; !seen {
			h.state.PlayersAnswered[playerID] = struct{}{}
			h.persist()
		}
	}
	v.AnsweredCount = len(h.state.PlayersAnswered)
	return v
}

func (h *Host) timerState() *domain.TimerState {
	if h.state.CurrentQuestionStartedAt == nil {
		return nil
	}
	elapsed := h.clock().Sub(*h.state.CurrentQuestionStartedAt).Seconds()
	remaining := float64(h.state.CurrentQuestionTimeLimit) - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return &domain.TimerState{
		QuestionIndex: h.state.CurrentQuestionIndex,
		Question:      h.state.Questions[h.state.CurrentQuestionIndex],
		StartedAt:     *h.state.CurrentQuestionStartedAt,
		TimeLimit:     h.state.CurrentQuestionTimeLimit,
		Elapsed:       elapsed,
		Remaining:     remaining,
		AnsweredCount: len(h.state.PlayersAnswered),
		TotalPlayers:  h.state.TotalPlayers,
	}
}

func (h *Host) snapshot() domain.HostState {
	snap := h.state
	snap.PlayersAnswered = make(map[string]struct{}, len(h.state.PlayersAnswered))
	for id := range h.state.PlayersAnswered {
		snap.PlayersAnswered[id] = struct{}{}
	}
	return snap
}

func (h *Host) persist() {
	if err := h.store.SaveHostState(h.ctx, h.snapshot()); err != nil {
		h.log.Warn("persist host state failed",
			zap.String("sessionId", h.state.SessionID), zap.Error(err))
	}
}

// HostRegistry routes operations to the single host actor for a session key,
// spawning and rehydrating the actor on first use.
type HostRegistry struct {
	mu    sync.Mutex
	hosts map[string]*Host
	store StateStore
	clock func() time.Time
	log   *zap.Logger
	ctx   context.Context
}

func NewHostRegistry(ctx context.Context, store StateStore, log *zap.Logger) *HostRegistry {
	return NewHostRegistryWithClock(ctx, store, log, time.Now)
}

// NewHostRegistryWithClock allows deterministic timestamps in tests.
func NewHostRegistryWithClock(ctx context.Context, store StateStore, log *zap.Logger, clock func() time.Time) *HostRegistry {
	return &HostRegistry{
		hosts: make(map[string]*Host),
		store: store,
		clock: clock,
		log:   log,
		ctx:   ctx,
	}
}

// host returns the actor for sessionID. When create is false the session must
// already exist in memory or in the snapshot store.
func (r *HostRegistry) host(ctx context.Context, sessionID string, create bool) (*Host, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.hosts[sessionID]; ok {
		return h, nil
	}
	state, found, err := r.store.LoadHostState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !found {
		if !create {
			return nil, domain.ErrSessionNotFound
		}
		state = domain.HostState{SessionID: sessionID, CurrentQuestionIndex: -1, PlayersAnswered: make(map[string]struct{})}
	}
	if state.PlayersAnswered == nil {
		state.PlayersAnswered = make(map[string]struct{})
	}
	h := newHost(r.ctx, state, r.store, r.clock, r.log)
	r.hosts[sessionID] = h
	return h, nil
}

func (r *HostRegistry) Initialize(ctx context.Context, in InitializeHostInput) (domain.HostState, error) {
	h, err := r.host(ctx, in.SessionID, true)
	if err != nil {
		return domain.HostState{}, err
	}
	msg := initializeHost{in: in, reply: make(chan domain.HostState, 1)}
	return ask[hostMsg](ctx, h.inbox, msg, msg.reply)
}

func (r *HostRegistry) StartQuestion(ctx context.Context, sessionID string, index int) (domain.StartQuestionResult, error) {
	h, err := r.host(ctx, sessionID, false)
	if err != nil {
		return domain.StartQuestionResult{}, err
	}
	msg := startQuestion{index: index, reply: make(chan domain.StartQuestionResult, 1)}
	return ask[hostMsg](ctx, h.inbox, msg, msg.reply)
}

func (r *HostRegistry) AdvanceQuestion(ctx context.Context, sessionID string) (domain.AdvanceResult, error) {
	h, err := r.host(ctx, sessionID, false)
	if err != nil {
		return domain.AdvanceResult{}, err
	}
	msg := advanceQuestion{reply: make(chan domain.AdvanceResult, 1)}
	return ask[hostMsg](ctx, h.inbox, msg, msg.reply)
}

func (r *HostRegistry) ValidateAnswerTiming(ctx context.Context, sessionID, playerID string, submittedAt time.Time) (domain.TimingValidation, error) {
	h, err := r.host(ctx, sessionID, false)
	if err != nil {
		return domain.TimingValidation{}, err
	}
	msg := validateAnswerTiming{playerID: playerID, submittedAt: submittedAt, reply: make(chan domain.TimingValidation, 1)}
	return ask[hostMsg](ctx, h.inbox, msg, msg.reply)
}

// TimerState returns nil when no question has been started.
func (r *HostRegistry) TimerState(ctx context.Context, sessionID string) (*domain.TimerState, error) {
	h, err := r.host(ctx, sessionID, false)
	if err != nil {
		return nil, err
	}
	msg := getTimerState{reply: make(chan *domain.TimerState, 1)}
	return ask[hostMsg](ctx, h.inbox, msg, msg.reply)
}

func (r *HostRegistry) State(ctx context.Context, sessionID string) (domain.HostState, error) {
	h, err := r.host(ctx, sessionID, false)
	if err != nil {
		return domain.HostState{}, err
	}
	msg := getHostState{reply: make(chan domain.HostState, 1)}
	return ask[hostMsg](ctx, h.inbox, msg, msg.reply)
}

func (r *HostRegistry) UpdatePlayerCount(ctx context.Context, sessionID string, count int) error {
	h, err := r.host(ctx, sessionID, false)
	if err != nil {
		return err
	}
	msg := updatePlayerCount{count: count, reply: make(chan struct{}, 1)}
	_, err = ask[hostMsg](ctx, h.inbox, msg, msg.reply)
	return err
}
