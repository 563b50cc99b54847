package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"quiz-session-service/internal/activity"
	"quiz-session-service/internal/actor"
	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
	"quiz-session-service/internal/workflow"
)

var testClock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type serviceEnv struct {
	service *app.SessionService
	answers *memory.AnswerLog
	hub     *memory.Hub
	board   *memory.Leaderboard
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	log := zap.NewNop()
	store := memory.NewStateStore()
	clock := func() time.Time { return testClock }
	hosts := actor.NewHostRegistryWithClock(context.Background(), store, log, clock)
	players := actor.NewPlayerRegistryWithClock(context.Background(), store, log, clock)

	env := &serviceEnv{
		answers: memory.NewAnswerLog(),
		hub:     memory.NewHub(),
		board:   memory.NewLeaderboard(),
	}
	acts := &activity.Bundle{Answers: env.answers, Events: env.hub, Board: env.board, Log: log}
	flows := workflow.NewOrchestrator(hosts, players, acts, workflow.NewRunner(memory.NewJournal(), log), log)

	catalog := memory.NewCatalog(memory.NewStaticLoader(map[string]domain.QuestionSet{
		"set-1": {
			ID: "set-1",
			Questions: []domain.Question{
				{ID: "q1", Text: "2+2?", Options: []domain.Option{{Text: "3"}, {Text: "4", Correct: true}}, TimeLimitSeconds: 30, Points: 10},
				{ID: "q2", Text: "capital?", Options: []domain.Option{{Text: "Oslo", Correct: true}, {Text: "Bergen"}}, TimeLimitSeconds: 20, Points: 5},
			},
		},
	}), time.Minute)

	env.service = app.NewSessionService(flows, catalog, env.board, log, 2*time.Second)
	return env
}

func createGame(t *testing.T, env *serviceEnv, sessionID string, allowLateJoin bool, players ...string) {
	t.Helper()
	seeds := make([]workflow.PlayerSeed, len(players))
	for i, id := range players {
		seeds[i] = workflow.PlayerSeed{PlayerID: id, DisplayName: "player " + id}
	}
	res, err := env.service.CreateGame(context.Background(), app.CreateGameInput{
		SessionID:     sessionID,
		QuestionSetID: "set-1",
		AllowLateJoin: allowLateJoin,
		Players:       seeds,
	})
	if err != nil || !res.Success {
		t.Fatalf("create game: %+v err=%v", res, err)
	}
}

func TestCreateGameUnknownSet(t *testing.T) {
	env := newServiceEnv(t)
	_, err := env.service.CreateGame(context.Background(), app.CreateGameInput{QuestionSetID: "missing"})
	if !errors.Is(err, domain.ErrQuestionSetNotFound) {
		t.Fatalf("expected question-set-not-found, got %v", err)
	}
}

func TestCreateGameGeneratesSessionID(t *testing.T) {
	env := newServiceEnv(t)
	res, err := env.service.CreateGame(context.Background(), app.CreateGameInput{
		QuestionSetID: "set-1",
		Players:       []workflow.PlayerSeed{{PlayerID: "p1", DisplayName: "Alice"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.SessionID == "" {
		t.Fatal("expected generated session id")
	}
	if _, err := env.service.HostState(context.Background(), res.SessionID); err != nil {
		t.Fatalf("session not reachable under generated id: %v", err)
	}
}

func TestFullGameFlow(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	createGame(t, env, "s1", false, "p1", "p2")

	start, err := env.service.StartQuestion(ctx, "s1", 0)
	if err != nil || !start.Success {
		t.Fatalf("start: %+v err=%v", start, err)
	}

	submit, err := env.service.SubmitAnswer(ctx, app.SubmitAnswerRequest{
		SessionID:           "s1",
		PlayerID:            "p1",
		QuestionIndex:       0,
		SelectedOptionIndex: 1,
		SubmittedAt:         testClock,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !submit.Success || submit.NewScore != 12 {
		t.Fatalf("expected instant correct answer to score 12, got %+v", submit)
	}

	adv, err := env.service.AdvanceQuestion(ctx, "s1")
	if err != nil || !adv.Success || !adv.HasMore {
		t.Fatalf("advance: %+v err=%v", adv, err)
	}
	// p2 never answered q1.
	if penalties := env.answers.Penalties(); len(penalties) != 1 || penalties[0].PlayerID != "p2" {
		t.Fatalf("expected p2 penalty, got %+v", penalties)
	}

	adv, err = env.service.AdvanceQuestion(ctx, "s1")
	if err != nil || adv.HasMore {
		t.Fatalf("expected completion, got %+v err=%v", adv, err)
	}

	end, err := env.service.EndGame(ctx, "s1")
	if err != nil || !end.Success {
		t.Fatalf("end: %+v err=%v", end, err)
	}
	if len(end.Standings) != 2 || end.Standings[0].PlayerID != "p1" {
		t.Fatalf("unexpected standings %+v", end.Standings)
	}

	top, err := env.service.Leaderboard(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(top) != 2 || top[0].PlayerID != "p1" || top[0].Score != 12 {
		t.Fatalf("unexpected leaderboard %+v", top)
	}
}

func TestSubmitRetryReplays(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	createGame(t, env, "s1", false, "p1")

	if _, err := env.service.StartQuestion(ctx, "s1", 0); err != nil {
		t.Fatalf("start: %v", err)
	}

	req := app.SubmitAnswerRequest{
		SessionID:           "s1",
		PlayerID:            "p1",
		QuestionIndex:       0,
		SelectedOptionIndex: 1,
		SubmittedAt:         testClock.Add(5 * time.Second),
	}
	first, err := env.service.SubmitAnswer(ctx, req)
	if err != nil || !first.Success {
		t.Fatalf("submit: %+v err=%v", first, err)
	}
	second, err := env.service.SubmitAnswer(ctx, req)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if second != first {
		t.Fatalf("retry diverged: %+v vs %+v", second, first)
	}

	state, _ := env.service.PlayerState(ctx, "p1")
	if state.Score != first.NewScore || state.TotalAnswers != 1 {
		t.Fatalf("retry double-counted: %+v", state)
	}
	if len(env.answers.Answers()) != 1 {
		t.Fatalf("expected single audit row, got %d", len(env.answers.Answers()))
	}
}

func TestSubmitRejectsBadQuestionIndex(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	createGame(t, env, "s1", false, "p1")

	res, err := env.service.SubmitAnswer(ctx, app.SubmitAnswerRequest{
		SessionID:           "s1",
		PlayerID:            "p1",
		QuestionIndex:       7,
		SelectedOptionIndex: 0,
		SubmittedAt:         testClock,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Success || res.Reason != domain.ReasonInvalidQuestionIndex {
		t.Fatalf("expected invalid index rejection, got %+v", res)
	}
}

func TestJoinLate(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	createGame(t, env, "closed", false, "p1")
	createGame(t, env, "open", true, "p1")

	_, _, err := env.service.JoinLate(ctx, "closed", workflow.PlayerSeed{PlayerID: "p9", DisplayName: "Larry"})
	if !errors.Is(err, domain.ErrLateJoinDisabled) {
		t.Fatalf("expected late-join-disabled, got %v", err)
	}

	// Mid-question join returns the live timer for sync.
	if _, err := env.service.StartQuestion(ctx, "open", 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	player, timer, err := env.service.JoinLate(ctx, "open", workflow.PlayerSeed{PlayerID: "p9", DisplayName: "Larry"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if player.DisplayName != "Larry" {
		t.Fatalf("unexpected player %+v", player)
	}
	if timer == nil || timer.QuestionIndex != 0 {
		t.Fatalf("expected live timer, got %+v", timer)
	}

	host, _ := env.service.HostState(ctx, "open")
	if host.TotalPlayers != 2 {
		t.Fatalf("expected roster of 2, got %d", host.TotalPlayers)
	}
}

func TestDisconnectReconnectRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	createGame(t, env, "s1", false, "p1")

	if err := env.service.Disconnect(ctx, "s1", "p1"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	state, _ := env.service.PlayerState(ctx, "p1")
	if state.ConnectionStatus != domain.ConnectionDisconnected {
		t.Fatalf("expected disconnected, got %s", state.ConnectionStatus)
	}

	state, timer, err := env.service.Reconnect(ctx, "s1", "p1")
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if state.ConnectionStatus != domain.ConnectionActive {
		t.Fatalf("expected active, got %s", state.ConnectionStatus)
	}
	if timer != nil {
		t.Fatalf("expected nil timer in lobby, got %+v", timer)
	}
}

func TestSubmitBeforeStartDoesNotPinRejection(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	createGame(t, env, "s1", false, "p1")

	req := app.SubmitAnswerRequest{
		SessionID:           "s1",
		PlayerID:            "p1",
		QuestionIndex:       0,
		SelectedOptionIndex: 1,
		SubmittedAt:         testClock,
	}
	early, err := env.service.SubmitAnswer(ctx, req)
	if err != nil {
		t.Fatalf("early submit: %v", err)
	}
	if early.Success || early.Reason != domain.ReasonQuestionNotStarted {
		t.Fatalf("expected not-started rejection, got %+v", early)
	}

	if _, err := env.service.StartQuestion(ctx, "s1", 0); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Once the question is live the same submission succeeds; the earlier
	// rejection must not replay against the player.
	res, err := env.service.SubmitAnswer(ctx, req)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if !res.Success || res.NewScore != 12 {
		t.Fatalf("expected accepted answer scoring 12, got %+v", res)
	}
}

func TestReconnectRejectsForeignSession(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	createGame(t, env, "s1", false, "p1")
	createGame(t, env, "s2", false, "p2")

	if _, _, err := env.service.Reconnect(ctx, "s2", "p1"); !errors.Is(err, domain.ErrPlayerSessionMismatch) {
		t.Fatalf("expected session mismatch, got %v", err)
	}

	// The cross-session attempt must not have touched p1's status.
	state, err := env.service.PlayerState(ctx, "p1")
	if err != nil {
		t.Fatalf("player state: %v", err)
	}
	if state.SessionID != "s1" || state.ConnectionStatus != domain.ConnectionActive {
		t.Fatalf("unexpected player state %+v", state)
	}
}

func TestTimerStateNilBeforeStart(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)
	createGame(t, env, "s1", false, "p1")

	timer, err := env.service.TimerState(ctx, "s1")
	if err != nil {
		t.Fatalf("timer: %v", err)
	}
	if timer != nil {
		t.Fatalf("expected nil timer before first question, got %+v", timer)
	}
}
