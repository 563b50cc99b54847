package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"quiz-session-service/internal/activity"
	"quiz-session-service/internal/actor"
	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	pgstore "quiz-session-service/internal/infra/postgres"
	pgmigrations "quiz-session-service/internal/infra/postgres/migrations"
	infraredis "quiz-session-service/internal/infra/redis"
	"quiz-session-service/internal/workflow"
)

func TestGameSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := seedQuestionSet(t, ctx, pgURL, sampleSet())
	defer db.Close()

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	log := zap.NewNop()
	store := infraredis.NewStateStore(redisClient, 5*time.Minute)
	hosts := actor.NewHostRegistry(ctx, store, log)
	players := actor.NewPlayerRegistry(ctx, store, log)

	board := infraredis.NewLeaderboard(redisClient)
	acts := &activity.Bundle{
		Answers: pgstore.NewAnswerStore(db),
		Events:  infraredis.NewBroadcaster(redisClient),
		Board:   board,
		Log:     log,
	}
	runner := workflow.NewRunner(infraredis.NewJournal(redisClient, 5*time.Minute), log)
	flows := workflow.NewOrchestrator(hosts, players, acts, runner, log)
	catalog := infraredis.NewCatalog(redisClient, pgstore.NewQuestionSetLoader(pool), 5*time.Minute)
	service := app.NewSessionService(flows, catalog, board, log, 2*time.Second)

	created, err := service.CreateGame(ctx, app.CreateGameInput{
		SessionID:     "game-1",
		QuestionSetID: "set-1",
		Players: []workflow.PlayerSeed{
			{PlayerID: "p1", DisplayName: "Alice"},
			{PlayerID: "p2", DisplayName: "Bob"},
		},
	})
	if err != nil || !created.Success || created.PlayersInitialized != 2 {
		t.Fatalf("create game: %+v err=%v", created, err)
	}

	start, err := service.StartQuestion(ctx, "game-1", 0)
	if err != nil || !start.Success {
		t.Fatalf("start question: %+v err=%v", start, err)
	}

	submit, err := service.SubmitAnswer(ctx, app.SubmitAnswerRequest{
		SessionID:           "game-1",
		PlayerID:            "p1",
		QuestionIndex:       0,
		SelectedOptionIndex: 1,
		SubmittedAt:         time.Now(),
	})
	if err != nil || !submit.Success || !submit.IsCorrect {
		t.Fatalf("submit: %+v err=%v", submit, err)
	}

	// A duplicate delivery of the same submission replays the journal.
	retry, err := service.SubmitAnswer(ctx, app.SubmitAnswerRequest{
		SessionID:           "game-1",
		PlayerID:            "p1",
		QuestionIndex:       0,
		SelectedOptionIndex: 1,
		SubmittedAt:         time.Now(),
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry.NewScore != submit.NewScore {
		t.Fatalf("retry changed score: %+v vs %+v", retry, submit)
	}

	adv, err := service.AdvanceQuestion(ctx, "game-1")
	if err != nil || adv.HasMore {
		t.Fatalf("expected completion after single question, got %+v err=%v", adv, err)
	}

	end, err := service.EndGame(ctx, "game-1")
	if err != nil || !end.Success {
		t.Fatalf("end game: %+v err=%v", end, err)
	}
	if len(end.Standings) != 2 || end.Standings[0].PlayerID != "p1" {
		t.Fatalf("unexpected standings %+v", end.Standings)
	}

	top, err := board.Top(ctx, "game-1", 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(top) != 2 || top[0].PlayerID != "p1" || top[0].Score != submit.NewScore {
		t.Fatalf("unexpected leaderboard %+v", top)
	}

	// One audit row for p1's answer, one penalty row for silent p2.
	var answerCount, penaltyCount int
	if err := db.QueryRowContext(ctx,
		`SELECT count(*) FROM session_answers WHERE session_id='game-1' AND penalty=false`).Scan(&answerCount); err != nil {
		t.Fatalf("count answers: %v", err)
	}
	if err := db.QueryRowContext(ctx,
		`SELECT count(*) FROM session_answers WHERE session_id='game-1' AND penalty=true`).Scan(&penaltyCount); err != nil {
		t.Fatalf("count penalties: %v", err)
	}
	if answerCount != 1 || penaltyCount != 1 {
		t.Fatalf("expected 1 answer and 1 penalty row, got %d/%d", answerCount, penaltyCount)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuestionSet(t *testing.T, ctx context.Context, dsn string, set domain.QuestionSet) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal set: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO question_sets (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, set.ID, string(data)); err != nil {
		t.Fatalf("insert set: %v", err)
	}
	return db
}

func sampleSet() domain.QuestionSet {
	return domain.QuestionSet{
		ID: "set-1",
		Questions: []domain.Question{
			{
				ID:   "q1",
				Text: "What is 2 + 2?",
				Options: []domain.Option{
					{Text: "3", Correct: false},
					{Text: "4", Correct: true},
					{Text: "5", Correct: false},
				},
				TimeLimitSeconds: 30,
				Points:           10,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
