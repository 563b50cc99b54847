package cli

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"quiz-session-service/internal/activity"
	"quiz-session-service/internal/actor"
	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
	pginfra "quiz-session-service/internal/infra/postgres"
	redisinfra "quiz-session-service/internal/infra/redis"
	transport "quiz-session-service/internal/transport/http"
	"quiz-session-service/internal/workflow"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	var bunDB *bun.DB
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		bunDB = bun.NewDB(sqldb, pgdialect.New())
	}

	stateTTL := config.TTLDuration(cfg.Session.StateTTL, 2*time.Hour)
	journalTTL := config.TTLDuration(cfg.Session.JournalTTL, 2*time.Hour)
	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	autoGrace := config.TTLDuration(cfg.Session.AutoAdvanceGrace, 2*time.Second)

	var store actor.StateStore
	var journal workflow.Journal
	var events activity.Broadcaster
	var board activity.Leaderboard
	if redisClient != nil {
		store = redisinfra.NewStateStore(redisClient, stateTTL)
		journal = redisinfra.NewJournal(redisClient, journalTTL)
		events = redisinfra.NewBroadcaster(redisClient)
		board = redisinfra.NewLeaderboard(redisClient)
	} else {
		store = memory.NewStateStore()
		journal = memory.NewJournal()
		events = memory.NewHub()
		board = memory.NewLeaderboard()
	}

	var answers activity.AnswerWriter = memory.NewAnswerLog()
	if bunDB != nil {
		answers = pginfra.NewAnswerStore(bunDB)
	}

	var loader memory.QuestionSetLoader = memory.NewStaticLoader(sampleQuestionSets())
	if pool != nil {
		loader = pginfra.NewQuestionSetLoader(pool)
	}
	var catalog app.CatalogRepository
	if redisClient != nil {
		catalog = redisinfra.NewCatalog(redisClient, loader, catalogTTL)
	} else {
		catalog = memory.NewCatalog(loader, catalogTTL)
	}

	hosts := actor.NewHostRegistry(ctx, store, log)
	players := actor.NewPlayerRegistry(ctx, store, log)
	bundle := &activity.Bundle{Answers: answers, Events: events, Board: board, Log: log}
	runner := workflow.NewRunner(journal, log)
	flows := workflow.NewOrchestrator(hosts, players, bundle, runner, log)
	service := app.NewSessionService(flows, catalog, board, log, autoGrace)

	wsHandler := transport.NewWSHandler(service, events, log)
	gamesHandler := transport.NewGamesHandler(service, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.Handle("/games", gamesHandler)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz session service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}
	return cfg.Build()
}

// sampleQuestionSets provides minimal demo content for redis/postgres-less runs.
func sampleQuestionSets() map[string]domain.QuestionSet {
	return map[string]domain.QuestionSet{
		"set-1": {
			ID: "set-1",
			Questions: []domain.Question{
				{
					ID:   "q1",
					Text: "What is 2 + 2?",
					Options: []domain.Option{
						{Text: "3"},
						{Text: "4", Correct: true},
						{Text: "5"},
					},
					TimeLimitSeconds: 30,
					Points:           10,
				},
				{
					ID:   "q2",
					Text: "Which planet is closest to the sun?",
					Options: []domain.Option{
						{Text: "Venus"},
						{Text: "Mercury", Correct: true},
						{Text: "Mars"},
					},
					TimeLimitSeconds: 20,
					Points:           10,
				},
			},
		},
	}
}
