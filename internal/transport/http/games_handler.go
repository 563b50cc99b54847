package http

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/workflow"
)

// GamesHandler is the thin REST trigger for game creation: validate payload,
// kick off the initialization workflow, return its result.
type GamesHandler struct {
	service *app.SessionService
	log     *zap.Logger
}

func NewGamesHandler(service *app.SessionService, log *zap.Logger) *GamesHandler {
	return &GamesHandler{service: service, log: log}
}

type createGameRequest struct {
	SessionID       string                `json:"sessionId"`
	QuestionSetID   string                `json:"questionSetId"`
	ProgressionMode string                `json:"progressionMode"`
	AllowLateJoin   bool                  `json:"allowLateJoin"`
	Players         []workflow.PlayerSeed `json:"players"`
}

func (h *GamesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.QuestionSetID == "" || len(req.Players) == 0 {
		http.Error(w, "missing questionSetId or players", http.StatusBadRequest)
		return
	}

	result, err := h.service.CreateGame(r.Context(), app.CreateGameInput{
		SessionID:       req.SessionID,
		QuestionSetID:   req.QuestionSetID,
		ProgressionMode: domain.ProgressionMode(req.ProgressionMode),
		AllowLateJoin:   req.AllowLateJoin,
		Players:         req.Players,
	})
	if err != nil {
		if err == domain.ErrQuestionSetNotFound {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error("create game failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
