package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quiz-session-service/internal/activity"
	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/workflow"
)

type WSHandler struct {
	service  *app.SessionService
	events   activity.Broadcaster
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService, events activity.Broadcaster, log *zap.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		events:  events,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startQuestionPayload struct {
	QuestionIndex int `json:"questionIndex"`
}

type answerPayload struct {
	QuestionIndex       int `json:"questionIndex"`
	SelectedOptionIndex int `json:"selectedOptionIndex"`
}

type resyncPayload struct {
	Player domain.PlayerState `json:"player"`
	Timer  *domain.TimerState `json:"timer,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// wsSession pairs the outbound queue with the writer's lifetime so that a
// send attempted after the writer exited does not block the reader forever.
type wsSession struct {
	send       chan outboundMessage[any]
	writerDone chan struct{}
}

func (s *wsSession) push(msg outboundMessage[any]) {
	select {
	case s.send <- msg:
	case <-s.writerDone:
	}
}

// ServeWS upgrades the request and wires the connection into the session
// service: hosts drive progression, players submit answers, both receive the
// session's broadcast stream.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	role := r.URL.Query().Get("role")
	playerID := r.URL.Query().Get("playerId")
	displayName := r.URL.Query().Get("name")

	if sessionID == "" || role == "" || (role == "player" && playerID == "") {
		http.Error(w, "missing sessionId, role, or playerId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sess := &wsSession{
		send:       make(chan outboundMessage[any], 16),
		writerDone: make(chan struct{}),
	}
	closeSignals := make(chan struct{})

	go func() {
		defer close(sess.writerDone)
		for msg := range sess.send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	if role == "player" {
		player, timer, err := h.attachPlayer(r, sessionID, playerID, displayName)
		if err != nil {
			sess.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			close(sess.send)
			<-sess.writerDone
			return
		}
		sess.push(outboundMessage[any]{Type: "resync", Payload: resyncPayload{Player: player, Timer: timer}})
		defer func() {
			_ = h.service.Disconnect(r.Context(), sessionID, playerID)
		}()
	}

	updates, cancelUpdates, err := h.events.Subscribe(r.Context(), sessionID)
	if err != nil {
		sess.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		close(sess.send)
		<-sess.writerDone
		return
	}
	defer cancelUpdates()

	updatesDone := make(chan struct{})
	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case sess.send <- outboundMessage[any]{Type: ev.Type, Payload: ev.Payload}:
				case <-closeSignals:
					return
				case <-sess.writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch {
		case role == "host":
			h.handleHostMessage(r, sessionID, inbound, sess)
		case role == "player":
			h.handlePlayerMessage(r, sessionID, playerID, inbound, sess)
		}
	}

	close(closeSignals)
	<-updatesDone
	close(sess.send)
	<-sess.writerDone
}

// attachPlayer resyncs a known player or late-joins a new one.
func (h *WSHandler) attachPlayer(r *http.Request, sessionID, playerID, displayName string) (domain.PlayerState, *domain.TimerState, error) {
	player, timer, err := h.service.Reconnect(r.Context(), sessionID, playerID)
	if err == nil {
		return player, timer, nil
	}
	if err != domain.ErrPlayerNotFound {
		return domain.PlayerState{}, nil, err
	}
	return h.service.JoinLate(r.Context(), sessionID, workflow.PlayerSeed{
		PlayerID:    playerID,
		DisplayName: displayName,
	})
}

func (h *WSHandler) handleHostMessage(r *http.Request, sessionID string, inbound inboundMessage, sess *wsSession) {
	switch inbound.Type {
	case "startQuestion":
		var payload startQuestionPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			sess.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid startQuestion payload"}})
			return
		}
		result, err := h.service.StartQuestion(r.Context(), sessionID, payload.QuestionIndex)
		if err != nil {
			sess.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		sess.push(outboundMessage[any]{Type: "startResult", Payload: result})

	case "nextQuestion":
		result, err := h.service.AdvanceQuestion(r.Context(), sessionID)
		if err != nil {
			sess.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		sess.push(outboundMessage[any]{Type: "advanceResult", Payload: result})

	case "endGame":
		result, err := h.service.EndGame(r.Context(), sessionID)
		if err != nil {
			sess.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		sess.push(outboundMessage[any]{Type: "endResult", Payload: result})

	case "timerState":
		timer, err := h.service.TimerState(r.Context(), sessionID)
		if err != nil {
			sess.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		sess.push(outboundMessage[any]{Type: "timerState", Payload: timer})

	default:
		sess.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
	}
}

func (h *WSHandler) handlePlayerMessage(r *http.Request, sessionID, playerID string, inbound inboundMessage, sess *wsSession) {
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			sess.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
			return
		}
		result, err := h.service.SubmitAnswer(r.Context(), app.SubmitAnswerRequest{
			SessionID:           sessionID,
			PlayerID:            playerID,
			QuestionIndex:       payload.QuestionIndex,
			SelectedOptionIndex: payload.SelectedOptionIndex,
			SubmittedAt:         time.Now(),
		})
		if err != nil {
			sess.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		sess.push(outboundMessage[any]{Type: "answerResult", Payload: result})

	case "timerState":
		timer, err := h.service.TimerState(r.Context(), sessionID)
		if err != nil {
			sess.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		sess.push(outboundMessage[any]{Type: "timerState", Payload: timer})

	default:
		sess.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
	}
}
