package http

import (
	"context"
	"encoding/json"
	"net/http"

	"duel-match-service/internal/app"
	"duel-match-service/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// WSHandler is the engine's only surface: one websocket per participant,
// carrying create/join/start/answer messages inbound and match snapshots
// outbound. It also runs the per-player timer loop for the connected player.
type WSHandler struct {
	svc      *app.MatchService
	clock    clockwork.Clock
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(svc *app.MatchService, log zerolog.Logger) *WSHandler {
	return NewWSHandlerWithClock(svc, log, clockwork.NewRealClock())
}

// NewWSHandlerWithClock is test-only for driving timer ticks deterministically.
func NewWSHandlerWithClock(svc *app.MatchService, log zerolog.Logger, clock clockwork.Clock) *WSHandler {
	return &WSHandler{
		svc:   svc,
		clock: clock,
		log:   log.With().Str("component", "ws_handler").Logger(),
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

type answerPayload struct {
	Letter string `json:"letter"`
}

type answerResult struct {
	Letter   string `json:"letter"`
	Correct  bool   `json:"correct"`
	Score    int    `json:"score"`
	TimeLeft int    `json:"timeLeft"`
	Finished bool   `json:"finished"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and binds the caller to a match. An empty
// code query parameter creates a new match with the caller as host; otherwise
// the caller joins the given side of the existing match.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	code := query.Get("code")
	identity := domain.Identity{
		ID:          query.Get("playerId"),
		DisplayName: query.Get("name"),
		AvatarURL:   query.Get("avatar"),
	}
	pin := query.Get("pin")
	side := domain.TeamSide(query.Get("side"))
	if side != domain.TeamSideA && side != domain.TeamSideB {
		side = domain.TeamSideB
	}
	if identity.ID == "" || identity.DisplayName == "" {
		http.Error(w, "missing playerId or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	if code == "" {
		teamName := query.Get("team")
		if teamName == "" {
			teamName = identity.DisplayName
		}
		m, err := h.svc.CreateMatch(r.Context(), identity, teamName, pin)
		if err != nil {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		code = m.Code
	} else {
		if _, err := h.svc.JoinMatch(r.Context(), code, pin, identity, side); err != nil {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
	}

	ctrl, err := app.NewController(r.Context(), h.svc, code, identity)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer ctrl.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	loopCtx, stopLoop := context.WithCancel(r.Context())
	defer stopLoop()

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	updates, cancelUpdates, err := h.svc.Observe(r.Context(), code)
	if err != nil {
		close(closeSignals)
		close(send)
		<-writerDone
		return
	}
	defer cancelUpdates()

	go func() {
		defer close(updatesDone)
		loopRunning := false
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Started && !loopRunning {
					loopRunning = true
					loop := app.NewTimerLoop(h.clock, h.svc, code, identity.ID, ctrl.Latest, h.log)
					go loop.Run(loopCtx)
				}
				select {
				case send <- outboundMessage[any]{Type: "match", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "joined", Payload: map[string]any{"code": code, "playerId": identity.ID}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			if _, err := h.svc.StartGame(r.Context(), code, identity.ID); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			correct, err := ctrl.Submit(r.Context(), payload.Letter)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "answerResult", Payload: answerResult{
				Letter:   payload.Letter,
				Correct:  correct,
				Score:    ctrl.MyScore(),
				TimeLeft: ctrl.MyTimeLeft(),
				Finished: ctrl.HasFinished(),
			}}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
