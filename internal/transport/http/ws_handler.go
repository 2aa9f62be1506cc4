package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

// WSHandler serves one player connection. Each connection owns a
// PlayerSession; the socket only relays its states and the player's commands.
type WSHandler struct {
	rooms     *app.RoomService
	store     app.RoomStore
	questions app.QuestionStore
	session   app.SessionConfig
	log       *slog.Logger
	upgrader  websocket.Upgrader
}

func NewWSHandler(rooms *app.RoomService, store app.RoomStore, questions app.QuestionStore, session app.SessionConfig, log *slog.Logger) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	if session.Logger == nil {
		session.Logger = log
	}
	return &WSHandler{
		rooms:     rooms,
		store:     store,
		questions: questions,
		session:   session,
		log:       log,
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
	Answer int `json:"answer"`
}

type toolPayload struct {
	Tool string `json:"tool"`
}

type joinedPayload struct {
	Room   domain.Room   `json:"room"`
	Player domain.Player `json:"player"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

const msgClosed = "closed"

// ServeWS upgrades HTTP requests to websockets, joins the room and runs the
// player's session until either side goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	nickname := r.URL.Query().Get("nickname")
	avatar := r.URL.Query().Get("avatar")
	if code == "" || nickname == "" {
		http.Error(w, "missing code or nickname", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	room, player, err := h.rooms.JoinRoom(r.Context(), code, nickname, avatar)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	nickname = player.Nickname

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	players, cancelPlayers, err := h.store.SubscribePlayers(ctx, room.ID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancelPlayers()
	profiles, cancelProfile, err := h.store.SubscribeUserProfile(ctx, nickname)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancelProfile()

	session := app.NewPlayerSession(room.ID, nickname, h.store, h.questions, h.session)
	go func() {
		if err := session.Run(ctx); err != nil {
			h.log.Info("player session ended", "room", room.ID, "nickname", nickname, "err", err)
		}
	}()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	forwardDone := make(chan struct{})

	// Single writer: gorilla connections allow one concurrent writer.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", "err", err)
				return
			}
			if msg.Type == msgClosed {
				deadline := time.Now().Add(time.Second)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"), deadline)
				_ = conn.Close()
				return
			}
		}
	}()

	push := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	go func() {
		defer close(forwardDone)
		forward := func(msg outboundMessage[any]) bool {
			select {
			case send <- msg:
				return true
			case <-writerDone:
				return false
			case <-closeSignals:
				return false
			}
		}
		for {
			select {
			case state := <-session.Updates():
				if !forward(outboundMessage[any]{Type: "state", Payload: state}) {
					return
				}
			case list, ok := <-players:
				if !ok {
					players = nil
					continue
				}
				if !forward(outboundMessage[any]{Type: "standings", Payload: app.RankPlayers(list)}) {
					return
				}
			case profile, ok := <-profiles:
				if !ok {
					profiles = nil
					continue
				}
				if !forward(outboundMessage[any]{Type: "profile", Payload: profile}) {
					return
				}
			case <-session.Done():
				// Flush the final state, then tell the client the session is over.
			drain:
				for {
					select {
					case state := <-session.Updates():
						if !forward(outboundMessage[any]{Type: "state", Payload: state}) {
							return
						}
					default:
						break drain
					}
				}
				forward(outboundMessage[any]{Type: msgClosed, Payload: errorPayload{Message: "session ended"}})
				return
			case <-closeSignals:
				return
			}
		}
	}()

	push(outboundMessage[any]{Type: "joined", Payload: joinedPayload{Room: room, Player: player}})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.handle(ctx, session, inbound, push)
	}

	cancel()
	close(closeSignals)
	<-forwardDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handle(ctx context.Context, session *app.PlayerSession, inbound inboundMessage, push func(outboundMessage[any])) {
	fail := func(err error) {
		push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
	}
	switch inbound.Type {
	case "select":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail(&domain.ValidationError{Field: "payload", Reason: "invalid select payload"})
			return
		}
		if err := session.Select(ctx, payload.Answer); err != nil {
			fail(err)
		}
	case "submit":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail(&domain.ValidationError{Field: "payload", Reason: "invalid submit payload"})
			return
		}
		res, err := session.Submit(ctx, payload.Answer)
		if err != nil {
			fail(err)
			return
		}
		push(outboundMessage[any]{Type: "answerResult", Payload: res})
	case "tool":
		var payload toolPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail(&domain.ValidationError{Field: "payload", Reason: "invalid tool payload"})
			return
		}
		tool, err := domain.ParseHelpTool(payload.Tool)
		if err != nil {
			fail(err)
			return
		}
		if _, err := session.UseTool(ctx, tool); err != nil {
			fail(err)
		}
	case "state":
		state, err := session.State(ctx)
		if err != nil {
			fail(err)
			return
		}
		push(outboundMessage[any]{Type: "state", Payload: state})
	default:
		fail(&domain.ValidationError{Field: "type", Reason: "unsupported message type"})
	}
}
