package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

const qrSize = 320

type roomHandler struct {
	rooms     *app.RoomService
	store     app.RoomStore
	clock     *app.HostClock
	publicURL string
	log       *slog.Logger
}

type createRoomRequest struct {
	Code    string `json:"code"`
	AdminID string `json:"adminId"`
}

type joinRequest struct {
	Code     string `json:"code"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

type joinResponse struct {
	Room   domain.Room   `json:"room"`
	Player domain.Player `json:"player"`
}

type actionRequest struct {
	Action string           `json:"action"`
	At     *domain.Position `json:"at,omitempty"`
}

func (h *roomHandler) list(w http.ResponseWriter, r *http.Request) {
	adminID := r.URL.Query().Get("adminId")
	if adminID == "" {
		writeError(w, h.log, &domain.ValidationError{Field: "adminId", Reason: "required"})
		return
	}
	rooms, err := h.rooms.ListRooms(r.Context(), adminID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms, "")
}

func (h *roomHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	room, err := h.rooms.CreateRoom(r.Context(), strings.TrimSpace(req.Code), req.AdminID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	h.watch(room.ID)
	writeJSON(w, http.StatusCreated, room, "room created")
}

func (h *roomHandler) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	room, player, err := h.rooms.JoinRoom(r.Context(), strings.TrimSpace(req.Code), req.Nickname, req.Avatar)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{Room: room, Player: player}, "")
}

func (h *roomHandler) get(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.GetRoom(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, room, "")
}

func (h *roomHandler) remove(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if _, err := h.rooms.Apply(r.Context(), roomID, app.Command{Action: app.ActionDelete}); err != nil {
		writeError(w, h.log, err)
		return
	}
	if h.clock != nil {
		h.clock.Stop(roomID)
	}
	writeJSON(w, http.StatusOK, nil, "room deleted")
}

func (h *roomHandler) action(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	var req actionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	action, err := app.ParseAction(req.Action)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	room, err := h.rooms.Apply(r.Context(), roomID, app.Command{Action: action, At: req.At})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	switch action {
	case app.ActionDelete, app.ActionOff:
		if h.clock != nil {
			h.clock.Stop(roomID)
		}
	default:
		h.watch(roomID)
	}
	if action == app.ActionDelete {
		writeJSON(w, http.StatusOK, nil, "room deleted")
		return
	}
	writeJSON(w, http.StatusOK, room, "")
}

func (h *roomHandler) players(w http.ResponseWriter, r *http.Request) {
	players, err := h.store.ListPlayers(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, players, "")
}

func (h *roomHandler) standings(w http.ResponseWriter, r *http.Request) {
	standings, err := h.rooms.Standings(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, standings, "")
}

// events streams room snapshots and standings as server-sent events until
// the client leaves or the room is deleted.
func (h *roomHandler) events(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	snaps, cancelRoom, err := h.store.SubscribeRoom(r.Context(), roomID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	defer cancelRoom()
	players, cancelPlayers, err := h.store.SubscribePlayers(r.Context(), roomID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	defer cancelPlayers()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.log.Debug("SSE connection established", "room", roomID)
	defer h.log.Debug("SSE connection closed", "room", roomID)

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if !snap.Exists {
				writeEvent(w, "deleted", map[string]string{"roomId": roomID})
				flusher.Flush()
				return
			}
			writeEvent(w, "room", snap.Room)
		case list, ok := <-players:
			if !ok {
				players = nil
				continue
			}
			writeEvent(w, "standings", app.RankPlayers(list))
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// qr renders the join link of the room as a PNG QR code.
func (h *roomHandler) qr(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.GetRoom(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	link := strings.TrimSuffix(h.publicURL, "/") + "/join?code=" + url.QueryEscape(room.Code)
	png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (h *roomHandler) watch(roomID string) {
	if h.clock == nil {
		return
	}
	if err := h.clock.Watch(roomID); err != nil {
		h.log.Warn("host clock watch failed", "room", roomID, "err", err)
	}
}
