package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/infra/memory"
)

type testEnv struct {
	server    *httptest.Server
	store     *memory.RoomStore
	rooms     *app.RoomService
	questions *app.QuestionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewRoomStore()
	bank := memory.NewQuestionBank(sampleQuestions()...)
	rooms := app.NewRoomService(store, bank, app.WithLogger(log))
	questions := app.NewQuestionService(bank, log)

	handler := NewRouter(Deps{
		Rooms:     rooms,
		Questions: questions,
		Store:     store,
		Bank:      bank,
		PublicURL: "http://quiz.local",
		Logger:    log,
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &testEnv{server: server, store: store, rooms: rooms, questions: questions}
}

func (e *testEnv) startedRoom(t *testing.T, code string) domain.Room {
	t.Helper()
	ctx := context.Background()
	room, err := e.rooms.CreateRoom(ctx, code, "admin-1")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	room, err = e.rooms.Apply(ctx, room.ID, app.Command{Action: app.ActionStart})
	if err != nil {
		t.Fatalf("start room: %v", err)
	}
	return room
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, jsonResponse, json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		jsonResponse
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, envelope.jsonResponse, envelope.Data
}

func TestRoomLifecycleOverREST(t *testing.T) {
	env := newTestEnv(t)

	status, _, data := env.do(t, http.MethodPost, "/rooms", createRoomRequest{Code: "12345", AdminID: "admin-1"})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	var room domain.Room
	_ = json.Unmarshal(data, &room)
	if room.Phase != domain.PhaseWaiting || room.Level != 1 {
		t.Fatalf("unexpected room %+v", room)
	}

	if status, _, _ := env.do(t, http.MethodPost, "/rooms", createRoomRequest{Code: "12345", AdminID: "admin-2"}); status != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate code, got %d", status)
	}
	if status, _, _ := env.do(t, http.MethodPost, "/rooms", createRoomRequest{Code: "12a45", AdminID: "admin-1"}); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad code, got %d", status)
	}
	if status, _, _ := env.do(t, http.MethodPost, "/rooms/join", joinRequest{Code: "12345", Nickname: "alice"}); status != http.StatusBadRequest {
		t.Fatalf("expected 400 joining a waiting room, got %d", status)
	}

	status, _, data = env.do(t, http.MethodPost, "/rooms/"+room.ID+"/actions", actionRequest{Action: "start"})
	if status != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", status)
	}
	_ = json.Unmarshal(data, &room)
	if room.Phase != domain.PhasePlaying || room.CurrentQ != 1 || room.Status != domain.StatusInProgress {
		t.Fatalf("unexpected started room %+v", room)
	}

	status, _, data = env.do(t, http.MethodPost, "/rooms/join", joinRequest{Code: "12345", Nickname: "alice", Avatar: "cat.png"})
	if status != http.StatusOK {
		t.Fatalf("join: expected 200, got %d", status)
	}
	var joined joinResponse
	_ = json.Unmarshal(data, &joined)
	if joined.Player.Nickname != "alice" || joined.Room.ID != room.ID {
		t.Fatalf("unexpected join response %+v", joined)
	}

	// A stale position guard makes the repeated click a no-op.
	at := domain.Position{Level: 1, Question: 1}
	_, _, _ = env.do(t, http.MethodPost, "/rooms/"+room.ID+"/actions", actionRequest{Action: "next", At: &at})
	_, _, data = env.do(t, http.MethodPost, "/rooms/"+room.ID+"/actions", actionRequest{Action: "next", At: &at})
	_ = json.Unmarshal(data, &room)
	if room.CurrentQ != 2 {
		t.Fatalf("expected a single advance to question 2, got %d", room.CurrentQ)
	}

	if status, _, _ := env.do(t, http.MethodPost, "/rooms/"+room.ID+"/actions", actionRequest{Action: "dance"}); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", status)
	}

	status, _, data = env.do(t, http.MethodGet, "/rooms?adminId=admin-1", nil)
	var summaries []domain.RoomSummary
	_ = json.Unmarshal(data, &summaries)
	if status != http.StatusOK || len(summaries) != 1 || summaries[0].PlayerCount != 1 {
		t.Fatalf("unexpected room list %d %+v", status, summaries)
	}

	status, _, data = env.do(t, http.MethodGet, "/rooms/"+room.ID+"/standings", nil)
	var standings []domain.Standing
	_ = json.Unmarshal(data, &standings)
	if status != http.StatusOK || len(standings) != 1 || standings[0].Rank != 1 {
		t.Fatalf("unexpected standings %d %+v", status, standings)
	}

	status, _, data = env.do(t, http.MethodGet, "/users/alice", nil)
	var profile domain.UserProfile
	_ = json.Unmarshal(data, &profile)
	if status != http.StatusOK || profile.Level != 1 || profile.Avatar != "cat.png" {
		t.Fatalf("unexpected profile %d %+v", status, profile)
	}

	if status, _, _ := env.do(t, http.MethodDelete, "/rooms/"+room.ID, nil); status != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", status)
	}
	if status, resp, _ := env.do(t, http.MethodGet, "/rooms/"+room.ID, nil); status != http.StatusNotFound || !resp.Error {
		t.Fatalf("expected 404 error envelope after delete, got %d %+v", status, resp)
	}
}

func TestQuestionCRUDOverREST(t *testing.T) {
	env := newTestEnv(t)

	q := domain.Question{Level: 1, Text: "Fourth?", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 2}
	status, _, data := env.do(t, http.MethodPost, "/questions", q)
	if status != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", status)
	}
	var saved domain.Question
	_ = json.Unmarshal(data, &saved)
	if saved.Order != 4 || saved.ID == "" {
		t.Fatalf("expected appended question, got %+v", saved)
	}

	bad := domain.Question{Level: 1, Text: "Too few?", Options: []string{"a"}}
	if status, _, _ := env.do(t, http.MethodPost, "/questions", bad); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid question, got %d", status)
	}

	saved.Text = "Reworded?"
	if status, _, _ := env.do(t, http.MethodPut, "/questions/"+saved.ID, saved); status != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", status)
	}
	status, _, data = env.do(t, http.MethodGet, "/questions/levels/1/4", nil)
	var got domain.Question
	_ = json.Unmarshal(data, &got)
	if status != http.StatusOK || got.Text != "Reworded?" {
		t.Fatalf("unexpected question %d %+v", status, got)
	}

	if status, _, _ := env.do(t, http.MethodDelete, "/questions/q1", nil); status != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", status)
	}
	status, _, data = env.do(t, http.MethodGet, "/questions", nil)
	var list []domain.Question
	_ = json.Unmarshal(data, &list)
	if status != http.StatusOK || len(list) != 4 || list[0].ID != "q2" || list[0].Order != 1 {
		t.Fatalf("expected dense orders after delete, got %+v", list)
	}

	status, _, data = env.do(t, http.MethodPost, "/questions/import", importRequest{Questions: []domain.Question{
		{Level: 3, Text: "Imported?", Options: []string{"a", "b", "c", "d"}},
	}})
	var imported importResponse
	_ = json.Unmarshal(data, &imported)
	if status != http.StatusOK || imported.Imported != 1 {
		t.Fatalf("unexpected import %d %+v", status, imported)
	}

	if status, _, _ := env.do(t, http.MethodGet, "/questions/levels/x/1", nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad level, got %d", status)
	}
}

func TestQRCodeServesPNG(t *testing.T) {
	env := newTestEnv(t)
	room, err := env.rooms.CreateRoom(context.Background(), "12345", "admin-1")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	resp, err := http.Get(env.server.URL + "/rooms/" + room.ID + "/qr.png")
	if err != nil {
		t.Fatalf("get qr: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !bytes.HasPrefix(body, []byte("\x89PNG")) {
		t.Fatalf("expected png body")
	}
}

func TestEventsStreamRoomSnapshots(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room, err := env.rooms.CreateRoom(ctx, "12345", "admin-1")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(reqCtx, http.MethodGet, env.server.URL+"/rooms/"+room.ID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}

	events := make(chan string, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "event: ") {
				events <- strings.TrimPrefix(line, "event: ")
			}
		}
	}()

	waitEvent(t, events, "room")
	if _, err := env.rooms.Apply(ctx, room.ID, app.Command{Action: app.ActionStart}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitEvent(t, events, "room")
	if _, err := env.rooms.Apply(ctx, room.ID, app.Command{Action: app.ActionDelete}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	waitEvent(t, events, "deleted")
}

func waitEvent(t *testing.T, events <-chan string, want string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("stream closed waiting for %s", want)
			}
			if ev == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func sampleQuestions() []domain.Question {
	opts := []string{"a", "b", "c", "d"}
	return []domain.Question{
		{ID: "q1", Level: 1, Order: 1, Text: "What is 2 + 2?", Options: []string{"3", "4", "5", "6"}, CorrectIndex: 1},
		{ID: "q2", Level: 1, Order: 2, Text: "Second?", Options: opts, CorrectIndex: 0},
		{ID: "q3", Level: 1, Order: 3, Text: "Third?", Options: opts, CorrectIndex: 3},
		{ID: "q4", Level: 2, Order: 1, Text: "Level two?", Options: opts, CorrectIndex: 2},
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrDuplicateCode, http.StatusConflict},
		{domain.ErrInvalidRoomCode, http.StatusBadRequest},
		{&domain.ValidationError{Field: "x", Reason: "y"}, http.StatusBadRequest},
		{domain.ErrRoomNotFound, http.StatusNotFound},
		{domain.Transient("get room", io.ErrUnexpectedEOF), http.StatusServiceUnavailable},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v): expected %d, got %d", tc.err, tc.want, got)
		}
	}
}
