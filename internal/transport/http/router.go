package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

// ResultLister reads archived game results.
type ResultLister interface {
	Recent(ctx context.Context, limit int) ([]domain.GameResult, error)
}

// Deps is everything the HTTP surface talks to. Clock and Results are
// optional.
type Deps struct {
	Rooms     *app.RoomService
	Questions *app.QuestionService
	Store     app.RoomStore
	Bank      app.QuestionStore
	Clock     *app.HostClock
	Results   ResultLister
	Session   app.SessionConfig
	PublicURL string
	Logger    *slog.Logger
}

// NewRouter wires the admin REST API, the live feeds and the player socket.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	rooms := &roomHandler{rooms: d.Rooms, store: d.Store, clock: d.Clock, publicURL: d.PublicURL, log: d.Logger}
	questions := &questionHandler{questions: d.Questions, log: d.Logger}
	ws := NewWSHandler(d.Rooms, d.Store, d.Bank, d.Session, d.Logger)

	mux := chi.NewRouter()
	mux.Use(cors.AllowAll().Handler)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.Get("/ws", ws.ServeWS)

	mux.Route("/rooms", func(r chi.Router) {
		r.Get("/", rooms.list)
		r.Post("/", rooms.create)
		r.Post("/join", rooms.join)

		r.Get("/{roomID}", rooms.get)
		r.Delete("/{roomID}", rooms.remove)
		r.Post("/{roomID}/actions", rooms.action)
		r.Get("/{roomID}/players", rooms.players)
		r.Get("/{roomID}/standings", rooms.standings)
		r.Get("/{roomID}/events", rooms.events)
		r.Get("/{roomID}/qr.png", rooms.qr)
	})

	mux.Route("/questions", func(r chi.Router) {
		r.Get("/", questions.list)
		r.Post("/", questions.create)
		r.Post("/import", questions.importAll)
		r.Get("/levels/{level}/{order}", questions.get)
		r.Put("/{questionID}", questions.update)
		r.Delete("/{questionID}", questions.remove)
	})

	mux.Get("/users/{nickname}", func(w http.ResponseWriter, r *http.Request) {
		profile, err := d.Store.GetUserProfile(r.Context(), chi.URLParam(r, "nickname"))
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, profile, "")
	})

	if d.Results != nil {
		mux.Get("/results", func(w http.ResponseWriter, r *http.Request) {
			results, err := d.Results.Recent(r.Context(), 50)
			if err != nil {
				writeError(w, d.Logger, err)
				return
			}
			writeJSON(w, http.StatusOK, results, "")
		})
	}
	return mux
}
