package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

type questionHandler struct {
	questions *app.QuestionService
	log       *slog.Logger
}

type importRequest struct {
	Questions []domain.Question `json:"questions"`
}

type importResponse struct {
	Imported int `json:"imported"`
}

func (h *questionHandler) list(w http.ResponseWriter, r *http.Request) {
	questions, err := h.questions.List(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, questions, "")
}

func (h *questionHandler) get(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(chi.URLParam(r, "level"))
	if err != nil {
		writeError(w, h.log, &domain.ValidationError{Field: "level", Reason: "not a number"})
		return
	}
	order, err := strconv.Atoi(chi.URLParam(r, "order"))
	if err != nil {
		writeError(w, h.log, &domain.ValidationError{Field: "order", Reason: "not a number"})
		return
	}
	q, err := h.questions.Get(r.Context(), level, order)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, q, "")
}

func (h *questionHandler) create(w http.ResponseWriter, r *http.Request) {
	var q domain.Question
	if err := decodeJSON(r, &q); err != nil {
		writeError(w, h.log, err)
		return
	}
	saved, err := h.questions.Add(r.Context(), q)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved, "question created")
}

func (h *questionHandler) update(w http.ResponseWriter, r *http.Request) {
	var q domain.Question
	if err := decodeJSON(r, &q); err != nil {
		writeError(w, h.log, err)
		return
	}
	q.ID = chi.URLParam(r, "questionID")
	saved, err := h.questions.Update(r.Context(), q)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, saved, "question updated")
}

func (h *questionHandler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.questions.Delete(r.Context(), chi.URLParam(r, "questionID")); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, nil, "question deleted")
}

func (h *questionHandler) importAll(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	n, err := h.questions.Import(r.Context(), req.Questions)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Imported: n}, "")
}
