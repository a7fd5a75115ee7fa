package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/message"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/usecase"
)

type Handlers struct {
	createMessageUC  *usecase.CreateMessage
	listMessagesUC   *usecase.ListMessages
	searchMessagesUC *usecase.SearchMessages
	healthUC         *usecase.Health
	log              *slog.Logger
}

func NewHandlers(
	createMessageUC *usecase.CreateMessage,
	listMessagesUC *usecase.ListMessages,
	searchMessagesUC *usecase.SearchMessages,
	healthUC *usecase.Health,
	log *slog.Logger,
) *Handlers {
	return &Handlers{
		createMessageUC:  createMessageUC,
		listMessagesUC:   listMessagesUC,
		searchMessagesUC: searchMessagesUC,
		healthUC:         healthUC,
		log:              log,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	report, err := h.healthUC.Execute(r.Context())
	if err != nil {
		h.log.Error("health check failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "ERROR",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}

	// An empty body is a request without a message, not a malformed one.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	m, err := h.createMessageUC.Execute(r.Context(), usecase.CreateMessageParams{Text: req.Message})
	if err != nil {
		if errors.Is(err, message.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Message field is required"})
			return
		}
		h.log.Error("failed to save message", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to save message"})
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.listMessagesUC.Execute(r.Context(), parsePage(r))
	if err != nil {
		h.log.Error("failed to fetch messages", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to fetch messages"})
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handlers) SearchMessages(w http.ResponseWriter, r *http.Request) {
	res, err := h.searchMessagesUC.Execute(r.Context(), r.URL.Query().Get("text"), parsePage(r))
	if err != nil {
		if errors.Is(err, message.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Text query parameter is required"})
			return
		}
		h.log.Error("failed to search messages", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Failed to search messages",
			Details: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// parsePage reads ?page=, treating anything missing, malformed or below 1 as 1.
// Pages beyond message.MaxPage are clamped.
func parsePage(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		return 1
	}
	return message.ClampPage(page)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
