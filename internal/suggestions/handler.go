package suggestions

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/medrecord-ai/internal/apperr"
	"github.com/wolfman30/medrecord-ai/internal/session"
	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

const maxRequestBytes = 64 << 10

// GenerateRequest is the trigger body: {"type": "...", "user_id": "..."}.
type GenerateRequest struct {
	Trigger Trigger `json:"type"`
	UserID  string  `json:"user_id"`
}

type GenerateResponse struct {
	Success          bool `json:"success"`
	SuggestionsCount int  `json:"suggestions_count"`
}

// Handler serves the suggestions endpoints.
type Handler struct {
	regen  Regenerator
	store  Store
	logger *logging.Logger
}

func NewHandler(regen Regenerator, store Store, logger *logging.Logger) *Handler {
	if regen == nil || store == nil {
		panic("suggestions: regenerator and store are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{regen: regen, store: store, logger: logger}
}

// Generate regenerates synchronously. An authenticated caller may only target itself.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			apperr.Write(w, apperr.Validation("suggestions", "request body is required"))
			return
		}
		apperr.Write(w, apperr.Validation("suggestions", "invalid request body: %v", err))
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	if caller := session.UserID(r.Context()); caller != "" {
		if req.UserID == "" {
			req.UserID = caller
		} else if req.UserID != caller {
			apperr.Write(w, apperr.Unauthorized("suggestions", errors.New("user_id does not match the session")))
			return
		}
	}

	result, err := h.regen.Regenerate(r.Context(), req.UserID, req.Trigger)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, GenerateResponse{Success: true, SuggestionsCount: result.Count})
}

// List returns the caller's active suggestions, most urgent first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := session.UserID(r.Context())
	if userID == "" {
		apperr.Write(w, apperr.Unauthorized("suggestions", session.ErrMissingToken))
		return
	}
	items, err := h.store.ListActive(r.Context(), userID)
	if err != nil {
		h.logger.Error("list suggestions failed", "user_id", userID, "error", err)
		apperr.Write(w, apperr.Persistence("list suggestions", err))
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]any{"suggestions": items})
}

// Dismiss marks one suggestion dismissed so regeneration keeps it.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	userID := session.UserID(r.Context())
	if userID == "" {
		apperr.Write(w, apperr.Unauthorized("suggestions", session.ErrMissingToken))
		return
	}
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		apperr.Write(w, apperr.Validation("suggestions", "suggestion id is required"))
		return
	}

	err := h.store.Dismiss(r.Context(), userID, id)
	switch {
	case errors.Is(err, ErrSuggestionNotFound):
		apperr.Write(w, apperr.NotFound("dismiss", err))
	case err != nil:
		h.logger.Error("dismiss suggestion failed", "user_id", userID, "suggestion_id", id, "error", err)
		apperr.Write(w, apperr.Persistence("dismiss", err))
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
