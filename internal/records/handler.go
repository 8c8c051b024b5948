package records

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/medrecord-ai/internal/apperr"
	"github.com/wolfman30/medrecord-ai/internal/session"
	"github.com/wolfman30/medrecord-ai/internal/suggestions"
	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

const (
	maxRequestBytes = 1 << 20
	maxBatchSize    = 50
	defaultPageSize = 100
)

// Handler serves /v1/records.
type Handler struct {
	repo       Repository
	dispatcher suggestions.Dispatcher
	logger     *logging.Logger
}

func NewHandler(repo Repository, dispatcher suggestions.Dispatcher, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("records: repository cannot be nil")
	}
	if dispatcher == nil {
		dispatcher = suggestions.NoopDispatcher{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, dispatcher: dispatcher, logger: logger}
}

// Create stores one record and fires a NEW_RECORD regeneration without waiting for it.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := decode(w, r, &req); err != nil {
		apperr.Write(w, err)
		return
	}
	req.UserID = session.UserID(r.Context())

	rec, err := h.repo.Create(r.Context(), &req)
	if err != nil {
		h.writeRepoError(w, "create record", err)
		return
	}

	h.dispatcher.Dispatch(r.Context(), suggestions.Job{UserID: rec.UserID, Trigger: suggestions.TriggerNewRecord})
	h.logger.Info("health record created", "record_id", rec.ID, "user_id", rec.UserID, "record_type", rec.RecordType)
	apperr.WriteJSON(w, http.StatusCreated, rec)
}

// CreateBatch stores several records and fires a single BATCH_UPLOAD regeneration.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Records []CreateRequest `json:"records"`
	}
	if err := decode(w, r, &body); err != nil {
		apperr.Write(w, err)
		return
	}
	if len(body.Records) == 0 {
		apperr.Write(w, apperr.Validation("records", "records must not be empty"))
		return
	}
	if len(body.Records) > maxBatchSize {
		apperr.Write(w, apperr.Validation("records", "at most %d records per batch", maxBatchSize))
		return
	}

	userID := session.UserID(r.Context())
	for i := range body.Records {
		body.Records[i].UserID = userID
		if err := body.Records[i].Validate(); err != nil {
			apperr.Write(w, err)
			return
		}
	}

	created := make([]*HealthRecord, 0, len(body.Records))
	for i := range body.Records {
		rec, err := h.repo.Create(r.Context(), &body.Records[i])
		if err != nil {
			h.writeRepoError(w, "create record", err)
			return
		}
		created = append(created, rec)
	}

	h.dispatcher.Dispatch(r.Context(), suggestions.Job{UserID: userID, Trigger: suggestions.TriggerBatchUpload})
	h.logger.Info("health records created", "user_id", userID, "count", len(created))
	apperr.WriteJSON(w, http.StatusCreated, map[string]any{"records": created})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := session.UserID(r.Context())
	if userID == "" {
		apperr.Write(w, apperr.Unauthorized("records", session.ErrMissingToken))
		return
	}
	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			apperr.Write(w, apperr.Validation("records", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	list, err := h.repo.List(r.Context(), userID, limit)
	if err != nil {
		h.writeRepoError(w, "list records", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]any{"records": list})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := session.UserID(r.Context())
	if userID == "" {
		apperr.Write(w, apperr.Unauthorized("records", session.ErrMissingToken))
		return
	}
	rec, err := h.repo.GetByID(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeRepoError(w, "get record", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) writeRepoError(w http.ResponseWriter, op string, err error) {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		apperr.Write(w, err)
	case errors.Is(err, ErrRecordNotFound):
		apperr.Write(w, apperr.NotFound(op, err))
	default:
		h.logger.Error("records storage failed", "op", op, "error", err)
		apperr.Write(w, apperr.Persistence(op, err))
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("records", "request body is required")
		}
		return apperr.Validation("records", "invalid request body: %v", err)
	}
	return nil
}
