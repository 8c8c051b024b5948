package suggestions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medrecord-ai/internal/apperr"
	"github.com/wolfman30/medrecord-ai/internal/session"
)

func withUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(session.WithIdentity(r.Context(), session.Identity{UserID: userID}))
}

func TestHandler_Generate(t *testing.T) {
	regen := &recordingRegenerator{}
	h := NewHandler(regen, NewMemoryStore(), nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/suggestions/generate", strings.NewReader(`{"type":"NEW_RECORD","user_id":"user-1"}`))
	h.Generate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"suggestions_count":4}`, rec.Body.String())
	assert.Equal(t, []Job{{UserID: "user-1", Trigger: TriggerNewRecord}}, regen.jobs())
}

func TestHandler_GenerateUsesSessionUser(t *testing.T) {
	regen := &recordingRegenerator{}
	h := NewHandler(regen, NewMemoryStore(), nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/suggestions/generate", strings.NewReader(`{"type":"MANUAL"}`))
	h.Generate(rec, withUser(req, "user-7"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-7", regen.jobs()[0].UserID)
}

func TestHandler_GenerateRejectsOtherUser(t *testing.T) {
	regen := &recordingRegenerator{}
	h := NewHandler(regen, NewMemoryStore(), nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/suggestions/generate", strings.NewReader(`{"type":"MANUAL","user_id":"user-2"}`))
	h.Generate(rec, withUser(req, "user-1"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, regen.jobs())
}

func TestHandler_GenerateErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"bad json", `{"type":`, nil, http.StatusBadRequest, "validation"},
		{"validation", `{"type":"NIGHTLY","user_id":"u"}`, apperr.Validation("suggestions", "unknown trigger type"), http.StatusBadRequest, "validation"},
		{"llm", `{"type":"MANUAL","user_id":"u"}`, apperr.Collaborator("llm", errors.New("timeout")), http.StatusBadGateway, "collaborator"},
		{"db", `{"type":"MANUAL","user_id":"u"}`, apperr.Persistence("replace suggestions", errors.New("deadlock detected")), http.StatusInternalServerError, "persistence"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&recordingRegenerator{err: tt.err}, NewMemoryStore(), nil)
			rec := httptest.NewRecorder()
			h.Generate(rec, httptest.NewRequest(http.MethodPost, "/v1/suggestions/generate", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body apperr.Body
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantError, body.Error)
		})
	}
}

func TestHandler_ListAndDismiss(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(Suggestion{ID: "s-low", UserID: "user-1", Title: "Caminar", UrgencyLevel: "low"})
	store.Seed(Suggestion{ID: "s-high", UserID: "user-1", Title: "Control de tensión", UrgencyLevel: "high"})
	store.Seed(Suggestion{ID: "s-other", UserID: "user-2", Title: "Otra", UrgencyLevel: "critical"})
	h := NewHandler(&recordingRegenerator{}, store, nil)

	r := chi.NewRouter()
	r.Get("/v1/suggestions", h.List)
	r.Post("/v1/suggestions/{id}/dismiss", h.Dismiss)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/v1/suggestions", nil), "user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Suggestions []Suggestion `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Suggestions, 2)
	assert.Equal(t, "s-high", listed.Suggestions[0].ID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodPost, "/v1/suggestions/s-high/dismiss", nil), "user-1"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodPost, "/v1/suggestions/s-other/dismiss", nil), "user-1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	active, err := store.ListActive(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "s-low", active[0].ID)
}

func TestHandler_ListRequiresSession(t *testing.T) {
	h := NewHandler(&recordingRegenerator{}, NewMemoryStore(), nil)
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/v1/suggestions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
