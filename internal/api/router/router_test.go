package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medrecord-ai/internal/analysis"
	"github.com/wolfman30/medrecord-ai/internal/records"
	"github.com/wolfman30/medrecord-ai/internal/session"
	"github.com/wolfman30/medrecord-ai/internal/suggestions"
)

type analyzerFunc func(ctx context.Context, req analysis.Request) (analysis.StructuredAnalysis, error)

func (f analyzerFunc) Analyze(ctx context.Context, req analysis.Request) (analysis.StructuredAnalysis, error) {
	return f(ctx, req)
}

type regenFunc func(ctx context.Context, userID string, trigger suggestions.Trigger) (suggestions.Result, error)

func (f regenFunc) Regenerate(ctx context.Context, userID string, trigger suggestions.Trigger) (suggestions.Result, error) {
	return f(ctx, userID, trigger)
}

// tokenVerifier accepts "token-<user>" bearer tokens.
type tokenVerifier struct{}

func (tokenVerifier) Verify(_ context.Context, token string) (session.Identity, error) {
	user, ok := strings.CutPrefix(token, "token-")
	if !ok {
		return session.Identity{}, errors.New("bad token")
	}
	return session.Identity{UserID: user, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []suggestions.Job
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job suggestions.Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
}

type testEnv struct {
	handler    http.Handler
	store      *suggestions.MemoryStore
	dispatcher *recordingDispatcher
	regenUsers []string
}

func newTestRouter(t *testing.T, health ...HealthCheck) *testEnv {
	t.Helper()
	env := &testEnv{store: suggestions.NewMemoryStore(), dispatcher: &recordingDispatcher{}}

	analyzer := analyzerFunc(func(ctx context.Context, req analysis.Request) (analysis.StructuredAnalysis, error) {
		return analysis.StructuredAnalysis{RecordType: analysis.RecordTypeLabResult, Title: "Hemograma"}, nil
	})
	regen := regenFunc(func(ctx context.Context, userID string, trigger suggestions.Trigger) (suggestions.Result, error) {
		env.regenUsers = append(env.regenUsers, userID)
		return suggestions.Result{UserID: userID, Trigger: trigger, Count: 3}, nil
	})

	env.handler = New(&Config{
		AnalysisHandler:    analysis.NewHandler(analyzer, nil),
		RecordsHandler:     records.NewHandler(records.NewInMemoryRepository(), env.dispatcher, nil),
		SuggestionsHandler: suggestions.NewHandler(regen, env.store, nil),
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
		SessionVerifier: tokenVerifier{},
		Health:          health,
	})
	return env
}

func (e *testEnv) do(method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthEndpoint(t *testing.T) {
	env := newTestRouter(t)

	rec := env.do(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestRouterHealthReportsFailingDependency(t *testing.T) {
	env := newTestRouter(t,
		HealthCheck{Name: "postgres", Check: func(context.Context) error { return nil }},
		HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	)

	rec := env.do(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "unavailable"}, resp.Dependencies)
}

func TestRouterMetricsIsPublic(t *testing.T) {
	env := newTestRouter(t)
	rec := env.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}

func TestRouterRequiresSessionOnV1(t *testing.T) {
	env := newTestRouter(t)

	paths := []struct{ method, path string }{
		{http.MethodPost, "/v1/analysis"},
		{http.MethodGet, "/v1/records"},
		{http.MethodGet, "/v1/suggestions"},
		{http.MethodPost, "/v1/suggestions/generate"},
	}
	for _, p := range paths {
		rec := env.do(p.method, p.path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", p.method, p.path)

		rec = env.do(p.method, p.path, "", "forged")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s with bad token", p.method, p.path)
	}
}

func TestRouterAnalysisEndpoint(t *testing.T) {
	env := newTestRouter(t)

	rec := env.do(http.MethodPost, "/v1/analysis", `{"type":"text","text_content":"Hb 11.2 g/dL"}`, "token-user-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hemograma")
}

func TestRouterRecordsFlowDispatchesSuggestions(t *testing.T) {
	env := newTestRouter(t)

	rec := env.do(http.MethodPost, "/v1/records",
		`{"file_path":"user-1/a.pdf","record_type":"lab_result","event_date":"2024-05-14","title":"Hemograma"}`,
		"token-user-1")
	require.Equal(t, http.StatusCreated, rec.Code)

	var created records.HealthRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = env.do(http.MethodGet, "/v1/records/"+created.ID, "", "token-user-1")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/v1/records/"+created.ID, "", "token-user-2")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.dispatcher.mu.Lock()
	defer env.dispatcher.mu.Unlock()
	require.Len(t, env.dispatcher.jobs, 1)
	assert.Equal(t, suggestions.TriggerNewRecord, env.dispatcher.jobs[0].Trigger)
	assert.Equal(t, "user-1", env.dispatcher.jobs[0].UserID)
}

func TestRouterSuggestionsRoutes(t *testing.T) {
	env := newTestRouter(t)
	env.store.Seed(suggestions.Suggestion{ID: "s-1", UserID: "user-1", Title: "Perfil lipídico", UrgencyLevel: "medium"})

	rec := env.do(http.MethodPost, "/v1/suggestions/generate", `{"type":"MANUAL"}`, "token-user-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"suggestions_count":3}`, rec.Body.String())
	assert.Equal(t, []string{"user-1"}, env.regenUsers)

	rec = env.do(http.MethodGet, "/v1/suggestions", "", "token-user-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Perfil lipídico")

	rec = env.do(http.MethodPost, "/v1/suggestions/s-1/dismiss", "", "token-user-1")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodPost, "/v1/suggestions/s-1/dismiss", "", "token-user-2")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
