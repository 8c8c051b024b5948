package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestRequestLoggerRecordsStatusAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, "info")
	handler := chimw.RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	})))

	req := httptest.NewRequest(http.MethodPost, "/v1/records", nil)
	req.Header.Set("X-Request-Id", "req-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := decodeLogLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected one log line, got %d", len(entries))
	}
	entry := entries[0]
	if entry["request_id"] != "req-123" {
		t.Fatalf("expected request id from chi, got %v", entry["request_id"])
	}
	if entry["status"] != float64(http.StatusCreated) {
		t.Fatalf("expected status 201, got %v", entry["status"])
	}
	if entry["bytes"] != float64(2) {
		t.Fatalf("expected 2 bytes written, got %v", entry["bytes"])
	}
}

func TestRequestLoggerUsesErrorLevelForServerErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, "info")
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/analysis", nil))

	entries := decodeLogLines(t, &buf)
	if len(entries) != 1 || entries[0]["level"] != "ERROR" {
		t.Fatalf("expected one error entry, got %v", entries)
	}
	if id, _ := entries[0]["request_id"].(string); id == "" {
		t.Fatalf("expected generated request id")
	}
}
