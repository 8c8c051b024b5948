package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/wolfman30/medrecord-ai/internal/apperr"
	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

const maxRequestBytes = 1 << 20

// Analyzer is satisfied by *Service.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (StructuredAnalysis, error)
}

// Handler serves POST /v1/analysis.
type Handler struct {
	analyzer Analyzer
	logger   *logging.Logger
}

func NewHandler(analyzer Analyzer, logger *logging.Logger) *Handler {
	if analyzer == nil {
		panic("analysis: analyzer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{analyzer: analyzer, logger: logger}
}

func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeRequest(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		h.logger.Warn("invalid analysis request", "error", err)
		apperr.Write(w, err)
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), req)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, result)
}

// DecodeRequest parses an analysis request body. Shared by the HTTP handler and the Lambda.
func DecodeRequest(body io.Reader) (Request, error) {
	var req Request
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return Request{}, apperr.Validation("analysis", "request body is required")
		}
		return Request{}, apperr.Validation("analysis", "invalid request body: %v", err)
	}
	return req, nil
}
