package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/medrecord-ai/cmd/mainconfig"
	"github.com/wolfman30/medrecord-ai/internal/analysis"
	"github.com/wolfman30/medrecord-ai/internal/app/bootstrap"
	"github.com/wolfman30/medrecord-ai/internal/apperr"
	appconfig "github.com/wolfman30/medrecord-ai/internal/config"
	"github.com/wolfman30/medrecord-ai/internal/observability/metrics"
	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

func main() {
	ctx := context.Background()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).Component("analyze-lambda")

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		panic(err)
	}
	provider, err := bootstrap.BuildLLM(ctx, cfg, awsCfg, logger)
	if err != nil {
		panic(err)
	}
	service, err := bootstrap.BuildAnalysisService(cfg, bootstrap.Deps{
		AWS:     awsCfg,
		LLM:     provider,
		Metrics: metrics.NewPipelineMetrics(prometheus.NewRegistry()),
		Logger:  logger,
	})
	if err != nil {
		panic(err)
	}

	lambda.Start(func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handle(ctx, service, logger, evt)
	})
}

func handle(ctx context.Context, analyzer analysis.Analyzer, logger *logging.Logger, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	if path == "/health" || path == "/_health" {
		return jsonResponse(http.StatusOK, map[string]string{"status": "ok"}), nil
	}
	if method == http.MethodOptions {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusNoContent}, nil
	}
	if method != http.MethodPost {
		return errorResponse(apperr.Validation("analyze", "method %s not allowed", method), http.StatusMethodNotAllowed), nil
	}

	body, err := decodeBody(evt)
	if err != nil {
		return errorResponse(apperr.Validation("analyze", "invalid base64 body"), 0), nil
	}
	req, err := analysis.DecodeRequest(bytes.NewReader(body))
	if err != nil {
		return errorResponse(err, 0), nil
	}

	result, err := analyzer.Analyze(ctx, req)
	if err != nil {
		logger.Warn("analysis request failed", "request_id", evt.RequestContext.RequestID, "error", err)
		return errorResponse(err, 0), nil
	}
	return jsonResponse(http.StatusOK, result), nil
}

// errorResponse renders err the way the HTTP API does. status overrides the kind's code when set.
func errorResponse(err error, status int) events.APIGatewayV2HTTPResponse {
	if status == 0 {
		status = apperr.HTTPStatus(apperr.KindOf(err))
	}
	return jsonResponse(status, apperr.BodyFor(err))
}

func jsonResponse(status int, payload any) events.APIGatewayV2HTTPResponse {
	data, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		data = []byte(`{"error":"internal"}`)
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Body:       string(data),
		Headers:    map[string]string{"content-type": "application/json"},
	}
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	return base64.StdEncoding.DecodeString(evt.Body)
}
