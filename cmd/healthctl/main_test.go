package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medrecord-ai/internal/analysis"
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

func execute(t *testing.T, f factories, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(f)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func unusedFactories(t *testing.T) factories {
	return factories{
		analyzer: func(context.Context) (analysis.Analyzer, func(), error) {
			t.Fatalf("analyzer factory must not be called")
			return nil, nil, nil
		},
		regenerator: func(context.Context) (suggestions.Regenerator, func(), error) {
			t.Fatalf("regenerator factory must not be called")
			return nil, nil, nil
		},
		uploader: func(context.Context) (documentUploader, error) {
			t.Fatalf("uploader factory must not be called")
			return nil, nil
		},
	}
}

type recordingUploader struct {
	path        string
	contentType string
	data        []byte
	err         error
}

func (u *recordingUploader) Upload(_ context.Context, path, contentType string, data []byte) error {
	u.path, u.contentType, u.data = path, contentType, data
	return u.err
}

func TestAnalyzeReadsStdin(t *testing.T) {
	var got analysis.Request
	closed := false
	f := unusedFactories(t)
	f.analyzer = func(context.Context) (analysis.Analyzer, func(), error) {
		return analyzerFunc(func(ctx context.Context, req analysis.Request) (analysis.StructuredAnalysis, error) {
			got = req
			return analysis.StructuredAnalysis{RecordType: analysis.RecordTypeLabResult, Title: "Glucosa"}, nil
		}), func() { closed = true }, nil
	}

	out, err := execute(t, f, "Glucosa 126 mg/dL", "analyze", "--type", "TEXT", "--text-file", "-")
	require.NoError(t, err)
	assert.Equal(t, analysis.KindText, got.Kind)
	assert.Equal(t, "Glucosa 126 mg/dL", got.TextContent)
	assert.True(t, closed)

	var result analysis.StructuredAnalysis
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "Glucosa", result.Title)
}

func TestAnalyzeValidatesBeforeBuilding(t *testing.T) {
	_, err := execute(t, unusedFactories(t), "", "analyze", "--type", "pdf")
	assert.ErrorContains(t, err, "file_path is required")
}

func TestSuggestRunsRegeneration(t *testing.T) {
	f := unusedFactories(t)
	f.regenerator = func(context.Context) (suggestions.Regenerator, func(), error) {
		return regenFunc(func(ctx context.Context, userID string, trigger suggestions.Trigger) (suggestions.Result, error) {
			return suggestions.Result{UserID: userID, Trigger: trigger, Count: 4}, nil
		}), func() {}, nil
	}

	out, err := execute(t, f, "", "suggest", "--user", "user-1", "--trigger", "profile_update")
	require.NoError(t, err)

	var result suggestions.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, suggestions.Result{UserID: "user-1", Trigger: suggestions.TriggerProfileUpdate, Count: 4}, result)
}

func TestSuggestRejectsUnknownTrigger(t *testing.T) {
	_, err := execute(t, unusedFactories(t), "", "suggest", "--user", "user-1", "--trigger", "NIGHTLY")
	assert.ErrorContains(t, err, "unknown trigger")
}

func TestSuggestPropagatesFactoryError(t *testing.T) {
	f := unusedFactories(t)
	f.regenerator = func(context.Context) (suggestions.Regenerator, func(), error) {
		return nil, nil, errors.New("DATABASE_URL is required for suggest")
	}
	_, err := execute(t, f, "", "suggest", "--user", "user-1")
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestUploadStdinDetectsContentType(t *testing.T) {
	up := &recordingUploader{}
	f := unusedFactories(t)
	f.uploader = func(context.Context) (documentUploader, error) { return up, nil }

	out, err := execute(t, f, "%PDF-1.7\n1 0 obj", "upload", "--file", "-", "--path", "user-1/analitica.pdf")
	require.NoError(t, err)
	assert.Equal(t, "user-1/analitica.pdf", up.path)
	assert.Equal(t, "application/pdf", up.contentType)
	assert.Equal(t, "%PDF-1.7\n1 0 obj", string(up.data))

	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "user-1/analitica.pdf", summary["file_path"])
	assert.EqualValues(t, len(up.data), summary["bytes"])
}

func TestUploadExplicitContentTypeAndErrors(t *testing.T) {
	up := &recordingUploader{err: errors.New("storage: put bucket/key: AccessDenied")}
	f := unusedFactories(t)
	f.uploader = func(context.Context) (documentUploader, error) { return up, nil }

	_, err := execute(t, f, "RIFF....WAVE", "upload", "--file", "-", "--path", "s3://otro/nota.wav", "--content-type", "audio/wav")
	assert.ErrorContains(t, err, "AccessDenied")
	assert.Equal(t, "audio/wav", up.contentType)
	assert.Equal(t, "s3://otro/nota.wav", up.path)
}

func TestUploadRejectsEmptyInput(t *testing.T) {
	_, err := execute(t, unusedFactories(t), "", "upload", "--file", "-", "--path", "user-1/vacio.pdf")
	assert.ErrorContains(t, err, "empty file")
}
