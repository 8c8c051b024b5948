package llm

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiStopReason(t *testing.T) {
	assert.Equal(t, StopReasonMaxTokens, geminiStopReason(genai.FinishReasonMaxTokens))
	assert.Equal(t, "end_turn", geminiStopReason(genai.FinishReasonStop))
	assert.Equal(t, "", geminiStopReason(genai.FinishReasonUnspecified))
}

func TestGeminiParts_DecodesDocument(t *testing.T) {
	parts, err := geminiParts(Message{Role: RoleUser, Content: "analiza"}, &Document{MediaType: "application/pdf", Base64: "JVBERi0="})
	require.NoError(t, err)
	require.Len(t, parts, 2)

	blob, ok := parts[0].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "application/pdf", blob.MIMEType)
	assert.Equal(t, []byte("%PDF-"), blob.Data)
	assert.Equal(t, genai.Text("analiza"), parts[1])
}

func TestGeminiParts_RejectsBadBase64(t *testing.T) {
	_, err := geminiParts(Message{Role: RoleUser, Content: "x"}, &Document{Base64: "***"})
	require.Error(t, err)
}
