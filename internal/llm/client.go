// Package llm defines the provider-neutral completion contract used by the analysis and
// suggestions pipelines, plus Bedrock and Gemini implementations.
package llm

import (
	"context"
	"errors"

	"github.com/wolfman30/medrecord-ai/internal/jsonextract"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// StopReasonMaxTokens is the normalized stop reason for output cut off by the token budget.
const StopReasonMaxTokens = "max_tokens"

var (
	// ErrEmptyResponse is returned when the provider answered without any text content.
	ErrEmptyResponse = errors.New("llm: response contained no text")
	// ErrTruncated is returned when the model ran out of output tokens before finishing.
	ErrTruncated = errors.New("model output truncated at max_tokens")
)

// Message is one conversational turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Document is an inline document submitted natively to a document-capable model.
type Document struct {
	MediaType string
	Base64    string
	// Size is the decoded byte length.
	Size int
}

type Usage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type Request struct {
	Model    string
	System   []string
	Messages []Message
	// Document, when set, is attached to the last user message ahead of its text.
	Document    *Document
	MaxTokens   int32
	Temperature float32
}

type Response struct {
	Text       string
	Usage      Usage
	StopReason string
}

// Truncated reports whether the model stopped because it ran out of output tokens.
func (r Response) Truncated() bool {
	return r.StopReason == StopReasonMaxTokens
}

// IsTruncated reports whether err comes from output cut off before completion: a
// max_tokens stop, or JSON that ends before its value is closed.
func IsTruncated(err error) bool {
	return errors.Is(err, ErrTruncated) || jsonextract.IsTruncated(err)
}

type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req Request) (Response, error)

func (f ClientFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
