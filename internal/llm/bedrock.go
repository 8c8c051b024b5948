package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const anthropicBedrockVersion = "bedrock-2023-05-31"

type bedrockInvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient calls Anthropic models on Bedrock through InvokeModel so that PDFs can be
// sent as base64 document blocks without re-encoding.
type BedrockClient struct {
	api     bedrockInvokeModelAPI
	modelID string
}

func NewBedrockClient(api bedrockInvokeModelAPI, modelID string) *BedrockClient {
	if api == nil {
		panic("llm: bedrock runtime client cannot be nil")
	}
	return &BedrockClient{api: api, modelID: strings.TrimSpace(modelID)}
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicContent struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int32              `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
	Temperature      *float32           `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int32 `json:"input_tokens"`
		OutputTokens int32 `json:"output_tokens"`
	} `json:"usage"`
}

func (c *BedrockClient) Complete(ctx context.Context, req Request) (Response, error) {
	modelID := strings.TrimSpace(req.Model)
	if modelID == "" {
		modelID = c.modelID
	}
	if modelID == "" {
		return Response{}, errors.New("llm: bedrock model id is required")
	}

	body, err := buildAnthropicRequest(req)
	if err != nil {
		return Response{}, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("llm: bedrock request marshal: %w", err)
	}

	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return Response{}, fmt.Errorf("llm: bedrock invoke: %w", err)
	}
	if out == nil {
		return Response{}, errors.New("llm: bedrock response is nil")
	}

	var decoded anthropicResponse
	if err := json.Unmarshal(out.Body, &decoded); err != nil {
		return Response{}, fmt.Errorf("llm: bedrock response parse: %w", err)
	}

	var builder strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			builder.WriteString(block.Text)
		}
	}
	resp := Response{
		Text:       strings.TrimSpace(builder.String()),
		StopReason: decoded.StopReason,
		Usage: Usage{
			InputTokens:  decoded.Usage.InputTokens,
			OutputTokens: decoded.Usage.OutputTokens,
			TotalTokens:  decoded.Usage.InputTokens + decoded.Usage.OutputTokens,
		},
	}
	if resp.Text == "" && !resp.Truncated() {
		return resp, ErrEmptyResponse
	}
	return resp, nil
}

func buildAnthropicRequest(req Request) (anthropicRequest, error) {
	system := make([]string, 0, len(req.System))
	for _, block := range req.System {
		if strings.TrimSpace(block) != "" {
			system = append(system, block)
		}
	}

	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case RoleUser, RoleAssistant:
		default:
			return anthropicRequest{}, fmt.Errorf("llm: unsupported role %q", msg.Role)
		}
		messages = append(messages, anthropicMessage{
			Role:    msg.Role,
			Content: []anthropicContent{{Type: "text", Text: content}},
		})
	}

	if req.Document != nil {
		doc := anthropicContent{
			Type: "document",
			Source: &anthropicSource{
				Type:      "base64",
				MediaType: req.Document.MediaType,
				Data:      req.Document.Base64,
			},
		}
		last := len(messages) - 1
		if last < 0 || messages[last].Role != RoleUser {
			messages = append(messages, anthropicMessage{Role: RoleUser})
			last = len(messages) - 1
		}
		messages[last].Content = append([]anthropicContent{doc}, messages[last].Content...)
	}
	if len(messages) == 0 {
		return anthropicRequest{}, errors.New("llm: at least one message is required")
	}

	out := anthropicRequest{
		AnthropicVersion: anthropicBedrockVersion,
		MaxTokens:        req.MaxTokens,
		System:           strings.Join(system, "\n\n"),
		Messages:         messages,
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = 4096
	}
	// Negative temperature means "provider default".
	if req.Temperature >= 0 {
		t := req.Temperature
		out.Temperature = &t
	}
	return out, nil
}
