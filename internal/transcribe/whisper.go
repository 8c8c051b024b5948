// Package transcribe turns recorded consultations and voice notes into text.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultVocabularyPrompt biases recognition toward clinical and regional Spanish terminology.
const DefaultVocabularyPrompt = "Nota médica en español. Términos frecuentes: hemoglobina, hematocrito, " +
	"glucosa en ayunas, HbA1c, colesterol LDL, HDL, triglicéridos, TSH, creatinina, tensión arterial, " +
	"mg/dL, g/dL, mmol/L, analítica, ecografía, resonancia, médico de cabecera, ambulatorio, " +
	"paracetamol, ibuprofeno, omeprazol, metformina, enalapril, atorvastatina."

var ErrEmptyAudio = errors.New("transcribe: audio is empty")

type Config struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Prompt   string
	Timeout  time.Duration
}

type audioAPI interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// WhisperClient talks to any Whisper-compatible transcription endpoint.
type WhisperClient struct {
	api      audioAPI
	model    string
	language string
	prompt   string
}

func NewWhisperClient(cfg Config) (*WhisperClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("transcribe: api key required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return newWhisperClient(openai.NewClientWithConfig(clientCfg), cfg), nil
}

func newWhisperClient(api audioAPI, cfg Config) *WhisperClient {
	c := &WhisperClient{
		api:      api,
		model:    strings.TrimSpace(cfg.Model),
		language: strings.TrimSpace(cfg.Language),
		prompt:   cfg.Prompt,
	}
	if c.model == "" {
		c.model = openai.Whisper1
	}
	if c.language == "" {
		c.language = "es"
	}
	if strings.TrimSpace(c.prompt) == "" {
		c.prompt = DefaultVocabularyPrompt
	}
	return c
}

// Transcribe uploads audio as multipart form data and returns the transcript. The filename's
// extension tells the service which container format to expect.
func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	filename = path.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == "/" {
		filename = "audio.webm"
	}

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
		Language: c.language,
		Prompt:   c.prompt,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errors.New("transcribe: service returned an empty transcript")
	}
	return text, nil
}
