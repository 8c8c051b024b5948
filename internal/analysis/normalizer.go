package analysis

import (
	"context"
	"encoding/base64"
	"errors"
	"path"
	"strings"

	"github.com/wolfman30/medrecord-ai/internal/apperr"
	"github.com/wolfman30/medrecord-ai/internal/llm"
	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

// DefaultChunkSize is the number of raw bytes encoded per base64 step. It is a multiple of
// three so chunk outputs concatenate without padding in between.
const DefaultChunkSize = 32 * 1024

const mediaTypePDF = "application/pdf"

// Downloader fetches an uploaded object by its storage path.
type Downloader interface {
	Download(ctx context.Context, path string) ([]byte, error)
}

// Transcriber converts audio bytes into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Input is the normalized form handed to the invoker: either Text or Document is set.
type Input struct {
	Kind     Kind
	Text     string
	Document *llm.Document
}

// Validate checks the field required by the request kind.
func (r Request) Validate() error {
	switch r.Kind {
	case KindPDF, KindAudio:
		if strings.TrimSpace(r.FilePath) == "" {
			return apperr.Validation("analysis", "file_path is required for type %q", r.Kind)
		}
	case KindText:
		if strings.TrimSpace(r.TextContent) == "" {
			return apperr.Validation("analysis", "text_content is required for type %q", r.Kind)
		}
	case "":
		return apperr.Validation("analysis", "type is required")
	default:
		return apperr.Validation("analysis", "unsupported type %q", r.Kind)
	}
	return nil
}

type Normalizer struct {
	storage     Downloader
	transcriber Transcriber
	chunkSize   int
	logger      *logging.Logger
}

type NormalizerOption func(*Normalizer)

// WithChunkSize overrides the base64 chunk size. Values are rounded down to a multiple of three.
func WithChunkSize(n int) NormalizerOption {
	return func(nz *Normalizer) {
		if n >= 3 {
			nz.chunkSize = n - n%3
		}
	}
}

// NewNormalizer builds a Normalizer. transcriber may be nil when audio is not supported.
func NewNormalizer(storage Downloader, transcriber Transcriber, logger *logging.Logger, opts ...NormalizerOption) *Normalizer {
	if storage == nil {
		panic("analysis: storage downloader cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	nz := &Normalizer{
		storage:     storage,
		transcriber: transcriber,
		chunkSize:   DefaultChunkSize,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(nz)
	}
	return nz
}

// Normalize validates req and produces the model input. Validation failures return before
// any download or transcription call.
func (n *Normalizer) Normalize(ctx context.Context, req Request) (Input, error) {
	if err := req.Validate(); err != nil {
		return Input{}, err
	}

	switch req.Kind {
	case KindText:
		return Input{Kind: KindText, Text: req.TextContent}, nil

	case KindAudio:
		if n.transcriber == nil {
			return Input{}, apperr.Validation("analysis", "audio analysis is not configured")
		}
		audio, err := n.storage.Download(ctx, req.FilePath)
		if err != nil {
			return Input{}, apperr.Collaborator("download", err)
		}
		transcript, err := n.transcriber.Transcribe(ctx, audio, path.Base(req.FilePath))
		if err != nil {
			return Input{}, apperr.Collaborator("transcribe", err)
		}
		n.logger.Info("audio transcribed", "bytes", len(audio), "transcript_chars", len(transcript))
		return Input{Kind: KindAudio, Text: transcript}, nil

	case KindPDF:
		data, err := n.storage.Download(ctx, req.FilePath)
		if err != nil {
			return Input{}, apperr.Collaborator("download", err)
		}
		if len(data) == 0 {
			return Input{}, apperr.Collaborator("download", errors.New("document is empty"))
		}
		return Input{
			Kind: KindPDF,
			Document: &llm.Document{
				MediaType: mediaTypePDF,
				Base64:    EncodeBase64Chunked(data, n.chunkSize),
				Size:      len(data),
			},
		}, nil
	}
	return Input{}, apperr.Internal("analysis", errors.New("unreachable request kind"))
}

// EncodeBase64Chunked encodes data in bounded steps. The result is identical to encoding
// the whole slice at once as long as chunkSize is a multiple of three.
func EncodeBase64Chunked(data []byte, chunkSize int) string {
	if chunkSize < 3 {
		chunkSize = DefaultChunkSize
	}
	chunkSize -= chunkSize % 3

	var b strings.Builder
	b.Grow(base64.StdEncoding.EncodedLen(len(data)))
	buf := make([]byte, base64.StdEncoding.EncodedLen(chunkSize))
	for start := 0; start < len(data); start += chunkSize {
		end := min(start+chunkSize, len(data))
		chunk := data[start:end]
		n := base64.StdEncoding.EncodedLen(len(chunk))
		base64.StdEncoding.Encode(buf[:n], chunk)
		b.Write(buf[:n])
	}
	return b.String()
}
