package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/medrecord-ai/internal/jsonextract"
)

func TestIsTruncated(t *testing.T) {
	var v map[string]any
	cutOff := jsonextract.Extract(`{"biomarkers":[{"name":"Hemoglobina"`, jsonextract.Object, &v)
	malformed := jsonextract.Extract(`{"biomarkers":[}`, jsonextract.Object, &v)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"max tokens", fmt.Errorf("%w (max_tokens=10)", ErrTruncated), true},
		{"unclosed json", fmt.Errorf("sanitize: %w", cutOff), true},
		{"mismatched json", malformed, false},
		{"provider error", errors.New("ThrottlingException"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTruncated(tt.err))
		})
	}
}
