// Package records persists analyzed health records and kicks off suggestion regeneration.
package records

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/medrecord-ai/internal/analysis"
	"github.com/wolfman30/medrecord-ai/internal/apperr"
)

var ErrRecordNotFound = errors.New("records: record not found")

// HealthRecord is one stored document with its analysis.
type HealthRecord struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	RecordType     string          `json:"record_type"`
	Specialty      string          `json:"specialty,omitempty"`
	EventDate      string          `json:"event_date,omitempty"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	FilePath       string          `json:"file_path,omitempty"`
	Interpretation json.RawMessage `json:"interpretation,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// CreateRequest is a StructuredAnalysis plus the stored object it came from.
type CreateRequest struct {
	UserID         string                   `json:"-"`
	FilePath       string                   `json:"file_path,omitempty"`
	RecordType     analysis.RecordType      `json:"record_type"`
	Specialty      string                   `json:"specialty,omitempty"`
	EventDate      string                   `json:"event_date,omitempty"`
	Title          string                   `json:"title"`
	Description    string                   `json:"description,omitempty"`
	Interpretation *analysis.Interpretation `json:"interpretation,omitempty"`
}

// Validate normalizes the request in place.
func (r *CreateRequest) Validate() error {
	r.UserID = strings.TrimSpace(r.UserID)
	r.Title = strings.TrimSpace(r.Title)
	r.EventDate = strings.TrimSpace(r.EventDate)
	if r.UserID == "" {
		return apperr.Unauthorized("records", errors.New("user is required"))
	}
	if r.RecordType == "" || !r.RecordType.Known() {
		r.RecordType = analysis.RecordTypeOther
	}
	if r.Title == "" {
		return apperr.Validation("records", "title is required")
	}
	if r.EventDate != "" {
		if _, err := time.Parse("2006-01-02", r.EventDate); err != nil {
			return apperr.Validation("records", "event_date must be YYYY-MM-DD, got %q", r.EventDate)
		}
	}
	return nil
}

func (r *CreateRequest) interpretationJSON() (json.RawMessage, error) {
	if r.Interpretation == nil {
		return nil, nil
	}
	return json.Marshal(r.Interpretation)
}
