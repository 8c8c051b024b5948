package suggestions

import (
	"encoding/json"
	"errors"
	"time"
)

// Trigger names why a regeneration was requested.
type Trigger string

const (
	TriggerFileUpload    Trigger = "FILE_UPLOAD"
	TriggerManual        Trigger = "MANUAL"
	TriggerBatchUpload   Trigger = "BATCH_UPLOAD"
	TriggerNewRecord     Trigger = "NEW_RECORD"
	TriggerProfileUpdate Trigger = "PROFILE_UPDATE"
)

func (t Trigger) Valid() bool {
	switch t {
	case TriggerFileUpload, TriggerManual, TriggerBatchUpload, TriggerNewRecord, TriggerProfileUpdate:
		return true
	}
	return false
}

var (
	ErrProfileNotFound    = errors.New("suggestions: profile not found")
	ErrSuggestionNotFound = errors.New("suggestions: suggestion not found")
)

// Suggestion is a persisted row. Regeneration replaces rows with IsDismissed=false only.
type Suggestion struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Title           string     `json:"title"`
	Reason          string     `json:"reason"`
	ActionType      string     `json:"action_type"`
	UrgencyLevel    string     `json:"urgency_level"`
	Category        string     `json:"category"`
	ValidityEndDate *time.Time `json:"validity_end_date,omitempty"`
	SourceFamilyID  *string    `json:"source_family_id,omitempty"`
	IsDismissed     bool       `json:"is_dismissed"`
	CreatedAt       time.Time  `json:"created_at"`
}

// NewSuggestion is a generated suggestion before it is stored.
type NewSuggestion struct {
	Title           string
	Reason          string
	ActionType      string
	UrgencyLevel    string
	Category        string
	ValidityEndDate *time.Time
	SourceFamilyID  *string
}

type Profile struct {
	UserID             string          `json:"-"`
	FullName           string          `json:"full_name,omitempty"`
	BirthDate          string          `json:"birth_date,omitempty"`
	Sex                string          `json:"sex,omitempty"`
	BloodType          string          `json:"blood_type,omitempty"`
	HeightCM           *float64        `json:"height_cm,omitempty"`
	WeightKG           *float64        `json:"weight_kg,omitempty"`
	Allergies          []string        `json:"allergies"`
	ChronicConditions  []string        `json:"chronic_conditions"`
	CurrentMedications []string        `json:"current_medications"`
	Lifestyle          json.RawMessage `json:"lifestyle,omitempty"`
}

// FamilyProfile is the reduced projection of a relative's profile shared with the model.
type FamilyProfile struct {
	BirthDate         string   `json:"birth_date,omitempty"`
	Sex               string   `json:"sex,omitempty"`
	BloodType         string   `json:"blood_type,omitempty"`
	ChronicConditions []string `json:"chronic_conditions"`
	Allergies         []string `json:"allergies"`
}

// RecordSummary is a health record without file contents.
type RecordSummary struct {
	EventDate      string          `json:"event_date,omitempty"`
	Specialty      string          `json:"specialty,omitempty"`
	RecordType     string          `json:"record_type"`
	Title          string          `json:"title"`
	Interpretation json.RawMessage `json:"interpretation,omitempty"`
}

type FamilyLink struct {
	MemberUserID string
	Role         string
}

// FamilyContextEntry exists only inside the model packet.
type FamilyContextEntry struct {
	MemberID string          `json:"member_id"`
	Role     string          `json:"role"`
	Profile  *FamilyProfile  `json:"profile"`
	Records  []RecordSummary `json:"records"`
}

// Packet is the context document sent to the model.
type Packet struct {
	MyProfile *Profile             `json:"myProfile"`
	MyRecords []RecordSummary      `json:"myRecords"`
	MyFamily  []FamilyContextEntry `json:"myFamily"`
}

// Result summarizes one regeneration.
type Result struct {
	UserID  string  `json:"user_id"`
	Trigger Trigger `json:"trigger"`
	Count   int     `json:"suggestions_count"`
	Dropped int     `json:"dropped_count"`
}
