package analysis

// Kind is the type of uploaded artifact.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindAudio Kind = "audio"
	KindText  Kind = "text"
)

// Request is the body of POST /v1/analysis.
type Request struct {
	Kind        Kind   `json:"type"`
	FilePath    string `json:"file_path,omitempty"`
	TextContent string `json:"text_content,omitempty"`
}

type RecordType string

const (
	RecordTypeLabResult        RecordType = "lab_result"
	RecordTypeImaging          RecordType = "imaging"
	RecordTypePrescription     RecordType = "prescription"
	RecordTypeConsultation     RecordType = "consultation"
	RecordTypeDischargeSummary RecordType = "discharge_summary"
	RecordTypeVaccination      RecordType = "vaccination"
	RecordTypeSurgeryReport    RecordType = "surgery_report"
	RecordTypePathology        RecordType = "pathology"
	RecordTypeAudioNote        RecordType = "audio_note"
	RecordTypeOther            RecordType = "other"
)

var recordTypes = map[RecordType]struct{}{
	RecordTypeLabResult:        {},
	RecordTypeImaging:          {},
	RecordTypePrescription:     {},
	RecordTypeConsultation:     {},
	RecordTypeDischargeSummary: {},
	RecordTypeVaccination:      {},
	RecordTypeSurgeryReport:    {},
	RecordTypePathology:        {},
	RecordTypeAudioNote:        {},
	RecordTypeOther:            {},
}

func (t RecordType) Known() bool {
	_, ok := recordTypes[t]
	return ok
}

// StructuredAnalysis is what the model extracts from one medical document.
type StructuredAnalysis struct {
	RecordType     RecordType     `json:"record_type"`
	Specialty      string         `json:"specialty"`
	EventDate      string         `json:"event_date"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Interpretation Interpretation `json:"interpretation"`
	// Warnings lists elements the parser dropped or enum values it did not recognize.
	Warnings []Warning `json:"warnings,omitempty"`
}

type Interpretation struct {
	Summary            string            `json:"summary"`
	DetectedConditions []string          `json:"detected_conditions"`
	Biomarkers         []Biomarker       `json:"biomarkers"`
	MedicationsFound   []Medication      `json:"medications_found"`
	SuggestedActions   []SuggestedAction `json:"suggested_actions"`
}

type Status string

const (
	StatusNormal Status = "Normal"
	StatusHigh   Status = "Alto"
	StatusLow    Status = "Bajo"
)

func (s Status) Known() bool {
	switch s {
	case StatusNormal, StatusHigh, StatusLow:
		return true
	}
	return false
}

// RiskLevel is the traffic-light deviation of a biomarker. Values outside the four known
// tokens are kept as-is; callers render them with default styling.
type RiskLevel string

const (
	RiskGreen  RiskLevel = "Green"
	RiskYellow RiskLevel = "Yellow"
	RiskOrange RiskLevel = "Orange"
	RiskRed    RiskLevel = "Red"
)

func (r RiskLevel) Known() bool {
	switch r {
	case RiskGreen, RiskYellow, RiskOrange, RiskRed:
		return true
	}
	return false
}

type Biomarker struct {
	Name string `json:"name"`
	// Value is nil for qualitative results; ValueText then holds the reported text.
	Value          *float64  `json:"value"`
	ValueText      string    `json:"value_text,omitempty"`
	Unit           string    `json:"unit"`
	Status         Status    `json:"status"`
	ReferenceRange string    `json:"reference_range"`
	RiskLevel      RiskLevel `json:"risk_level"`
}

type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
}

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func (u Urgency) Known() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// Rank orders urgencies for display; unknown values sort last.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyCritical:
		return 0
	case UrgencyHigh:
		return 1
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 3
	}
	return 4
}

type Category string

const (
	CategoryScreening  Category = "screening"
	CategoryMedication Category = "medication"
	CategoryLifestyle  Category = "lifestyle"
	CategoryFollowUp   Category = "follow_up"
)

func (c Category) Known() bool {
	switch c {
	case CategoryScreening, CategoryMedication, CategoryLifestyle, CategoryFollowUp:
		return true
	}
	return false
}

type SuggestedAction struct {
	Title      string   `json:"title"`
	Reason     string   `json:"reason"`
	Urgency    Urgency  `json:"urgency"`
	Category   Category `json:"category"`
	ActionType string   `json:"action_type"`
}

// Warning describes one element the tolerant parser dropped or flagged.
type Warning struct {
	Field   string `json:"field"`
	Index   int    `json:"index"`
	Message string `json:"message"`
}
