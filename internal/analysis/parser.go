package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/medrecord-ai/internal/apperr"
	"github.com/wolfman30/medrecord-ai/internal/jsonextract"
)

// ParseStructuredAnalysis extracts the JSON object from raw model output and decodes it
// element by element. Only a JSON-level failure is an error. Elements with the wrong shape
// are dropped and enum values outside the known set are kept; both are reported in Warnings.
func ParseStructuredAnalysis(raw string) (StructuredAnalysis, error) {
	var env fields
	if err := jsonextract.Extract(raw, jsonextract.Object, &env); err != nil {
		return StructuredAnalysis{}, apperr.ResponseShape("sanitize", err)
	}

	p := &parser{}
	out := StructuredAnalysis{
		Specialty:   p.text(env, "specialty"),
		Title:       p.text(env, "title"),
		Description: p.text(env, "description"),
	}
	out.RecordType = p.recordType(env)
	out.EventDate = p.eventDate(env)
	out.Interpretation = p.interpretation(env)
	out.Warnings = p.warnings
	return out, nil
}

type fields map[string]json.RawMessage

// lookup returns the first present, non-null key among names.
func (f fields) lookup(names ...string) (json.RawMessage, bool) {
	for _, name := range names {
		if v, ok := f[name]; ok && !isNull(v) {
			return v, true
		}
	}
	return nil, false
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

type parser struct {
	warnings []Warning
}

func (p *parser) warn(field string, index int, format string, args ...any) {
	p.warnings = append(p.warnings, Warning{Field: field, Index: index, Message: fmt.Sprintf(format, args...)})
}

// scalarText reads a JSON string or number as text.
func scalarText(v json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s), true
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

func (p *parser) text(f fields, names ...string) string {
	v, ok := f.lookup(names...)
	if !ok {
		return ""
	}
	s, ok := scalarText(v)
	if !ok {
		p.warn(names[0], -1, "expected text, got %s", kindOf(v))
		return ""
	}
	return s
}

func (p *parser) recordType(f fields) RecordType {
	raw := p.text(f, "record_type", "recordType")
	rt := RecordType(strings.ToLower(raw))
	if rt.Known() {
		return rt
	}
	if raw != "" {
		p.warn("record_type", -1, "unknown record type %q, using %q", raw, RecordTypeOther)
	}
	return RecordTypeOther
}

func (p *parser) eventDate(f fields) string {
	raw := p.text(f, "event_date", "eventDate")
	if raw == "" {
		return ""
	}
	// Timestamps are accepted by their date prefix.
	date := raw
	if len(date) > len(time.DateOnly) {
		date = date[:len(time.DateOnly)]
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		p.warn("event_date", -1, "not an ISO date: %q", raw)
		return ""
	}
	return date
}

func (p *parser) interpretation(env fields) Interpretation {
	out := Interpretation{
		DetectedConditions: []string{},
		Biomarkers:         []Biomarker{},
		MedicationsFound:   []Medication{},
		SuggestedActions:   []SuggestedAction{},
	}
	raw, ok := env.lookup("interpretation")
	if !ok {
		p.warn("interpretation", -1, "missing")
		return out
	}
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil {
		p.warn("interpretation", -1, "expected object, got %s", kindOf(raw))
		return out
	}

	out.Summary = p.text(f, "summary")
	for i, item := range p.array(f, "detected_conditions", "detectedConditions") {
		if c, ok := p.condition(item); ok {
			out.DetectedConditions = append(out.DetectedConditions, c)
		} else {
			p.warn("detected_conditions", i, "dropped %s element", kindOf(item))
		}
	}
	for i, item := range p.array(f, "biomarkers") {
		if b, ok := p.biomarker(i, item); ok {
			out.Biomarkers = append(out.Biomarkers, b)
		}
	}
	for i, item := range p.array(f, "medications_found", "medicationsFound", "medications") {
		if m, ok := p.medication(item); ok {
			out.MedicationsFound = append(out.MedicationsFound, m)
		} else {
			p.warn("medications_found", i, "dropped %s element", kindOf(item))
		}
	}
	for i, item := range p.array(f, "suggested_actions", "suggestedActions") {
		if a, ok := p.action(i, item); ok {
			out.SuggestedActions = append(out.SuggestedActions, a)
		}
	}
	return out
}

func (p *parser) array(f fields, names ...string) []json.RawMessage {
	raw, ok := f.lookup(names...)
	if !ok {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		p.warn(names[0], -1, "expected array, got %s", kindOf(raw))
		return nil
	}
	return items
}

func (p *parser) condition(item json.RawMessage) (string, bool) {
	if s, ok := scalarText(item); ok {
		return s, s != ""
	}
	var f fields
	if err := json.Unmarshal(item, &f); err != nil {
		return "", false
	}
	name := p.text(f, "name", "condition")
	return name, name != ""
}

func (p *parser) biomarker(i int, item json.RawMessage) (Biomarker, bool) {
	var f fields
	if err := json.Unmarshal(item, &f); err != nil {
		p.warn("biomarkers", i, "dropped %s element", kindOf(item))
		return Biomarker{}, false
	}
	b := Biomarker{
		Name:           p.text(f, "name"),
		Unit:           p.text(f, "unit"),
		ReferenceRange: p.text(f, "reference_range", "referenceRange"),
	}
	if b.Name == "" {
		p.warn("biomarkers", i, "dropped biomarker without name")
		return Biomarker{}, false
	}

	if v, ok := f.lookup("value"); ok {
		var n float64
		if err := json.Unmarshal(v, &n); err == nil {
			b.Value = &n
		} else if s, ok := scalarText(v); ok {
			if n, ok := parseDecimal(s); ok {
				b.Value = &n
			} else {
				b.ValueText = s
			}
		} else {
			p.warn("biomarkers", i, "%s: value is %s", b.Name, kindOf(v))
		}
	}

	status := p.text(f, "status")
	b.Status = normalizeStatus(status)
	if status != "" && !b.Status.Known() {
		p.warn("biomarkers", i, "%s: unknown status %q", b.Name, status)
	}

	risk := p.text(f, "risk_level", "riskLevel")
	b.RiskLevel = normalizeRisk(risk)
	if !b.RiskLevel.Known() {
		p.warn("biomarkers", i, "%s: unknown risk level %q", b.Name, risk)
	}
	return b, true
}

func (p *parser) medication(item json.RawMessage) (Medication, bool) {
	if s, ok := scalarText(item); ok {
		return Medication{Name: s}, s != ""
	}
	var f fields
	if err := json.Unmarshal(item, &f); err != nil {
		return Medication{}, false
	}
	m := Medication{
		Name:      p.text(f, "name"),
		Dosage:    p.text(f, "dosage", "dose"),
		Frequency: p.text(f, "frequency"),
	}
	return m, m.Name != ""
}

func (p *parser) action(i int, item json.RawMessage) (SuggestedAction, bool) {
	var f fields
	if err := json.Unmarshal(item, &f); err != nil {
		p.warn("suggested_actions", i, "dropped %s element", kindOf(item))
		return SuggestedAction{}, false
	}
	a := SuggestedAction{
		Title:      p.text(f, "title"),
		Reason:     p.text(f, "reason"),
		ActionType: p.text(f, "action_type", "actionType"),
	}
	if a.Title == "" {
		p.warn("suggested_actions", i, "dropped action without title")
		return SuggestedAction{}, false
	}
	urgency := p.text(f, "urgency", "urgency_level")
	a.Urgency = Urgency(strings.ToLower(urgency))
	if !a.Urgency.Known() {
		p.warn("suggested_actions", i, "%s: unknown urgency %q", a.Title, urgency)
	}
	category := p.text(f, "category")
	a.Category = Category(strings.ReplaceAll(strings.ToLower(category), "-", "_"))
	if !a.Category.Known() {
		p.warn("suggested_actions", i, "%s: unknown category %q", a.Title, category)
	}
	return a, true
}

func normalizeStatus(s string) Status {
	switch strings.ToLower(s) {
	case "normal":
		return StatusNormal
	case "alto", "high":
		return StatusHigh
	case "bajo", "low":
		return StatusLow
	}
	return Status(s)
}

func normalizeRisk(s string) RiskLevel {
	for _, known := range []RiskLevel{RiskGreen, RiskYellow, RiskOrange, RiskRed} {
		if strings.EqualFold(s, string(known)) {
			return known
		}
	}
	return RiskLevel(s)
}

// parseDecimal accepts "11.2" and the comma-decimal "11,2".
func parseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	n, err := strconv.ParseFloat(s, 64)
	return n, err == nil
}

func kindOf(v json.RawMessage) string {
	t := bytes.TrimSpace(v)
	if len(t) == 0 {
		return "empty"
	}
	switch t[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}
