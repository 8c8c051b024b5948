// Package suggestions regenerates a user's AI health suggestions from their profile, records and
// linked relatives, and dispatches regeneration jobs without blocking the caller.
package suggestions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/medrecord-ai/internal/apperr"
	"github.com/wolfman30/medrecord-ai/internal/jsonextract"
	"github.com/wolfman30/medrecord-ai/internal/llm"
	"github.com/wolfman30/medrecord-ai/internal/observability/metrics"
	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

const (
	// MaxFamilyMembers bounds the relatives included in one packet.
	MaxFamilyMembers = 10
	// FamilyRecordLimit bounds each relative's records to keep the prompt within budget.
	FamilyRecordLimit = 20

	DefaultMaxTokens      = 4096
	DefaultMaxSuggestions = 12
	DefaultValidityDays   = 90
	maxValidityDays       = 365
	familyFetchLimit      = 4
)

var (
	// ErrNotArray is returned when the model answered with something other than a suggestion list.
	ErrNotArray = errors.New("expected a JSON array of suggestions")
	// ErrNoValidSuggestions is returned when the list was non-empty but no element survived decoding.
	ErrNoValidSuggestions = errors.New("no valid suggestions in model output")
)

var tracer = otel.Tracer("medrecord.internal.suggestions")

var (
	knownUrgency  = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}
	knownCategory = map[string]bool{"screening": true, "medication": true, "lifestyle": true, "follow_up": true}
)

// Synthesizer builds the context packet, asks the model for suggestions and replaces the
// user's active set.
type Synthesizer struct {
	store          Store
	client         llm.Client
	model          string
	maxTokens      int32
	maxSuggestions int
	familyMembers  int
	familyRecords  int
	validityDays   int
	metrics        *metrics.PipelineMetrics
	logger         *logging.Logger
	now            func() time.Time
}

type Option func(*Synthesizer)

func WithModel(model string) Option {
	return func(s *Synthesizer) { s.model = strings.TrimSpace(model) }
}

func WithMaxTokens(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.maxTokens = int32(n)
		}
	}
}

func WithMaxSuggestions(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.maxSuggestions = n
		}
	}
}

// WithFamilyLimits overrides how many relatives, and how many records each, go into the packet.
func WithFamilyLimits(members, records int) Option {
	return func(s *Synthesizer) {
		if members > 0 {
			s.familyMembers = members
		}
		if records > 0 {
			s.familyRecords = records
		}
	}
}

// WithValidityDays sets the default lifetime of a suggestion the model gave no window for.
func WithValidityDays(days int) Option {
	return func(s *Synthesizer) {
		if days > 0 && days <= maxValidityDays {
			s.validityDays = days
		}
	}
}

func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(s *Synthesizer) { s.metrics = m }
}

func NewSynthesizer(store Store, client llm.Client, logger *logging.Logger, opts ...Option) *Synthesizer {
	if store == nil {
		panic("suggestions: store cannot be nil")
	}
	if client == nil {
		panic("suggestions: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Synthesizer{
		store:          store,
		client:         client,
		maxTokens:      DefaultMaxTokens,
		maxSuggestions: DefaultMaxSuggestions,
		familyMembers:  MaxFamilyMembers,
		familyRecords:  FamilyRecordLimit,
		validityDays:   DefaultValidityDays,
		logger:         logger,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Regenerate replaces the user's active suggestions with a freshly generated set. Nothing is
// written unless every earlier step succeeded.
func (s *Synthesizer) Regenerate(ctx context.Context, userID string, trigger Trigger) (Result, error) {
	ctx, span := tracer.Start(ctx, "suggestions.regenerate")
	defer span.End()
	span.SetAttributes(attribute.String("medrecord.suggestions.trigger", string(trigger)))

	start := time.Now()
	result, stage, err := s.run(ctx, strings.TrimSpace(userID), trigger)
	if err != nil {
		span.RecordError(err)
		kind := apperr.KindOf(err)
		failure := string(kind)
		if llm.IsTruncated(err) {
			failure = "truncated"
		}
		s.metrics.ObserveFailure("suggestions", stage, failure)
		s.metrics.ObserveRegeneration(string(trigger), "error", 0)
		s.logger.Warn("suggestion regeneration failed",
			"user_id", userID,
			"trigger", trigger,
			"stage", stage,
			"kind", kind,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return Result{}, err
	}

	s.metrics.ObserveRegeneration(string(trigger), "ok", result.Count)
	s.logger.Info("suggestions regenerated",
		"user_id", result.UserID,
		"trigger", trigger,
		"count", result.Count,
		"dropped", result.Dropped,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (s *Synthesizer) run(ctx context.Context, userID string, trigger Trigger) (Result, string, error) {
	if userID == "" {
		return Result{}, "validate", apperr.Validation("suggestions", "user_id is required")
	}
	if !trigger.Valid() {
		return Result{}, "validate", apperr.Validation("suggestions", "unknown trigger type %q", trigger)
	}

	packet, err := s.BuildPacket(ctx, userID)
	if err != nil {
		return Result{}, "context", apperr.Persistence("load context", err)
	}
	body, err := json.Marshal(packet)
	if err != nil {
		return Result{}, "context", apperr.Internal("encode packet", err)
	}

	resp, err := s.complete(ctx, body, trigger)
	if err != nil {
		return Result{}, "invoke", err
	}

	members := make(map[string]bool, len(packet.MyFamily))
	for _, m := range packet.MyFamily {
		members[m.MemberID] = true
	}
	items, dropped, err := s.parse(resp.Text, members)
	if err != nil {
		return Result{}, "sanitize", apperr.ResponseShape("sanitize", err)
	}

	stored, err := s.store.ReplaceActive(ctx, userID, items)
	if err != nil {
		return Result{}, "replace", apperr.Persistence("replace suggestions", err)
	}
	return Result{UserID: userID, Trigger: trigger, Count: len(stored), Dropped: dropped}, "", nil
}

// BuildPacket gathers the user's profile, records and family context. A user without a
// profile yields a null myProfile; myFamily is always a list.
func (s *Synthesizer) BuildPacket(ctx context.Context, userID string) (Packet, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return Packet{}, err
	}
	records, err := s.store.ListRecords(ctx, userID, 0)
	if err != nil {
		return Packet{}, err
	}
	if records == nil {
		records = []RecordSummary{}
	}
	family, err := s.familyContext(ctx, userID)
	if err != nil {
		return Packet{}, err
	}
	return Packet{MyProfile: profile, MyRecords: records, MyFamily: family}, nil
}

// familyContext fetches every linked relative concurrently and keeps link order.
func (s *Synthesizer) familyContext(ctx context.Context, userID string) ([]FamilyContextEntry, error) {
	links, err := s.store.ListFamilyLinks(ctx, userID, s.familyMembers)
	if err != nil {
		return nil, err
	}
	if len(links) > s.familyMembers {
		links = links[:s.familyMembers]
	}

	family := make([]FamilyContextEntry, len(links))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(familyFetchLimit)
	for i, link := range links {
		g.Go(func() error {
			profile, err := s.store.GetFamilyProfile(gctx, link.MemberUserID)
			if err != nil {
				return fmt.Errorf("family member %s: %w", link.MemberUserID, err)
			}
			records, err := s.store.ListRecords(gctx, link.MemberUserID, s.familyRecords)
			if err != nil {
				return fmt.Errorf("family member %s: %w", link.MemberUserID, err)
			}
			if len(records) > s.familyRecords {
				records = records[:s.familyRecords]
			}
			if records == nil {
				records = []RecordSummary{}
			}
			family[i] = FamilyContextEntry{
				MemberID: link.MemberUserID,
				Role:     link.Role,
				Profile:  profile,
				Records:  records,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return family, nil
}

func (s *Synthesizer) complete(ctx context.Context, packet []byte, trigger Trigger) (llm.Response, error) {
	req := llm.Request{
		Model:       s.model,
		System:      []string{buildSystemPrompt(s.maxSuggestions)},
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: userMessage(packet, trigger, s.now())}},
		MaxTokens:   s.maxTokens,
		Temperature: 0.2,
	}

	start := time.Now()
	resp, err := s.client.Complete(ctx, req)
	latency := time.Since(start)
	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case resp.Truncated():
		status = "truncated"
	}
	s.metrics.ObserveLLM("suggestions", status, latency.Seconds(), resp.Usage.InputTokens, resp.Usage.OutputTokens)

	if err != nil {
		return llm.Response{}, apperr.Collaborator("llm", err)
	}
	s.logger.Debug("suggestions completion finished",
		"latency_ms", latency.Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"packet_bytes", len(packet),
	)
	if resp.Truncated() {
		return resp, apperr.ResponseShape("llm", fmt.Errorf("%w (max_tokens=%d, response_length=%d)", llm.ErrTruncated, s.maxTokens, len(resp.Text)))
	}
	return resp, nil
}

// parse accepts a bare array or an object wrapping it under "suggestions". Invalid elements are
// dropped and counted; so are elements past the configured maximum.
func (s *Synthesizer) parse(raw string, members map[string]bool) ([]NewSuggestion, int, error) {
	var value json.RawMessage
	if err := jsonextract.Extract(raw, jsonextract.Any, &value); err != nil {
		return nil, 0, err
	}

	var elements []json.RawMessage
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapper struct {
			Suggestions []json.RawMessage `json:"suggestions"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil || wrapper.Suggestions == nil {
			return nil, 0, ErrNotArray
		}
		elements = wrapper.Suggestions
	} else if err := json.Unmarshal(trimmed, &elements); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNotArray, err)
	}

	now := s.now().UTC()
	items := make([]NewSuggestion, 0, len(elements))
	dropped := 0
	for i, el := range elements {
		item, ok := decodeItem(el, members, now, s.validityDays)
		if !ok {
			s.logger.Debug("dropping malformed suggestion", "index", i)
			dropped++
			continue
		}
		if len(items) == s.maxSuggestions {
			dropped++
			continue
		}
		items = append(items, item)
	}
	if len(elements) > 0 && len(items) == 0 {
		return nil, dropped, fmt.Errorf("%w: dropped %d element(s)", ErrNoValidSuggestions, dropped)
	}
	return items, dropped, nil
}

func decodeItem(raw json.RawMessage, members map[string]bool, now time.Time, defaultDays int) (NewSuggestion, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return NewSuggestion{}, false
	}

	item := NewSuggestion{
		Title:      text(fields, "title"),
		Reason:     text(fields, "reason", "description"),
		ActionType: text(fields, "action_type", "actionType"),
	}
	if item.Title == "" {
		return NewSuggestion{}, false
	}

	item.UrgencyLevel = strings.ToLower(text(fields, "urgency_level", "urgencyLevel", "urgency"))
	if !knownUrgency[item.UrgencyLevel] {
		item.UrgencyLevel = "medium"
	}
	item.Category = strings.ReplaceAll(strings.ToLower(text(fields, "category")), "-", "_")
	if !knownCategory[item.Category] {
		item.Category = "follow_up"
	}
	if item.ActionType == "" {
		item.ActionType = item.Category
	}

	if id := text(fields, "source_family_id", "sourceFamilyId"); id != "" && members[id] {
		item.SourceFamilyID = &id
	}

	end := validityEnd(fields, now, defaultDays)
	item.ValidityEndDate = &end
	return item, true
}

// validityEnd prefers an explicit end date, then validity_days, then the default window.
func validityEnd(fields map[string]json.RawMessage, now time.Time, days int) time.Time {
	if raw := text(fields, "validity_end_date", "validityEndDate"); len(raw) >= 10 {
		if t, err := time.Parse("2006-01-02", raw[:10]); err == nil && t.After(now) {
			return t
		}
	}
	if raw, ok := fields["validity_days"]; ok {
		var n float64
		if err := json.Unmarshal(raw, &n); err == nil && n >= 1 && n <= maxValidityDays {
			days = int(n)
		}
	}
	return now.AddDate(0, 0, days)
}

// text returns the first key holding a string or number, trimmed.
func text(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}
