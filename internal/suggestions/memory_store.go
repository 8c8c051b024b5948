package suggestions

import (
	"context"
	"sort"
	"sync"
	"time"
)

// RecordSource lists a user's records newest first. limit <= 0 means all.
type RecordSource func(ctx context.Context, userID string, limit int) ([]RecordSummary, error)

// MemoryStore is an in-process Store used by the api in dev mode and by tests.
type MemoryStore struct {
	mu          sync.RWMutex
	profiles    map[string]Profile
	records     map[string][]RecordSummary
	links       map[string][]FamilyLink
	suggestions map[string][]Suggestion
	source      RecordSource
	now         func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithRecordSource reads records from another store instead of the ones added with AddRecord.
func WithRecordSource(source RecordSource) MemoryOption {
	return func(m *MemoryStore) { m.source = source }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		profiles:    make(map[string]Profile),
		records:     make(map[string][]RecordSummary),
		links:       make(map[string][]FamilyLink),
		suggestions: make(map[string][]Suggestion),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) PutProfile(p Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = p
}

// AddRecord keeps records ordered newest first by event date.
func (m *MemoryStore) AddRecord(userID string, r RecordSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append(m.records[userID], r)
	sort.SliceStable(list, func(i, j int) bool { return list[i].EventDate > list[j].EventDate })
	m.records[userID] = list
}

func (m *MemoryStore) LinkFamily(userID string, link FamilyLink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[userID] = append(m.links[userID], link)
}

// Seed stores a suggestion row as is.
func (m *MemoryStore) Seed(s Suggestion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suggestions[s.UserID] = append(m.suggestions[s.UserID], s)
}

// All returns every stored row for the user, dismissed ones included.
func (m *MemoryStore) All(userID string) []Suggestion {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Suggestion(nil), m.suggestions[userID]...)
}

func (m *MemoryStore) GetProfile(_ context.Context, userID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	p.Allergies = nonNil(p.Allergies)
	p.ChronicConditions = nonNil(p.ChronicConditions)
	p.CurrentMedications = nonNil(p.CurrentMedications)
	return &p, nil
}

func (m *MemoryStore) GetFamilyProfile(_ context.Context, userID string) (*FamilyProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &FamilyProfile{
		BirthDate:         p.BirthDate,
		Sex:               p.Sex,
		BloodType:         p.BloodType,
		ChronicConditions: nonNil(p.ChronicConditions),
		Allergies:         nonNil(p.Allergies),
	}, nil
}

func (m *MemoryStore) ListRecords(ctx context.Context, userID string, limit int) ([]RecordSummary, error) {
	if m.source != nil {
		list, err := m.source(ctx, userID, limit)
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []RecordSummary{}
		}
		return list, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.records[userID]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return append([]RecordSummary{}, list...), nil
}

func (m *MemoryStore) ListFamilyLinks(_ context.Context, userID string, limit int) ([]FamilyLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.links[userID]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return append([]FamilyLink(nil), list...), nil
}

func (m *MemoryStore) ReplaceActive(_ context.Context, userID string, items []NewSuggestion) ([]Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make([]Suggestion, 0, len(m.suggestions[userID])+len(items))
	for _, s := range m.suggestions[userID] {
		if s.IsDismissed {
			kept = append(kept, s)
		}
	}
	now := m.now().UTC()
	stored := make([]Suggestion, 0, len(items))
	for _, item := range items {
		stored = append(stored, fromNew(userID, item, now))
	}
	m.suggestions[userID] = append(kept, stored...)
	return stored, nil
}

func (m *MemoryStore) ListActive(_ context.Context, userID string) ([]Suggestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Suggestion{}
	for _, s := range m.suggestions[userID] {
		if !s.IsDismissed {
			out = append(out, s)
		}
	}
	sortByUrgency(out)
	return out, nil
}

func (m *MemoryStore) Dismiss(_ context.Context, userID, suggestionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.suggestions[userID] {
		if s.ID == suggestionID {
			m.suggestions[userID][i].IsDismissed = true
			return nil
		}
	}
	return ErrSuggestionNotFound
}
