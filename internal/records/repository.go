package records

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines health record storage.
type Repository interface {
	Create(ctx context.Context, req *CreateRequest) (*HealthRecord, error)
	GetByID(ctx context.Context, userID, id string) (*HealthRecord, error)
	List(ctx context.Context, userID string, limit int) ([]HealthRecord, error)
}

// InMemoryRepository keeps records in process memory.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*HealthRecord
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{records: make(map[string]*HealthRecord)}
}

func (r *InMemoryRepository) Create(_ context.Context, req *CreateRequest) (*HealthRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	interpretation, err := req.interpretationJSON()
	if err != nil {
		return nil, err
	}
	rec := &HealthRecord{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		RecordType:     string(req.RecordType),
		Specialty:      req.Specialty,
		EventDate:      req.EventDate,
		Title:          req.Title,
		Description:    req.Description,
		FilePath:       req.FilePath,
		Interpretation: interpretation,
		CreatedAt:      time.Now().UTC(),
	}

	r.mu.Lock()
	r.records[rec.ID] = rec
	r.mu.Unlock()

	out := *rec
	return &out, nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, userID, id string) (*HealthRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok || rec.UserID != userID {
		return nil, ErrRecordNotFound
	}
	out := *rec
	return &out, nil
}

// List returns newest event first.
func (r *InMemoryRepository) List(_ context.Context, userID string, limit int) ([]HealthRecord, error) {
	r.mu.RLock()
	out := []HealthRecord{}
	for _, rec := range r.records {
		if rec.UserID == userID {
			out = append(out, *rec)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EventDate != out[j].EventDate {
			return out[i].EventDate > out[j].EventDate
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
