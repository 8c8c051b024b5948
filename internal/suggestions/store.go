package suggestions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store is the persistence boundary of the synthesizer.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	GetFamilyProfile(ctx context.Context, userID string) (*FamilyProfile, error)
	// ListRecords returns the user's records newest first. limit <= 0 means all.
	ListRecords(ctx context.Context, userID string, limit int) ([]RecordSummary, error)
	ListFamilyLinks(ctx context.Context, userID string, limit int) ([]FamilyLink, error)
	// ReplaceActive deletes the user's non-dismissed suggestions and inserts items as one unit.
	ReplaceActive(ctx context.Context, userID string, items []NewSuggestion) ([]Suggestion, error)
	ListActive(ctx context.Context, userID string) ([]Suggestion, error)
	Dismiss(ctx context.Context, userID, suggestionID string) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore reads profiles, records and family links and owns the suggestions table.
type PostgresStore struct {
	db  querier
	now func() time.Time
}

// NewPostgresStore accepts a *pgxpool.Pool or anything with the same query surface.
func NewPostgresStore(db querier) *PostgresStore {
	if db == nil {
		panic("suggestions: db cannot be nil")
	}
	return &PostgresStore{db: db, now: time.Now}
}

const selectProfile = `
	SELECT user_id, COALESCE(full_name, ''), COALESCE(to_char(birth_date, 'YYYY-MM-DD'), ''),
		COALESCE(sex, ''), COALESCE(blood_type, ''), height_cm, weight_kg,
		allergies, chronic_conditions, current_medications, lifestyle
	FROM profiles
	WHERE user_id = $1
`

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	var lifestyle []byte
	err := s.db.QueryRow(ctx, selectProfile, userID).Scan(
		&p.UserID, &p.FullName, &p.BirthDate, &p.Sex, &p.BloodType, &p.HeightCM, &p.WeightKG,
		&p.Allergies, &p.ChronicConditions, &p.CurrentMedications, &lifestyle,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("suggestions: get profile: %w", err)
	}
	p.Allergies = nonNil(p.Allergies)
	p.ChronicConditions = nonNil(p.ChronicConditions)
	p.CurrentMedications = nonNil(p.CurrentMedications)
	if len(lifestyle) > 0 {
		p.Lifestyle = lifestyle
	}
	return &p, nil
}

const selectFamilyProfile = `
	SELECT COALESCE(to_char(birth_date, 'YYYY-MM-DD'), ''), COALESCE(sex, ''), COALESCE(blood_type, ''),
		chronic_conditions, allergies
	FROM profiles
	WHERE user_id = $1
`

// GetFamilyProfile returns nil without error when the relative has no profile yet.
func (s *PostgresStore) GetFamilyProfile(ctx context.Context, userID string) (*FamilyProfile, error) {
	var p FamilyProfile
	err := s.db.QueryRow(ctx, selectFamilyProfile, userID).Scan(
		&p.BirthDate, &p.Sex, &p.BloodType, &p.ChronicConditions, &p.Allergies,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("suggestions: get family profile: %w", err)
	}
	p.ChronicConditions = nonNil(p.ChronicConditions)
	p.Allergies = nonNil(p.Allergies)
	return &p, nil
}

const selectRecords = `
	SELECT COALESCE(to_char(event_date, 'YYYY-MM-DD'), ''), COALESCE(specialty, ''), record_type, title, interpretation
	FROM health_records
	WHERE user_id = $1
	ORDER BY event_date DESC NULLS LAST, created_at DESC
`

func (s *PostgresStore) ListRecords(ctx context.Context, userID string, limit int) ([]RecordSummary, error) {
	query := selectRecords
	args := []any{userID}
	if limit > 0 {
		query += "\tLIMIT $2\n"
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("suggestions: list records: %w", err)
	}
	defer rows.Close()

	records := []RecordSummary{}
	for rows.Next() {
		var r RecordSummary
		var interpretation []byte
		if err := rows.Scan(&r.EventDate, &r.Specialty, &r.RecordType, &r.Title, &interpretation); err != nil {
			return nil, fmt.Errorf("suggestions: scan record: %w", err)
		}
		if len(interpretation) > 0 {
			r.Interpretation = interpretation
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("suggestions: list records: %w", err)
	}
	return records, nil
}

const selectFamilyLinks = `
	SELECT member_user_id, role
	FROM family_links
	WHERE user_id = $1
	ORDER BY created_at ASC
	LIMIT $2
`

func (s *PostgresStore) ListFamilyLinks(ctx context.Context, userID string, limit int) ([]FamilyLink, error) {
	if limit <= 0 {
		limit = MaxFamilyMembers
	}
	rows, err := s.db.Query(ctx, selectFamilyLinks, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("suggestions: list family links: %w", err)
	}
	defer rows.Close()

	var links []FamilyLink
	for rows.Next() {
		var l FamilyLink
		if err := rows.Scan(&l.MemberUserID, &l.Role); err != nil {
			return nil, fmt.Errorf("suggestions: scan family link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("suggestions: list family links: %w", err)
	}
	return links, nil
}

const (
	deleteActive = `DELETE FROM suggestions WHERE user_id = $1 AND is_dismissed = false`

	insertSuggestion = `
		INSERT INTO suggestions (id, user_id, title, reason, action_type, urgency_level, category,
			validity_end_date, source_family_id, is_dismissed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10)
	`
)

// ReplaceActive runs the delete and every insert in one transaction. Dismissed rows are never
// matched by the delete.
func (s *PostgresStore) ReplaceActive(ctx context.Context, userID string, items []NewSuggestion) ([]Suggestion, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggestions: begin replace: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, deleteActive, userID); err != nil {
		return nil, fmt.Errorf("suggestions: delete active: %w", err)
	}

	now := s.now().UTC()
	stored := make([]Suggestion, 0, len(items))
	for _, item := range items {
		row := fromNew(userID, item, now)
		if _, err := tx.Exec(ctx, insertSuggestion,
			row.ID, row.UserID, row.Title, row.Reason, row.ActionType, row.UrgencyLevel, row.Category,
			row.ValidityEndDate, row.SourceFamilyID, row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("suggestions: insert suggestion: %w", err)
		}
		stored = append(stored, row)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("suggestions: commit replace: %w", err)
	}
	return stored, nil
}

const selectActive = `
	SELECT id, user_id, title, COALESCE(reason, ''), COALESCE(action_type, ''), urgency_level, category,
		validity_end_date, source_family_id, is_dismissed, created_at
	FROM suggestions
	WHERE user_id = $1 AND is_dismissed = false
	ORDER BY created_at DESC
`

func (s *PostgresStore) ListActive(ctx context.Context, userID string) ([]Suggestion, error) {
	rows, err := s.db.Query(ctx, selectActive, userID)
	if err != nil {
		return nil, fmt.Errorf("suggestions: list active: %w", err)
	}
	defer rows.Close()

	out := []Suggestion{}
	for rows.Next() {
		var row Suggestion
		if err := rows.Scan(&row.ID, &row.UserID, &row.Title, &row.Reason, &row.ActionType, &row.UrgencyLevel,
			&row.Category, &row.ValidityEndDate, &row.SourceFamilyID, &row.IsDismissed, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("suggestions: scan suggestion: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("suggestions: list active: %w", err)
	}
	sortByUrgency(out)
	return out, nil
}

func (s *PostgresStore) Dismiss(ctx context.Context, userID, suggestionID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE suggestions SET is_dismissed = true WHERE id = $1 AND user_id = $2`,
		suggestionID, userID,
	)
	if err != nil {
		return fmt.Errorf("suggestions: dismiss: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSuggestionNotFound
	}
	return nil
}

func fromNew(userID string, item NewSuggestion, now time.Time) Suggestion {
	return Suggestion{
		ID:              uuid.NewString(),
		UserID:          userID,
		Title:           item.Title,
		Reason:          item.Reason,
		ActionType:      item.ActionType,
		UrgencyLevel:    item.UrgencyLevel,
		Category:        item.Category,
		ValidityEndDate: item.ValidityEndDate,
		SourceFamilyID:  item.SourceFamilyID,
		CreatedAt:       now,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

var urgencyRank = map[string]int{"critical": 0, "high": 1, "medium": 2, "low": 3}

// sortByUrgency orders most urgent first, keeping insertion order within a level.
func sortByUrgency(items []Suggestion) {
	rank := func(s Suggestion) int {
		if r, ok := urgencyRank[strings.ToLower(s.UrgencyLevel)]; ok {
			return r
		}
		return len(urgencyRank)
	}
	sort.SliceStable(items, func(i, j int) bool { return rank(items[i]) < rank(items[j]) })
}
