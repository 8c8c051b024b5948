package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores records in the health_records table.
type PostgresRepository struct {
	db querier
}

func NewPostgresRepository(db querier) *PostgresRepository {
	if db == nil {
		panic("records: db required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, req *CreateRequest) (*HealthRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	interpretation, err := req.interpretationJSON()
	if err != nil {
		return nil, fmt.Errorf("records: encode interpretation: %w", err)
	}

	var eventDate *time.Time
	if req.EventDate != "" {
		t, _ := time.Parse("2006-01-02", req.EventDate)
		eventDate = &t
	}

	id := uuid.NewString()
	query := `
		INSERT INTO health_records (id, user_id, record_type, specialty, event_date, title, description, file_path, interpretation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, query,
		id,
		req.UserID,
		string(req.RecordType),
		req.Specialty,
		eventDate,
		req.Title,
		req.Description,
		req.FilePath,
		interpretation,
	).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("records: insert failed: %w", err)
	}

	return &HealthRecord{
		ID:             id,
		UserID:         req.UserID,
		RecordType:     string(req.RecordType),
		Specialty:      req.Specialty,
		EventDate:      req.EventDate,
		Title:          req.Title,
		Description:    req.Description,
		FilePath:       req.FilePath,
		Interpretation: interpretation,
		CreatedAt:      createdAt,
	}, nil
}

const selectColumns = `
	SELECT id, user_id, record_type, COALESCE(specialty, ''), COALESCE(to_char(event_date, 'YYYY-MM-DD'), ''),
		title, COALESCE(description, ''), COALESCE(file_path, ''), interpretation, created_at
	FROM health_records
`

func (r *PostgresRepository) GetByID(ctx context.Context, userID, id string) (*HealthRecord, error) {
	row := r.db.QueryRow(ctx, selectColumns+"\tWHERE id = $1 AND user_id = $2\n", id, userID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("records: get failed: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string, limit int) ([]HealthRecord, error) {
	query := selectColumns + "\tWHERE user_id = $1\n\tORDER BY event_date DESC NULLS LAST, created_at DESC\n"
	args := []any{userID}
	if limit > 0 {
		query += "\tLIMIT $2\n"
		args = append(args, limit)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("records: list failed: %w", err)
	}
	defer rows.Close()

	out := []HealthRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("records: scan failed: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: list failed: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*HealthRecord, error) {
	var rec HealthRecord
	var interpretation []byte
	if err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.RecordType,
		&rec.Specialty,
		&rec.EventDate,
		&rec.Title,
		&rec.Description,
		&rec.FilePath,
		&interpretation,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(interpretation) > 0 {
		rec.Interpretation = interpretation
	}
	return &rec, nil
}
