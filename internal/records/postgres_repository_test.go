package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medrecord-ai/internal/analysis"
)

func TestPostgresRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	createdAt := time.Date(2024, 5, 15, 8, 0, 0, 0, time.UTC)
	eventDate := time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO health_records").
		WithArgs(pgxmock.AnyArg(), "user-1", "lab_result", "Hematología", &eventDate, "Hemograma", "", "user-1/a.pdf", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(createdAt))

	repo := NewPostgresRepository(mock)
	rec, err := repo.Create(context.Background(), &CreateRequest{
		UserID:         "user-1",
		FilePath:       "user-1/a.pdf",
		RecordType:     analysis.RecordTypeLabResult,
		Specialty:      "Hematología",
		EventDate:      "2024-05-14",
		Title:          "Hemograma",
		Interpretation: &analysis.Interpretation{Summary: "ok"},
	})
	require.NoError(t, err)
	assert.Equal(t, createdAt, rec.CreatedAt)
	assert.Contains(t, string(rec.Interpretation), `"summary":"ok"`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CreateFailureIsWrapped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO health_records").WillReturnError(errors.New("relation \"health_records\" does not exist"))

	_, err = NewPostgresRepository(mock).Create(context.Background(), &CreateRequest{UserID: "user-1", Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "records: insert failed")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM health_records").WithArgs("r-1", "user-1").WillReturnError(pgx.ErrNoRows)

	_, err = NewPostgresRepository(mock).GetByID(context.Background(), "user-1", "r-1")
	assert.ErrorIs(t, err, ErrRecordNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"id", "user_id", "record_type", "specialty", "event_date", "title", "description", "file_path", "interpretation", "created_at"}).
		AddRow("r-2", "user-1", "imaging", "", "2024-03-01", "Eco", "", "", []byte(nil), now).
		AddRow("r-1", "user-1", "lab_result", "", "", "Glucosa", "", "", []byte(`{"summary":"ok"}`), now)
	mock.ExpectQuery("ORDER BY event_date DESC").WithArgs("user-1", 10).WillReturnRows(rows)

	list, err := NewPostgresRepository(mock).List(context.Background(), "user-1", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r-2", list[0].ID)
	assert.Nil(t, list[0].Interpretation)
	assert.JSONEq(t, `{"summary":"ok"}`, string(list[1].Interpretation))
	require.NoError(t, mock.ExpectationsWereMet())
}
