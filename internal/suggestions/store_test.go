package suggestions

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store := NewPostgresStore(mock)
	store.now = func() time.Time { return fixedNow }
	return store, mock
}

func sampleItems() []NewSuggestion {
	end := fixedNow.AddDate(0, 0, 90)
	family := "member-1"
	return []NewSuggestion{
		{Title: "Cribado de diabetes", Reason: "Antecedentes familiares", ActionType: "lab_test", UrgencyLevel: "medium", Category: "screening", ValidityEndDate: &end, SourceFamilyID: &family},
		{Title: "Completa tu perfil", Reason: "Falta grupo sanguíneo", ActionType: "complete_profile", UrgencyLevel: "low", Category: "follow_up", ValidityEndDate: &end},
	}
}

func TestPostgresStore_ReplaceActiveCommitsDeleteAndInserts(t *testing.T) {
	store, mock := newMockStore(t)
	items := sampleItems()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(deleteActive)).
		WithArgs("user-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	for _, item := range items {
		mock.ExpectExec("INSERT INTO suggestions").
			WithArgs(pgxmock.AnyArg(), "user-1", item.Title, item.Reason, item.ActionType, item.UrgencyLevel,
				item.Category, item.ValidityEndDate, item.SourceFamilyID, fixedNow).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	stored, err := store.ReplaceActive(context.Background(), "user-1", items)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.NotEmpty(t, stored[0].ID)
	assert.NotEqual(t, stored[0].ID, stored[1].ID)
	assert.False(t, stored[0].IsDismissed)
	assert.Equal(t, "member-1", *stored[0].SourceFamilyID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceActiveRollsBackOnInsertFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(deleteActive)).
		WithArgs("user-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("INSERT INTO suggestions").
		WillReturnError(errors.New("value too long for type character varying(255)"))
	mock.ExpectRollback()

	_, err := store.ReplaceActive(context.Background(), "user-1", sampleItems())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "value too long")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceActiveBeginFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err := store.ReplaceActive(context.Background(), "user-1", sampleItems())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin replace")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProfileNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM profiles").WithArgs("user-1").WillReturnError(pgx.ErrNoRows)

	_, err := store.GetProfile(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrProfileNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRecordsAppliesLimit(t *testing.T) {
	store, mock := newMockStore(t)
	rows := pgxmock.NewRows([]string{"event_date", "specialty", "record_type", "title", "interpretation"}).
		AddRow("2024-05-14", "Hematología", "lab_result", "Hemograma", []byte(`{"summary":"ok"}`)).
		AddRow("", "", "audio_note", "Nota", []byte(nil))
	mock.ExpectQuery("FROM health_records").WithArgs("member-1", FamilyRecordLimit).WillReturnRows(rows)

	records, err := store.ListRecords(context.Background(), "member-1", FamilyRecordLimit)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.JSONEq(t, `{"summary":"ok"}`, string(records[0].Interpretation))
	assert.Nil(t, records[1].Interpretation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListFamilyLinks(t *testing.T) {
	store, mock := newMockStore(t)
	rows := pgxmock.NewRows([]string{"member_user_id", "role"}).
		AddRow("member-1", "madre").
		AddRow("member-2", "hermano")
	mock.ExpectQuery("FROM family_links").WithArgs("user-1", MaxFamilyMembers).WillReturnRows(rows)

	links, err := store.ListFamilyLinks(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Equal(t, []FamilyLink{{MemberUserID: "member-1", Role: "madre"}, {MemberUserID: "member-2", Role: "hermano"}}, links)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DismissNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE suggestions SET is_dismissed = true").
		WithArgs("s-1", "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.Dismiss(context.Background(), "user-1", "s-1")
	assert.ErrorIs(t, err, ErrSuggestionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
