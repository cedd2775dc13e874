package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osce-simulator/pkg"
)

var encounterColumns = []string{"id", "session_id", "case_id", "transcript", "results", "diagnosis", "plan", "feedback", "started_at", "created_at"}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func sampleRecord() pkg.EncounterRecord {
	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return pkg.EncounterRecord{
		ID:        uuid.NewString(),
		SessionID: "session-1",
		CaseID:    "mr-smith-leg-ulcer",
		Transcript: []pkg.Turn{
			{Role: pkg.RolePatient, Content: "Hello doctor."},
			{Role: pkg.RoleSystemNote, Content: "[Lab/Imaging performed: Order ABI]"},
		},
		Results:   []pkg.ActionResult{{Kind: pkg.KindLab, Action: "Order ABI", Result: "ABI 0.6"}},
		Diagnosis: "Mixed ulcer",
		Plan:      "Wound care",
		Feedback:  "Good work.",
		StartedAt: started,
		CreatedAt: started.Add(8 * time.Minute),
	}
}

func TestSaveEncounter(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRepository(db)
	rec := sampleRecord()

	mock.ExpectExec("INSERT INTO encounters").
		WithArgs(rec.ID, rec.SessionID, rec.CaseID,
			[]byte(`[{"role":"patient","content":"Hello doctor."},{"role":"system_note","content":"[Lab/Imaging performed: Order ABI]"}]`),
			[]byte(`[{"kind":"lab","action":"Order ABI","result":"ABI 0.6"}]`),
			rec.Diagnosis, rec.Plan, rec.Feedback, rec.StartedAt, rec.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SaveEncounter(context.Background(), &rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEncounter_InvalidID(t *testing.T) {
	db, mock := newMock(t)
	rec := sampleRecord()
	rec.ID = "not-a-uuid"

	assert.Error(t, NewRepository(db).SaveEncounter(context.Background(), &rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEncounter(t *testing.T) {
	db, mock := newMock(t)
	rec := sampleRecord()

	mock.ExpectQuery("SELECT (.+) FROM encounters WHERE id = \\$1").
		WithArgs(rec.ID).
		WillReturnRows(sqlmock.NewRows(encounterColumns).AddRow(
			rec.ID, rec.SessionID, rec.CaseID,
			[]byte(`[{"role":"patient","content":"Hello doctor."},{"role":"system_note","content":"[Lab/Imaging performed: Order ABI]"}]`),
			[]byte(`[{"kind":"lab","action":"Order ABI","result":"ABI 0.6"}]`),
			rec.Diagnosis, rec.Plan, rec.Feedback, rec.StartedAt, rec.CreatedAt,
		))

	got, err := NewRepository(db).GetEncounter(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, *got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEncounter_NotFound(t *testing.T) {
	db, mock := newMock(t)
	id := uuid.NewString()

	mock.ExpectQuery("SELECT (.+) FROM encounters").
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := NewRepository(db).GetEncounter(context.Background(), id)
	assert.True(t, errors.Is(err, ErrEncounterNotFound))

	_, err = NewRepository(db).GetEncounter(context.Background(), "garbage")
	assert.True(t, errors.Is(err, ErrEncounterNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEncounters(t *testing.T) {
	db, mock := newMock(t)
	rec := sampleRecord()

	mock.ExpectQuery("SELECT (.+) FROM encounters (.+) ORDER BY created_at DESC").
		WithArgs("mr-smith-leg-ulcer", 10).
		WillReturnRows(sqlmock.NewRows(encounterColumns).
			AddRow(rec.ID, rec.SessionID, rec.CaseID, []byte(`[]`), []byte(`[]`),
				rec.Diagnosis, rec.Plan, rec.Feedback, rec.StartedAt, rec.CreatedAt))

	list, err := NewRepository(db).ListEncounters(context.Background(), "mr-smith-leg-ulcer", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)
	assert.Empty(t, list[0].Transcript)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEncounters_DefaultLimit(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT (.+) FROM encounters").
		WithArgs("", DefaultListLimit).
		WillReturnRows(sqlmock.NewRows(encounterColumns))

	list, err := NewRepository(db).ListEncounters(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArchive_RecordEncounter(t *testing.T) {
	db, mock := newMock(t)
	rec := sampleRecord()
	archive := NewArchive(NewRepository(db), NewNotifier(db, "", "encounter_completed"))

	mock.ExpectExec("INSERT INTO encounters").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SELECT pg_notify").
		WithArgs("encounter_completed", rec.ID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, archive.RecordEncounter(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArchive_SaveFailureSkipsNotify(t *testing.T) {
	db, mock := newMock(t)
	archive := NewArchive(NewRepository(db), NewNotifier(db, "", "encounter_completed"))

	mock.ExpectExec("INSERT INTO encounters").WillReturnError(errors.New("db down"))

	err := archive.RecordEncounter(context.Background(), sampleRecord())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS encounters").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
