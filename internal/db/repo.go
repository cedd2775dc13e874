package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"osce-simulator/pkg"
)

// ErrEncounterNotFound is returned when no archived encounter has the id.
var ErrEncounterNotFound = errors.New("encounter not found")

// DefaultListLimit caps ListEncounters when the caller passes no limit.
const DefaultListLimit = 50

// Repository wraps database operations for archived encounters.
type Repository struct {
	DB *sql.DB
}

// NewRepository constructs a new Repository from an existing sql.DB.
// The caller is responsible for managing the DB connection lifecycle.
func NewRepository(db *sql.DB) *Repository { return &Repository{DB: db} }

// SaveEncounter inserts a completed encounter.  Transcript and results are
// stored as JSON.
func (r *Repository) SaveEncounter(ctx context.Context, rec *pkg.EncounterRecord) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return fmt.Errorf("encounter id: %w", err)
	}
	transcriptJSON, err := json.Marshal(rec.Transcript)
	if err != nil {
		return err
	}
	resultsJSON, err := json.Marshal(rec.Results)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO encounters (id, session_id, case_id, transcript, results, diagnosis, plan, feedback, started_at, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, rec.SessionID, rec.CaseID, transcriptJSON, resultsJSON,
		rec.Diagnosis, rec.Plan, rec.Feedback, rec.StartedAt, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert encounter: %w", err)
	}
	return nil
}

// GetEncounter loads one archived encounter.
func (r *Repository) GetEncounter(ctx context.Context, id string) (*pkg.EncounterRecord, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrEncounterNotFound
	}
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, session_id, case_id, transcript, results, diagnosis, plan, feedback, started_at, created_at
         FROM encounters
         WHERE id = $1`, uid)
	rec, err := scanEncounter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEncounterNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListEncounters returns the newest encounters first, optionally filtered by
// case id.
func (r *Repository) ListEncounters(ctx context.Context, caseID string, limit int) ([]pkg.EncounterRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, session_id, case_id, transcript, results, diagnosis, plan, feedback, started_at, created_at
         FROM encounters
         WHERE ($1 = '' OR case_id = $1)
         ORDER BY created_at DESC
         LIMIT $2`, caseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []pkg.EncounterRecord{}
	for rows.Next() {
		rec, err := scanEncounter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEncounter(row scanner) (*pkg.EncounterRecord, error) {
	var rec pkg.EncounterRecord
	var transcriptJSON, resultsJSON []byte
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.CaseID, &transcriptJSON, &resultsJSON,
		&rec.Diagnosis, &rec.Plan, &rec.Feedback, &rec.StartedAt, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(transcriptJSON) > 0 {
		if err := json.Unmarshal(transcriptJSON, &rec.Transcript); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
		}
	}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &rec.Results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results: %w", err)
		}
	}
	return &rec, nil
}
