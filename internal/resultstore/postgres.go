package resultstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dlanza/callprobe/internal/conversation"
)

// PostgresStore persists conversation results in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS call_results (
			id TEXT PRIMARY KEY,
			call_id TEXT NOT NULL,
			test_case_id TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL,
			transcript JSONB NOT NULL,
			agent_text TEXT NOT NULL,
			caller_text TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_call_results_call ON call_results (call_id);`,
		`CREATE INDEX IF NOT EXISTS idx_call_results_created ON call_results (created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, record Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	transcript, err := json.Marshal(record.Result.Transcript)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO call_results (id, call_id, test_case_id, success, error, duration_ms, transcript, agent_text, caller_text, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID,
		record.Result.CallID,
		record.TestCaseID,
		record.Result.Success,
		record.Result.Error,
		record.Result.DurationMs,
		transcript,
		record.Result.AgentTranscriptText,
		record.Result.TestCallerTranscriptText,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, callID string) (Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, call_id, test_case_id, success, error, duration_ms, transcript, agent_text, caller_text, created_at
		 FROM call_results WHERE call_id=$1 ORDER BY created_at DESC LIMIT 1`,
		callID,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, call_id, test_case_id, success, error, duration_ms, transcript, agent_text, caller_text, created_at
		 FROM call_results ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent results: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec        Record
		transcript []byte
	)
	err := row.Scan(
		&rec.ID,
		&rec.Result.CallID,
		&rec.TestCaseID,
		&rec.Result.Success,
		&rec.Result.Error,
		&rec.Result.DurationMs,
		&transcript,
		&rec.Result.AgentTranscriptText,
		&rec.Result.TestCallerTranscriptText,
		&rec.CreatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	if len(transcript) > 0 {
		var turns []conversation.Turn
		if err := json.Unmarshal(transcript, &turns); err != nil {
			return Record{}, fmt.Errorf("decode transcript: %w", err)
		}
		rec.Result.Transcript = turns
	}
	return rec, nil
}
