// Package db persists finished transcription sessions in Postgres.
// The store is optional: the server runs without one when no database
// URL is configured.
package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// Session kinds.
const (
	KindRealtime      = "realtime"
	KindTranscription = "transcription"
)

// SessionRecord is one stored session: a completed realtime stream or a
// one-shot file transcription.
type SessionRecord struct {
	ID          string
	Kind        string
	Model       string
	StartedAt   time.Time
	Duration    float64 // seconds of audio
	SampleCount int64
	Text        string
	CreatedAt   time.Time
}

type Store struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// Open connects to Postgres and applies the embedded schema.
func Open(ctx context.Context, dsn string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply embedded schema: %w", err)
	}

	logger.Info("session store ready")
	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) SaveSession(ctx context.Context, rec SessionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions
			(id, kind, model, started_at, duration_seconds, sample_count, text)
		VALUES
			($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID,
		rec.Kind,
		rec.Model,
		rec.StartedAt,
		rec.Duration,
		rec.SampleCount,
		rec.Text,
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.ID, err)
	}

	s.logger.Debug(
		"session saved",
		"id", rec.ID,
		"kind", rec.Kind,
		"seconds", rec.Duration,
	)
	return nil
}

// RecentSessions returns the newest stored sessions, newest first.
func (s *Store) RecentSessions(
	ctx context.Context,
	limit int,
) ([]SessionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, model, started_at, duration_seconds,
		       sample_count, text, created_at
		FROM sessions
		ORDER BY created_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		err := rows.Scan(
			&rec.ID,
			&rec.Kind,
			&rec.Model,
			&rec.StartedAt,
			&rec.Duration,
			&rec.SampleCount,
			&rec.Text,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	return records, nil
}

func (s *Store) Close() {
	s.pool.Close()
}
