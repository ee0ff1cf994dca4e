// Package store provides Postgres-backed persistence for canonical
// transcript records, keyed by source URL.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mentionmarkets/rollcall-sync/internal/transcript"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// TranscriptStore implements transcript.Store on Postgres.
type TranscriptStore struct {
	pool querier
}

// New creates a Postgres-backed TranscriptStore.
func New(ctx context.Context, cfg Config) (*TranscriptStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &TranscriptStore{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool querier) (*TranscriptStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &TranscriptStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *TranscriptStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the transcripts table and indexes if absent.
func (s *TranscriptStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS transcripts (
	source_url                 TEXT PRIMARY KEY,
	title                      TEXT NOT NULL DEFAULT '',
	event_date                 DATE,
	category                   TEXT NOT NULL DEFAULT 'Speech',
	location                   TEXT NOT NULL DEFAULT '',
	dialogue                   TEXT NOT NULL DEFAULT '',
	word_count                 INTEGER NOT NULL DEFAULT 0,
	primary_speaker_word_count INTEGER NOT NULL DEFAULT 0,
	speakers                   TEXT[] NOT NULL DEFAULT '{}',
	first_persisted_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_normalized_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS transcripts_event_date_idx ON transcripts (event_date DESC);
CREATE INDEX IF NOT EXISTS transcripts_category_idx ON transcripts (category);
`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const recordColumns = `source_url, title, event_date, category, location, dialogue,
	word_count, primary_speaker_word_count, speakers, first_persisted_at, last_normalized_at`

// Get loads one record by source URL.
func (s *TranscriptStore) Get(ctx context.Context, sourceURL string) (transcript.Record, bool, error) {
	query := fmt.Sprintf(`SELECT %s FROM transcripts WHERE source_url = $1`, recordColumns)
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, sourceURL))
	if errors.Is(err, pgx.ErrNoRows) {
		return transcript.Record{}, false, nil
	}
	if err != nil {
		return transcript.Record{}, false, fmt.Errorf("get transcript: %w", err)
	}
	return rec, true, nil
}

// Upsert writes one record. Conflicts on source_url overwrite the mutable
// columns while first_persisted_at keeps its original value, so re-running
// a sync over existing rows is idempotent. Returns whether a new row was
// created.
func (s *TranscriptStore) Upsert(ctx context.Context, rec transcript.Record) (bool, error) {
	if rec.SourceURL == "" {
		return false, fmt.Errorf("source url is required")
	}
	const query = `
INSERT INTO transcripts (
	source_url, title, event_date, category, location, dialogue,
	word_count, primary_speaker_word_count, speakers,
	first_persisted_at, last_normalized_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (source_url) DO UPDATE SET
	title = EXCLUDED.title,
	event_date = EXCLUDED.event_date,
	category = EXCLUDED.category,
	location = EXCLUDED.location,
	dialogue = EXCLUDED.dialogue,
	word_count = EXCLUDED.word_count,
	primary_speaker_word_count = EXCLUDED.primary_speaker_word_count,
	speakers = EXCLUDED.speakers,
	last_normalized_at = EXCLUDED.last_normalized_at
RETURNING (xmax = 0) AS inserted`

	var created bool
	err := s.pool.QueryRow(ctx, query,
		rec.SourceURL,
		rec.Title,
		nullableDate(rec.EventDate),
		rec.Category,
		rec.Location,
		rec.Dialogue,
		rec.WordCount,
		rec.PrimarySpeakerWordCount,
		rec.Speakers,
		rec.FirstPersistedAt,
		rec.LastNormalizedAt,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert transcript: %w", err)
	}
	return created, nil
}

// MaxEventDate returns the newest event date among rows that carry content.
// Empty rows are excluded: they are retry candidates, not evidence of
// coverage, so they must not narrow the next sync window.
func (s *TranscriptStore) MaxEventDate(ctx context.Context) (time.Time, bool, error) {
	const query = `SELECT max(event_date) FROM transcripts WHERE word_count > 0`
	var max *time.Time
	if err := s.pool.QueryRow(ctx, query).Scan(&max); err != nil {
		return time.Time{}, false, fmt.Errorf("max event date: %w", err)
	}
	if max == nil {
		return time.Time{}, false, nil
	}
	return *max, true, nil
}

// List returns records matching the filter, newest first.
func (s *TranscriptStore) List(ctx context.Context, filter transcript.ListFilter) ([]transcript.Record, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		conds = append(conds, fmt.Sprintf("event_date >= $%d", len(args)))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until)
		conds = append(conds, fmt.Sprintf("event_date <= $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM transcripts`, recordColumns)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY event_date DESC NULLS LAST, source_url"
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	var records []transcript.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (transcript.Record, error) {
	var (
		rec       transcript.Record
		eventDate *time.Time
	)
	err := row.Scan(
		&rec.SourceURL,
		&rec.Title,
		&eventDate,
		&rec.Category,
		&rec.Location,
		&rec.Dialogue,
		&rec.WordCount,
		&rec.PrimarySpeakerWordCount,
		&rec.Speakers,
		&rec.FirstPersistedAt,
		&rec.LastNormalizedAt,
	)
	if err != nil {
		return transcript.Record{}, err
	}
	if eventDate != nil {
		rec.EventDate = *eventDate
	}
	return rec, nil
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
