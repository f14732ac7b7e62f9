// Package sqlite provides the SQLite-backed implementation of the StormStore
// port. ID sets live in JSON1 columns; run and config documents are stored
// whole, with the columns the queries need lifted out beside them.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // driver
	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/storm/internal/core/ports"
)

// queryChunkSize bounds IN (...) parameter lists well under SQLite's
// variable limit.
const queryChunkSize = 500

// Store implements ports.StormStore over a single SQLite database.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ ports.StormStore = (*Store)(nil)

// NewStore opens (or creates) the database and runs the schema migration.
func NewStore(storagePath string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	store := &Store{db: db, log: log}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return store, nil
}

// Close ensures the DB connection is closed gracefully.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS configs (
		name TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS artists (
		id TEXT PRIMARY KEY,
		name TEXT,
		genres TEXT NOT NULL DEFAULT '[]',
		followers INTEGER,
		popularity INTEGER,
		album_collected_date TEXT
	);

	CREATE TABLE IF NOT EXISTS albums (
		id TEXT PRIMARY KEY,
		name TEXT,
		album_type TEXT,
		release_date TEXT,
		total_tracks INTEGER,
		artists TEXT NOT NULL DEFAULT '[]',
		tracks_collected INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		name TEXT,
		album_id TEXT,
		artists TEXT NOT NULL DEFAULT '[]',
		duration_ms INTEGER,
		explicit INTEGER,
		track_number INTEGER,
		features_collected INTEGER NOT NULL DEFAULT 0,
		danceability REAL,
		energy REAL,
		pitch_key INTEGER,
		loudness REAL,
		mode INTEGER,
		speechiness REAL,
		acousticness REAL,
		instrumentalness REAL,
		liveness REAL,
		valence REAL,
		tempo REAL,
		time_signature INTEGER
	);

	CREATE TABLE IF NOT EXISTS playlists (
		id TEXT PRIMARY KEY,
		name TEXT,
		owner TEXT,
		description TEXT,
		snapshot_id TEXT,
		last_collected TEXT,
		tracks TEXT NOT NULL DEFAULT '[]',
		artists TEXT NOT NULL DEFAULT '[]',
		changelog TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS blacklists (
		name TEXT PRIMARY KEY,
		input_playlist TEXT,
		artists TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		storm_name TEXT NOT NULL,
		run_date TEXT NOT NULL,
		start_date TEXT NOT NULL,
		document TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_storm_date ON runs (storm_name, run_date);
	CREATE INDEX IF NOT EXISTS idx_albums_release ON albums (release_date);
	CREATE INDEX IF NOT EXISTS idx_tracks_album ON tracks (album_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return err
	}

	// Content keys arrived after the first runs were recorded; the column is
	// nullable so absence stays observable.
	if _, err := s.db.Exec("ALTER TABLE runs ADD COLUMN track_uids TEXT"); err != nil {
		if !isDuplicateColumnError(err) {
			return err
		}
	}

	return nil
}

func isDuplicateColumnError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "duplicate column") || strings.Contains(err.Error(), "already exists"))
}

// chunkIDs splits an ID list so each chunk fits one parameterized query.
func chunkIDs(ids []string) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += queryChunkSize {
		end := start + queryChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalIDs(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// selectIDs runs a query whose single output column is an ID.
func (s *Store) selectIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
