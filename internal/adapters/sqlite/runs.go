package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ewilliams-labs/storm/internal/core/domain"
	"github.com/ewilliams-labs/storm/internal/core/ports"
)

// GetConfig loads a storm configuration by name.
func (s *Store) GetConfig(ctx context.Context, name string) (domain.StormConfig, error) {
	row := s.db.QueryRowContext(ctx, "SELECT document FROM configs WHERE name = ?", name)
	var doc string
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StormConfig{}, fmt.Errorf("config %s: %w", name, ports.ErrNotFound)
		}
		return domain.StormConfig{}, fmt.Errorf("failed to load config: %w", err)
	}

	var cfg domain.StormConfig
	if err := json.Unmarshal([]byte(doc), &cfg); err != nil {
		return domain.StormConfig{}, fmt.Errorf("failed to decode config %s: %w", name, err)
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
	return cfg, nil
}

// SaveConfig upserts a storm configuration. Configuration editing is an
// operator task, not part of a run.
func (s *Store) SaveConfig(ctx context.Context, name string, cfg domain.StormConfig) error {
	doc, err := marshalJSON(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO configs (name, document) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET document=excluded.document, updated_at=CURRENT_TIMESTAMP
	`, name, doc)
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// ListStormNames returns every configured storm name, sorted.
func (s *Store) ListStormNames(ctx context.Context) ([]string, error) {
	names, err := s.selectIDs(ctx, "SELECT name FROM configs ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	return names, nil
}

// WriteRunRecord appends a run record. Records are never overwritten here;
// SetRunTrackUIDs is the single mutation path.
func (s *Store) WriteRunRecord(ctx context.Context, rec domain.RunRecord) error {
	doc, err := marshalJSON(rec)
	if err != nil {
		return fmt.Errorf("failed to encode run record: %w", err)
	}

	var uids any
	if rec.HasTrackUIDs {
		encoded, err := marshalJSON(rec.TrackUIDs)
		if err != nil {
			return fmt.Errorf("failed to encode track uids: %w", err)
		}
		uids = encoded
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, storm_name, run_date, start_date, document, track_uids)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.StormName, rec.RunDate, rec.StartDate, doc, uids)
	if err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}
	return nil
}

// GetLastRun returns the most recent run of the storm, or ports.ErrNotFound
// for a new storm.
func (s *Store) GetLastRun(ctx context.Context, stormName string) (*domain.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT document, track_uids FROM runs
		WHERE storm_name = ?
		ORDER BY run_date DESC, rowid DESC
		LIMIT 1
	`, stormName)

	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("last run of %s: %w", stormName, ports.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last run: %w", err)
	}
	return rec, nil
}

// GetRunsSince returns the storm's runs with run_date strictly after since,
// oldest first. An empty since returns all runs.
func (s *Store) GetRunsSince(ctx context.Context, stormName, since string) ([]domain.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document, track_uids FROM runs
		WHERE storm_name = ? AND run_date > ?
		ORDER BY run_date ASC, rowid ASC
	`, stormName, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *rec)
	}
	return runs, rows.Err()
}

// SetRunTrackUIDs backfills the content-key set of one historical run.
func (s *Store) SetRunTrackUIDs(ctx context.Context, runID string, uids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var doc string
	if err := tx.QueryRowContext(ctx, "SELECT document FROM runs WHERE id = ?", runID).Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("run %s: %w", runID, ports.ErrNotFound)
		}
		return fmt.Errorf("failed to load run: %w", err)
	}

	var rec domain.RunRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return fmt.Errorf("failed to decode run: %w", err)
	}
	rec.TrackUIDs = uids
	rec.HasTrackUIDs = true

	newDoc, err := marshalJSON(rec)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	encodedUIDs, err := marshalJSON(uids)
	if err != nil {
		return fmt.Errorf("failed to encode track uids: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE runs SET document = ?, track_uids = ? WHERE id = ?", newDoc, encodedUIDs, runID); err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.RunRecord, error) {
	var doc string
	var uids sql.NullString
	if err := row.Scan(&doc, &uids); err != nil {
		return nil, err
	}

	var rec domain.RunRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, err
	}
	if uids.Valid {
		decoded, err := unmarshalIDs(uids.String)
		if err != nil {
			return nil, err
		}
		rec.TrackUIDs = decoded
		rec.HasTrackUIDs = true
	} else {
		rec.TrackUIDs = nil
		rec.HasTrackUIDs = false
	}
	return &rec, nil
}
