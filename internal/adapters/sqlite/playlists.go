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

// GetPlaylistCollectionDate returns the playlist's last collection date, or
// ports.ErrNotFound if the playlist has never been collected.
func (s *Store) GetPlaylistCollectionDate(ctx context.Context, playlistID string) (string, error) {
	row := s.db.QueryRowContext(ctx, "SELECT last_collected FROM playlists WHERE id = ?", playlistID)
	var collected sql.NullString
	if err := row.Scan(&collected); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("playlist %s: %w", playlistID, ports.ErrNotFound)
		}
		return "", fmt.Errorf("failed to load playlist collection date: %w", err)
	}
	return collected.String, nil
}

// GetLoadedPlaylistTracks returns the track set of the stored snapshot.
func (s *Store) GetLoadedPlaylistTracks(ctx context.Context, playlistID string) ([]string, error) {
	return s.loadPlaylistIDSet(ctx, playlistID, "tracks")
}

// GetLoadedPlaylistArtists returns the artist set of the stored snapshot.
func (s *Store) GetLoadedPlaylistArtists(ctx context.Context, playlistID string) ([]string, error) {
	return s.loadPlaylistIDSet(ctx, playlistID, "artists")
}

func (s *Store) loadPlaylistIDSet(ctx context.Context, playlistID, column string) ([]string, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM playlists WHERE id = ?", column), playlistID)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("playlist %s: %w", playlistID, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load playlist %s: %w", column, err)
	}

	ids, err := unmarshalIDs(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode playlist %s: %w", column, err)
	}
	return ids, nil
}

// UpdatePlaylist upserts a playlist snapshot, folding the stored changelog
// into the new one so history survives snapshots that carry none.
func (s *Store) UpdatePlaylist(ctx context.Context, snapshot domain.PlaylistSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	changelog := map[string]domain.PlaylistChange{}
	var rawChangelog string
	err = tx.QueryRowContext(ctx, "SELECT changelog FROM playlists WHERE id = ?", snapshot.Meta.ID).Scan(&rawChangelog)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to load playlist changelog: %w", err)
	}
	if rawChangelog != "" {
		if err := json.Unmarshal([]byte(rawChangelog), &changelog); err != nil {
			return fmt.Errorf("failed to decode playlist changelog: %w", err)
		}
	}
	for date, change := range snapshot.Changelog {
		changelog[date] = change
	}
	if snapshot.LastCollected != "" {
		changelog[snapshot.LastCollected] = domain.PlaylistChange{
			Tracks:  snapshot.Tracks,
			Artists: snapshot.Artists,
		}
	}

	tracks, err := marshalJSON(snapshot.Tracks)
	if err != nil {
		return fmt.Errorf("failed to encode playlist tracks: %w", err)
	}
	artists, err := marshalJSON(snapshot.Artists)
	if err != nil {
		return fmt.Errorf("failed to encode playlist artists: %w", err)
	}
	encodedChangelog, err := marshalJSON(changelog)
	if err != nil {
		return fmt.Errorf("failed to encode playlist changelog: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO playlists (id, name, owner, description, snapshot_id, last_collected, tracks, artists, changelog)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			owner=excluded.owner,
			description=excluded.description,
			snapshot_id=excluded.snapshot_id,
			last_collected=excluded.last_collected,
			tracks=excluded.tracks,
			artists=excluded.artists,
			changelog=excluded.changelog
	`, snapshot.Meta.ID, snapshot.Meta.Name, snapshot.Meta.Owner, snapshot.Meta.Description,
		snapshot.Meta.SnapshotID, snapshot.LastCollected, tracks, artists, encodedChangelog)
	if err != nil {
		return fmt.Errorf("failed to save playlist %s: %w", snapshot.Meta.ID, err)
	}
	return tx.Commit()
}

// GetBlacklist returns the named blacklist, or ports.ErrNotFound.
func (s *Store) GetBlacklist(ctx context.Context, name string) (*domain.Blacklist, error) {
	row := s.db.QueryRowContext(ctx, "SELECT input_playlist, artists FROM blacklists WHERE name = ?", name)
	var input sql.NullString
	var raw string
	if err := row.Scan(&input, &raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("blacklist %s: %w", name, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load blacklist: %w", err)
	}

	artists, err := unmarshalIDs(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode blacklist artists: %w", err)
	}
	return &domain.Blacklist{Name: name, InputPlaylist: input.String, Artists: artists}, nil
}

// UpdateBlacklist replaces the blacklist's artist set, preserving its input
// playlist binding.
func (s *Store) UpdateBlacklist(ctx context.Context, name string, artistIDs []string) error {
	artists, err := marshalJSON(artistIDs)
	if err != nil {
		return fmt.Errorf("failed to encode blacklist artists: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO blacklists (name, artists) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET artists=excluded.artists
	`, name, artists)
	if err != nil {
		return fmt.Errorf("failed to save blacklist %s: %w", name, err)
	}
	return nil
}

// SaveBlacklist upserts a full blacklist record, input playlist included.
// Blacklist definition is an operator task, not part of a run.
func (s *Store) SaveBlacklist(ctx context.Context, bl domain.Blacklist) error {
	artists, err := marshalJSON(bl.Artists)
	if err != nil {
		return fmt.Errorf("failed to encode blacklist artists: %w", err)
	}
	var input any
	if bl.InputPlaylist != "" {
		input = bl.InputPlaylist
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO blacklists (name, input_playlist, artists) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			input_playlist=excluded.input_playlist,
			artists=excluded.artists
	`, bl.Name, input, artists)
	if err != nil {
		return fmt.Errorf("failed to save blacklist %s: %w", bl.Name, err)
	}
	return nil
}
