package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ewilliams-labs/storm/internal/core/domain"
	"github.com/ewilliams-labs/storm/internal/core/ports"
)

// featureColumns maps audio-feature names onto their columns. Only these may
// appear in a feature filter.
var featureColumns = map[string]string{
	"danceability":     "danceability",
	"energy":           "energy",
	"key":              "pitch_key",
	"loudness":         "loudness",
	"mode":             "mode",
	"speechiness":      "speechiness",
	"acousticness":     "acousticness",
	"instrumentalness": "instrumentalness",
	"liveness":         "liveness",
	"valence":          "valence",
	"tempo":            "tempo",
	"time_signature":   "time_signature",
}

var compareOps = map[domain.CompareOp]string{
	domain.OpLT:  "<",
	domain.OpLTE: "<=",
	domain.OpGT:  ">",
	domain.OpGTE: ">=",
	domain.OpEQ:  "=",
	domain.OpNE:  "!=",
}

// GetKnownArtistIDs returns every artist ID in the store.
func (s *Store) GetKnownArtistIDs(ctx context.Context) ([]string, error) {
	ids, err := s.selectIDs(ctx, "SELECT id FROM artists")
	if err != nil {
		return nil, fmt.Errorf("failed to load known artists: %w", err)
	}
	return ids, nil
}

// UpdateArtists upserts artist records, leaving collection bookkeeping alone.
func (s *Store) UpdateArtists(ctx context.Context, artists []domain.ArtistInfo) error {
	if len(artists) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO artists (id, name, genres, followers, popularity)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			genres=excluded.genres,
			followers=excluded.followers,
			popularity=excluded.popularity
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range artists {
		genres, err := marshalJSON(a.Genres)
		if err != nil {
			return fmt.Errorf("failed to encode genres for %s: %w", a.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, a.ID, a.Name, genres, a.Followers, a.Popularity); err != nil {
			return fmt.Errorf("failed to save artist %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// GetArtistsByGenres returns artists tagged with all of the given genres.
func (s *Store) GetArtistsByGenres(ctx context.Context, genres []string) ([]string, error) {
	if len(genres) == 0 {
		return []string{}, nil
	}

	var sb strings.Builder
	sb.WriteString("SELECT id FROM artists WHERE 1=1")
	args := make([]any, 0, len(genres))
	for range genres {
		sb.WriteString(" AND EXISTS (SELECT 1 FROM json_each(artists.genres) WHERE json_each.value = ?)")
	}
	for _, g := range genres {
		args = append(args, g)
	}

	ids, err := s.selectIDs(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query artists by genres: %w", err)
	}
	return ids, nil
}

// GetArtistsForAlbumCollection returns artists whose album sweep predates
// maxDate (or never happened).
func (s *Store) GetArtistsForAlbumCollection(ctx context.Context, maxDate string) ([]string, error) {
	ids, err := s.selectIDs(ctx,
		"SELECT id FROM artists WHERE album_collected_date IS NULL OR album_collected_date < ?", maxDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load artists for album collection: %w", err)
	}
	return ids, nil
}

// UpdateArtistAlbumCollectedDate stamps the artists' album sweep date.
func (s *Store) UpdateArtistAlbumCollectedDate(ctx context.Context, artistIDs []string, date string) error {
	for _, chunk := range chunkIDs(artistIDs) {
		query := fmt.Sprintf("UPDATE artists SET album_collected_date = ? WHERE id IN (%s)", placeholders(len(chunk)))
		args := append([]any{date}, idArgs(chunk)...)
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update album collection dates: %w", err)
		}
	}
	return nil
}

// UpdateAlbums upserts album records. tracks_collected is deliberately left
// untouched so a metadata refresh can't re-queue an album's tracks.
func (s *Store) UpdateAlbums(ctx context.Context, albums []domain.AlbumInfo) error {
	if len(albums) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO albums (id, name, album_type, release_date, total_tracks, artists)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			album_type=excluded.album_type,
			release_date=excluded.release_date,
			total_tracks=excluded.total_tracks,
			artists=excluded.artists
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range albums {
		artists, err := marshalJSON(a.Artists)
		if err != nil {
			return fmt.Errorf("failed to encode artists for %s: %w", a.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, a.ID, a.Name, a.AlbumType, a.ReleaseDate, a.TotalTracks, artists); err != nil {
			return fmt.Errorf("failed to save album %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// GetAlbumsForTrackCollection returns albums still waiting on their tracks,
// not just this storm's. New storms backfill history this way.
func (s *Store) GetAlbumsForTrackCollection(ctx context.Context) ([]string, error) {
	ids, err := s.selectIDs(ctx, "SELECT id FROM albums WHERE tracks_collected = 0")
	if err != nil {
		return nil, fmt.Errorf("failed to load albums for track collection: %w", err)
	}
	return ids, nil
}

// GetAlbumsFromArtistsByDate returns albums by any of the artists released
// within [start, end].
func (s *Store) GetAlbumsFromArtistsByDate(ctx context.Context, artistIDs []string, start, end string) ([]string, error) {
	out := []string{}
	for _, chunk := range chunkIDs(artistIDs) {
		query := fmt.Sprintf(`
			SELECT DISTINCT albums.id FROM albums, json_each(albums.artists)
			WHERE json_each.value IN (%s) AND albums.release_date >= ? AND albums.release_date <= ?
		`, placeholders(len(chunk)))
		args := append(idArgs(chunk), start, end)
		ids, err := s.selectIDs(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query albums by date window: %w", err)
		}
		out = append(out, ids...)
	}
	return out, nil
}

// UpdateTracks upserts track records and marks their albums as collected.
func (s *Store) UpdateTracks(ctx context.Context, tracks []domain.TrackInfo) error {
	if len(tracks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tracks (id, name, album_id, artists, duration_ms, explicit, track_number)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			album_id=excluded.album_id,
			artists=excluded.artists,
			duration_ms=excluded.duration_ms,
			explicit=excluded.explicit,
			track_number=excluded.track_number
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	albumIDs := map[string]struct{}{}
	for _, t := range tracks {
		artists, err := marshalJSON(t.Artists)
		if err != nil {
			return fmt.Errorf("failed to encode artists for %s: %w", t.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, t.ID, t.Name, t.AlbumID, artists, t.DurationMS, t.Explicit, t.TrackNumber); err != nil {
			return fmt.Errorf("failed to save track %s: %w", t.ID, err)
		}
		if t.AlbumID != "" {
			albumIDs[t.AlbumID] = struct{}{}
		}
	}

	for albumID := range albumIDs {
		if _, err := tx.ExecContext(ctx, "UPDATE albums SET tracks_collected = 1 WHERE id = ?", albumID); err != nil {
			return fmt.Errorf("failed to mark album %s collected: %w", albumID, err)
		}
	}
	return tx.Commit()
}

// GetTracksFromAlbums returns the track IDs belonging to the albums.
func (s *Store) GetTracksFromAlbums(ctx context.Context, albumIDs []string) ([]string, error) {
	out := []string{}
	for _, chunk := range chunkIDs(albumIDs) {
		query := fmt.Sprintf("SELECT id FROM tracks WHERE album_id IN (%s)", placeholders(len(chunk)))
		ids, err := s.selectIDs(ctx, query, idArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to query tracks from albums: %w", err)
		}
		out = append(out, ids...)
	}
	return out, nil
}

// GetTracksForFeatureCollection returns tracks still waiting on features.
func (s *Store) GetTracksForFeatureCollection(ctx context.Context) ([]string, error) {
	ids, err := s.selectIDs(ctx, "SELECT id FROM tracks WHERE features_collected = 0")
	if err != nil {
		return nil, fmt.Errorf("failed to load tracks for feature collection: %w", err)
	}
	return ids, nil
}

// UpdateTrackFeatures writes audio features onto existing track rows.
func (s *Store) UpdateTrackFeatures(ctx context.Context, features []domain.TrackFeatures) error {
	if len(features) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE tracks SET
			danceability = ?, energy = ?, pitch_key = ?, loudness = ?, mode = ?,
			speechiness = ?, acousticness = ?, instrumentalness = ?, liveness = ?,
			valence = ?, tempo = ?, time_signature = ?, features_collected = 1
		WHERE id = ?
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range features {
		if _, err := stmt.ExecContext(ctx,
			f.Danceability, f.Energy, f.PitchKey, f.Loudness, f.Mode,
			f.Speechiness, f.Acousticness, f.Instrumentalness, f.Liveness,
			f.Valence, f.Tempo, f.TimeSignature, f.ID,
		); err != nil {
			return fmt.Errorf("failed to save features for %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

// FilterTracksByAudioFeature returns the subset of trackIDs whose feature
// value satisfies the rule. Tracks without collected features never match.
func (s *Store) FilterTracksByAudioFeature(ctx context.Context, trackIDs []string, rule domain.FeatureRule) ([]string, error) {
	column, ok := featureColumns[rule.Feature]
	if !ok {
		return nil, fmt.Errorf("unknown audio feature %q", rule.Feature)
	}
	op, ok := compareOps[rule.Op]
	if !ok {
		return nil, fmt.Errorf("unknown comparison operator %q", rule.Op)
	}

	out := []string{}
	for _, chunk := range chunkIDs(trackIDs) {
		query := fmt.Sprintf("SELECT id FROM tracks WHERE id IN (%s) AND %s %s ?", placeholders(len(chunk)), column, op)
		args := append(idArgs(chunk), rule.Threshold)
		ids, err := s.selectIDs(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to filter tracks by %s: %w", rule.Feature, err)
		}
		out = append(out, ids...)
	}
	return out, nil
}

// GetTrackArtists returns a track's artist IDs.
func (s *Store) GetTrackArtists(ctx context.Context, trackID string) ([]string, error) {
	row := s.db.QueryRowContext(ctx, "SELECT artists FROM tracks WHERE id = ?", trackID)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("track %s: %w", trackID, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load track artists: %w", err)
	}

	ids, err := unmarshalIDs(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode track artists: %w", err)
	}
	return ids, nil
}

// GetTrackInfo returns the persisted records for the given tracks; unknown
// IDs are simply absent from the result.
func (s *Store) GetTrackInfo(ctx context.Context, trackIDs []string) ([]domain.TrackInfo, error) {
	out := []domain.TrackInfo{}
	for _, chunk := range chunkIDs(trackIDs) {
		query := fmt.Sprintf(`
			SELECT id, name, album_id, artists, duration_ms, explicit, track_number
			FROM tracks WHERE id IN (%s)
		`, placeholders(len(chunk)))
		rows, err := s.db.QueryContext(ctx, query, idArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to load track info: %w", err)
		}

		for rows.Next() {
			var t domain.TrackInfo
			var name, albumID sql.NullString
			var raw string
			var duration, trackNumber sql.NullInt64
			var explicit sql.NullBool
			if err := rows.Scan(&t.ID, &name, &albumID, &raw, &duration, &explicit, &trackNumber); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan track: %w", err)
			}
			t.Name = name.String
			t.AlbumID = albumID.String
			t.DurationMS = int(duration.Int64)
			t.Explicit = explicit.Bool
			t.TrackNumber = int(trackNumber.Int64)
			if t.Artists, err = unmarshalIDs(raw); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to decode track artists: %w", err)
			}
			out = append(out, t)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}
