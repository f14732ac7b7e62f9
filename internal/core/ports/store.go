// Package ports declares the capability interfaces the core services depend
// on. Adapters implement them; services never import adapters.
package ports

import (
	"context"
	"errors"

	"github.com/ewilliams-labs/storm/internal/core/domain"
)

// ErrNotFound indicates a requested record does not exist in the store.
var ErrNotFound = errors.New("ports: not found")

// StormStore is the persistence gateway: get/update operations over configs,
// runs, artists, albums, tracks, playlists and blacklists, keyed by opaque
// string IDs. Writes are upserts, so repeating a write of the same key is
// safe; the "needs collection" queries are always re-derived from persisted
// state, never from a run's in-memory lists.
type StormStore interface {
	// Configs and runs.
	GetConfig(ctx context.Context, name string) (domain.StormConfig, error)
	GetLastRun(ctx context.Context, stormName string) (*domain.RunRecord, error)
	// GetRunsSince returns every run of the storm with run_date strictly
	// after since; an empty since returns all runs.
	GetRunsSince(ctx context.Context, stormName, since string) ([]domain.RunRecord, error)
	WriteRunRecord(ctx context.Context, rec domain.RunRecord) error
	// SetRunTrackUIDs backfills the content-key set of a historical run.
	// It is the only permitted mutation of a persisted run record.
	SetRunTrackUIDs(ctx context.Context, runID string, uids []string) error

	// Artists.
	GetKnownArtistIDs(ctx context.Context) ([]string, error)
	UpdateArtists(ctx context.Context, artists []domain.ArtistInfo) error
	// GetArtistsByGenres returns artists tagged with all of the given genres.
	GetArtistsByGenres(ctx context.Context, genres []string) ([]string, error)
	GetArtistsForAlbumCollection(ctx context.Context, maxDate string) ([]string, error)
	UpdateArtistAlbumCollectedDate(ctx context.Context, artistIDs []string, date string) error

	// Albums.
	UpdateAlbums(ctx context.Context, albums []domain.AlbumInfo) error
	GetAlbumsForTrackCollection(ctx context.Context) ([]string, error)
	GetAlbumsFromArtistsByDate(ctx context.Context, artistIDs []string, start, end string) ([]string, error)

	// Tracks.
	UpdateTracks(ctx context.Context, tracks []domain.TrackInfo) error
	GetTracksFromAlbums(ctx context.Context, albumIDs []string) ([]string, error)
	GetTracksForFeatureCollection(ctx context.Context) ([]string, error)
	UpdateTrackFeatures(ctx context.Context, features []domain.TrackFeatures) error
	// FilterTracksByAudioFeature returns the subset of trackIDs whose
	// feature value satisfies the rule's comparison.
	FilterTracksByAudioFeature(ctx context.Context, trackIDs []string, rule domain.FeatureRule) ([]string, error)
	GetTrackArtists(ctx context.Context, trackID string) ([]string, error)
	GetTrackInfo(ctx context.Context, trackIDs []string) ([]domain.TrackInfo, error)

	// Blacklists.
	GetBlacklist(ctx context.Context, name string) (*domain.Blacklist, error)
	UpdateBlacklist(ctx context.Context, name string, artistIDs []string) error

	// Playlists.
	GetPlaylistCollectionDate(ctx context.Context, playlistID string) (string, error)
	GetLoadedPlaylistTracks(ctx context.Context, playlistID string) ([]string, error)
	GetLoadedPlaylistArtists(ctx context.Context, playlistID string) ([]string, error)
	UpdatePlaylist(ctx context.Context, snapshot domain.PlaylistSnapshot) error
}
