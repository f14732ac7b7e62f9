package ports

import (
	"context"

	"github.com/ewilliams-labs/storm/internal/core/domain"
)

// SourceProvider is the read side of the streaming-service API: batched
// lookups over playlists, artists, albums and track features. Calls may fail
// transiently; the caller owns retry policy.
type SourceProvider interface {
	GetPlaylistInfo(ctx context.Context, playlistID string) (domain.PlaylistMeta, error)
	GetPlaylistTracks(ctx context.Context, playlistID string) ([]string, error)
	// GetArtistsFromTracks returns the unique artist IDs across all given
	// tracks, not split per track.
	GetArtistsFromTracks(ctx context.Context, trackIDs []string) ([]string, error)
	GetArtistInfo(ctx context.Context, artistIDs []string) ([]domain.ArtistInfo, error)
	GetArtistAlbums(ctx context.Context, artistIDs []string) ([]domain.AlbumInfo, error)
	GetAlbumTracks(ctx context.Context, albumIDs []string) ([]domain.TrackInfo, error)
	GetTrackFeatures(ctx context.Context, trackIDs []string) ([]domain.TrackFeatures, error)
}

// PlaylistWriter is the write side of the streaming-service API. The first
// batch replaces the playlist's contents and later batches append, keeping
// the call count proportional to len(trackIDs)/batch size.
type PlaylistWriter interface {
	WritePlaylistTracks(ctx context.Context, playlistID string, trackIDs []string) error
}
