// Package spotify adapts the Spotify Web API to the source ports. All reads
// go through batched endpoints; callers never see pagination.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	spotifyapi "github.com/zmb3/spotify/v2"

	"github.com/ewilliams-labs/storm/internal/core/domain"
	"github.com/ewilliams-labs/storm/internal/core/ports"
)

const (
	artistBatchSize  = 50
	trackBatchSize   = 50
	featureBatchSize = 100
)

// albumMarket pins album availability to one market so the same artist sweep
// yields the same albums everywhere.
const albumMarket = "US"

// Client implements ports.SourceProvider over the Spotify Web API.
type Client struct {
	api *spotifyapi.Client
	log zerolog.Logger
}

// compile-time interface assertion
var _ ports.SourceProvider = (*Client)(nil)

// NewClient constructs a Client. httpClient must already carry credentials,
// typically an oauth2 client-credentials transport.
func NewClient(httpClient *http.Client, log zerolog.Logger) *Client {
	return &Client{
		api: spotifyapi.New(httpClient, spotifyapi.WithRetry(true)),
		log: log,
	}
}

// GetPlaylistInfo returns a playlist's metadata.
func (c *Client) GetPlaylistInfo(ctx context.Context, playlistID string) (domain.PlaylistMeta, error) {
	pl, err := c.api.GetPlaylist(ctx, spotifyapi.ID(playlistID))
	if err != nil {
		return domain.PlaylistMeta{}, fmt.Errorf("spotify: get playlist %s: %w", playlistID, err)
	}
	return domain.PlaylistMeta{
		ID:          string(pl.ID),
		Name:        pl.Name,
		Owner:       pl.Owner.ID,
		Description: pl.Description,
		SnapshotID:  pl.SnapshotID,
	}, nil
}

// GetPlaylistTracks returns the unique track IDs in the playlist. Local files
// and episodes carry no usable ID and are skipped.
func (c *Client) GetPlaylistTracks(ctx context.Context, playlistID string) ([]string, error) {
	page, err := c.api.GetPlaylistItems(ctx, spotifyapi.ID(playlistID))
	if err != nil {
		return nil, fmt.Errorf("spotify: get playlist items %s: %w", playlistID, err)
	}

	seen := map[string]struct{}{}
	tracks := []string{}
	for {
		for _, item := range page.Items {
			track := item.Track.Track
			if track == nil || track.ID == "" {
				continue
			}
			id := string(track.ID)
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			tracks = append(tracks, id)
		}

		err = c.api.NextPage(ctx, page)
		if errors.Is(err, spotifyapi.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("spotify: page playlist items %s: %w", playlistID, err)
		}
	}
	return tracks, nil
}

// GetArtistsFromTracks returns the unique artist IDs across the tracks.
func (c *Client) GetArtistsFromTracks(ctx context.Context, trackIDs []string) ([]string, error) {
	seen := map[string]struct{}{}
	artists := []string{}
	for _, batch := range batchIDs(trackIDs, trackBatchSize) {
		tracks, err := c.api.GetTracks(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("spotify: get tracks: %w", err)
		}
		for _, track := range tracks {
			if track == nil {
				continue
			}
			for _, artist := range track.Artists {
				id := string(artist.ID)
				if id == "" {
					continue
				}
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				artists = append(artists, id)
			}
		}
	}
	return artists, nil
}

// GetArtistInfo returns full artist records.
func (c *Client) GetArtistInfo(ctx context.Context, artistIDs []string) ([]domain.ArtistInfo, error) {
	out := []domain.ArtistInfo{}
	for _, batch := range batchIDs(artistIDs, artistBatchSize) {
		artists, err := c.api.GetArtists(ctx, batch...)
		if err != nil {
			return nil, fmt.Errorf("spotify: get artists: %w", err)
		}
		for _, a := range artists {
			if a == nil {
				continue
			}
			genres := a.Genres
			if genres == nil {
				genres = []string{}
			}
			out = append(out, domain.ArtistInfo{
				ID:         string(a.ID),
				Name:       a.Name,
				Genres:     genres,
				Followers:  int(a.Followers.Count),
				Popularity: int(a.Popularity),
			})
		}
	}
	return out, nil
}

// GetArtistAlbums returns albums and singles for each artist. The API only
// serves one artist per call, so this costs at least one call per artist.
func (c *Client) GetArtistAlbums(ctx context.Context, artistIDs []string) ([]domain.AlbumInfo, error) {
	albumTypes := []spotifyapi.AlbumType{spotifyapi.AlbumTypeAlbum, spotifyapi.AlbumTypeSingle}

	seen := map[string]struct{}{}
	out := []domain.AlbumInfo{}
	for _, artistID := range artistIDs {
		page, err := c.api.GetArtistAlbums(ctx, spotifyapi.ID(artistID), albumTypes,
			spotifyapi.Market(albumMarket), spotifyapi.Limit(50))
		if err != nil {
			return nil, fmt.Errorf("spotify: get albums for artist %s: %w", artistID, err)
		}

		for {
			for _, album := range page.Albums {
				id := string(album.ID)
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}

				artists := make([]string, 0, len(album.Artists))
				for _, a := range album.Artists {
					artists = append(artists, string(a.ID))
				}
				out = append(out, domain.AlbumInfo{
					ID:          id,
					Name:        album.Name,
					AlbumType:   album.AlbumType,
					ReleaseDate: album.ReleaseDate,
					TotalTracks: int(album.TotalTracks),
					Artists:     artists,
				})
			}

			err = c.api.NextPage(ctx, page)
			if errors.Is(err, spotifyapi.ErrNoMorePages) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("spotify: page albums for artist %s: %w", artistID, err)
			}
		}
	}
	return out, nil
}

// GetAlbumTracks returns the track records of each album.
func (c *Client) GetAlbumTracks(ctx context.Context, albumIDs []string) ([]domain.TrackInfo, error) {
	out := []domain.TrackInfo{}
	for _, albumID := range albumIDs {
		page, err := c.api.GetAlbumTracks(ctx, spotifyapi.ID(albumID), spotifyapi.Limit(50))
		if err != nil {
			return nil, fmt.Errorf("spotify: get tracks for album %s: %w", albumID, err)
		}

		for {
			for _, track := range page.Tracks {
				artists := make([]string, 0, len(track.Artists))
				for _, a := range track.Artists {
					artists = append(artists, string(a.ID))
				}
				out = append(out, domain.TrackInfo{
					ID:          string(track.ID),
					Name:        track.Name,
					AlbumID:     albumID,
					Artists:     artists,
					DurationMS:  int(track.Duration),
					Explicit:    track.Explicit,
					TrackNumber: int(track.TrackNumber),
				})
			}

			err = c.api.NextPage(ctx, page)
			if errors.Is(err, spotifyapi.ErrNoMorePages) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("spotify: page tracks for album %s: %w", albumID, err)
			}
		}
	}
	return out, nil
}

// GetTrackFeatures returns audio features for the tracks. Tracks the API has
// no analysis for are absent from the result.
func (c *Client) GetTrackFeatures(ctx context.Context, trackIDs []string) ([]domain.TrackFeatures, error) {
	out := []domain.TrackFeatures{}
	for _, batch := range batchIDs(trackIDs, featureBatchSize) {
		features, err := c.api.GetAudioFeatures(ctx, batch...)
		if err != nil {
			return nil, fmt.Errorf("spotify: get audio features: %w", err)
		}
		for _, f := range features {
			if f == nil {
				continue
			}
			out = append(out, domain.TrackFeatures{
				ID:               string(f.ID),
				Danceability:     float64(f.Danceability),
				Energy:           float64(f.Energy),
				PitchKey:         int(f.Key),
				Loudness:         float64(f.Loudness),
				Mode:             int(f.Mode),
				Speechiness:      float64(f.Speechiness),
				Acousticness:     float64(f.Acousticness),
				Instrumentalness: float64(f.Instrumentalness),
				Liveness:         float64(f.Liveness),
				Valence:          float64(f.Valence),
				Tempo:            float64(f.Tempo),
				TimeSignature:    int(f.TimeSignature),
			})
		}
	}
	return out, nil
}

func batchIDs(ids []string, size int) [][]spotifyapi.ID {
	var out [][]spotifyapi.ID
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batch := make([]spotifyapi.ID, 0, end-start)
		for _, id := range ids[start:end] {
			batch = append(batch, spotifyapi.ID(id))
		}
		out = append(out, batch)
	}
	return out
}
