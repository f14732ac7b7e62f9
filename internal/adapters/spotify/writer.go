package spotify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	spotifyapi "github.com/zmb3/spotify/v2"

	"github.com/ewilliams-labs/storm/internal/core/ports"
)

// writeBatchSize stays well under the API's per-call track limit for playlist
// mutations.
const writeBatchSize = 50

// Writer implements ports.PlaylistWriter. Playlist mutation needs a
// user-scoped token, unlike the read side, so it carries its own client.
type Writer struct {
	api *spotifyapi.Client
	log zerolog.Logger
}

// compile-time interface assertion
var _ ports.PlaylistWriter = (*Writer)(nil)

// NewWriter constructs a Writer. httpClient must carry a token with the
// playlist-modify scopes.
func NewWriter(httpClient *http.Client, log zerolog.Logger) *Writer {
	return &Writer{
		api: spotifyapi.New(httpClient, spotifyapi.WithRetry(true)),
		log: log,
	}
}

// WritePlaylistTracks sets the playlist's contents to exactly trackIDs. The
// first batch replaces, later batches append; an empty trackIDs empties the
// playlist.
func (w *Writer) WritePlaylistTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	id := spotifyapi.ID(playlistID)

	if err := w.api.ReplacePlaylistTracks(ctx, id, firstBatch(trackIDs)...); err != nil {
		return fmt.Errorf("spotify: replace tracks in %s: %w", playlistID, err)
	}

	for start := writeBatchSize; start < len(trackIDs); start += writeBatchSize {
		end := start + writeBatchSize
		if end > len(trackIDs) {
			end = len(trackIDs)
		}
		batch := make([]spotifyapi.ID, 0, end-start)
		for _, trackID := range trackIDs[start:end] {
			batch = append(batch, spotifyapi.ID(trackID))
		}
		if _, err := w.api.AddTracksToPlaylist(ctx, id, batch...); err != nil {
			return fmt.Errorf("spotify: add tracks to %s: %w", playlistID, err)
		}
	}

	w.log.Debug().Str("playlist", playlistID).Int("tracks", len(trackIDs)).Msg("playlist written")
	return nil
}

func firstBatch(trackIDs []string) []spotifyapi.ID {
	n := len(trackIDs)
	if n > writeBatchSize {
		n = writeBatchSize
	}
	batch := make([]spotifyapi.ID, 0, n)
	for _, id := range trackIDs[:n] {
		batch = append(batch, spotifyapi.ID(id))
	}
	return batch
}
