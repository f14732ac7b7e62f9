package ports

import "context"

// TrackRanker reorders candidate tracks using the good/great target playlists
// as reference sets. It is optional: a runner without one delivers tracks in
// filter order.
type TrackRanker interface {
	RankTracks(ctx context.Context, trackIDs []string, goodPlaylistID, greatPlaylistID string) ([]string, error)
}
