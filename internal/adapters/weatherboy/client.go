// Package weatherboy is a thin client for the external track-ranking service.
package weatherboy

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/storm/internal/core/ports"
)

// Client implements ports.TrackRanker against the weatherboy HTTP API.
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

// compile-time interface assertion
var _ ports.TrackRanker = (*Client)(nil)

// NewClient constructs a Client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2)
	return &Client{http: httpClient, log: log}
}

type rankRequest struct {
	Tracks        []string `json:"tracks"`
	GoodPlaylist  string   `json:"good_playlist"`
	GreatPlaylist string   `json:"great_playlist"`
}

type rankResponse struct {
	Tracks []string `json:"tracks"`
}

// RankTracks posts the candidate tracks and returns them in the service's
// order. The response must be a permutation of the request; a short or padded
// response is rejected so a broken model can't drop tracks silently.
func (c *Client) RankTracks(ctx context.Context, trackIDs []string, goodPlaylistID, greatPlaylistID string) ([]string, error) {
	if len(trackIDs) == 0 {
		return []string{}, nil
	}

	var ranked rankResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rankRequest{Tracks: trackIDs, GoodPlaylist: goodPlaylistID, GreatPlaylist: greatPlaylistID}).
		SetResult(&ranked).
		Post("/rank")
	if err != nil {
		return nil, fmt.Errorf("weatherboy: rank request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("weatherboy: rank request: status %d", resp.StatusCode())
	}

	if len(ranked.Tracks) != len(trackIDs) {
		return nil, fmt.Errorf("weatherboy: ranked %d tracks, sent %d", len(ranked.Tracks), len(trackIDs))
	}

	c.log.Debug().Int("tracks", len(ranked.Tracks)).Msg("tracks ranked")
	return ranked.Tracks, nil
}
