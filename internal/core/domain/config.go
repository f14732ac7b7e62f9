package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidConfig marks a storm configuration that is structurally unusable.
// A runner must refuse to start on it.
var ErrInvalidConfig = errors.New("domain: invalid storm config")

// Filter kind names recognized by the filter engine. Anything else found in a
// configuration is logged and skipped.
const (
	FilterKindGenre        = "genre"
	FilterKindBlacklist    = "blacklist"
	FilterKindAudioFeature = "audio_features"
	FilterKindArtistPolicy = "artist_filter"
)

// ArtistFilterPolicy controls how a track's artist set is matched against the
// run's surviving artists.
type ArtistFilterPolicy string

const (
	// ArtistFilterHard keeps a track only when every one of its artists
	// survived the artist filter.
	ArtistFilterHard ArtistFilterPolicy = "hard"
	// ArtistFilterSoft removes a track only when one of its artists was
	// explicitly filtered out.
	ArtistFilterSoft ArtistFilterPolicy = "soft"
)

// StormConfig is the immutable per-storm curation configuration, loaded once
// per run by name. Mutating it is out of scope for the runner.
type StormConfig struct {
	Name                     string                     `json:"name"`
	UserID                   string                     `json:"user_id"`
	GreatTargets             string                     `json:"great_targets"`
	GoodTargets              string                     `json:"good_targets"`
	AdditionalInputPlaylists *AdditionalInputPlaylists  `json:"additional_input_playlists,omitempty"`
	FullStormDelivery        PlaylistRef                `json:"full_storm_delivery"`
	RollingGood              *PlaylistRef               `json:"rolling_good,omitempty"`
	Filters                  FilterConfig               `json:"filters"`
}

// AdditionalInputPlaylists lists extra input playlists beyond the great/good
// targets, keyed by a human label.
type AdditionalInputPlaylists struct {
	IsActive  bool              `json:"is_active"`
	Playlists map[string]string `json:"playlists"`
}

// PlaylistRef wraps a playlist ID used as a delivery or archive target.
type PlaylistRef struct {
	Playlist string `json:"playlist"`
}

// FilterConfig carries the artist- and track-level filter blocks. Values stay
// raw: each filter kind owns its own value shape and decodes it in its
// handler, so an unsupported kind never breaks config loading.
type FilterConfig struct {
	Artist map[string]json.RawMessage `json:"artist"`
	Track  map[string]json.RawMessage `json:"track"`
}

// Validate checks the structural requirements for running a storm: the source
// account, both target playlists and the delivery playlist must be present,
// and any recognized filter values must decode. Unrecognized filter kinds are
// not an error here; the engine skips them at run time.
func (c StormConfig) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("%w: missing user_id", ErrInvalidConfig)
	}
	if c.GreatTargets == "" {
		return fmt.Errorf("%w: missing great_targets", ErrInvalidConfig)
	}
	if c.GoodTargets == "" {
		return fmt.Errorf("%w: missing good_targets", ErrInvalidConfig)
	}
	if c.FullStormDelivery.Playlist == "" {
		return fmt.Errorf("%w: missing full_storm_delivery.playlist", ErrInvalidConfig)
	}

	if raw, ok := c.Filters.Track[FilterKindAudioFeature]; ok {
		var rules map[string]string
		if err := json.Unmarshal(raw, &rules); err != nil {
			return fmt.Errorf("%w: audio_features: %v", ErrInvalidConfig, err)
		}
		for feature, expr := range rules {
			if _, err := ParseFeatureExpr(feature, expr); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
		}
	}
	if raw, ok := c.Filters.Track[FilterKindArtistPolicy]; ok {
		var policy ArtistFilterPolicy
		if err := json.Unmarshal(raw, &policy); err != nil {
			return fmt.Errorf("%w: artist_filter: %v", ErrInvalidConfig, err)
		}
		if policy != ArtistFilterHard && policy != ArtistFilterSoft {
			return fmt.Errorf("%w: artist_filter must be %q or %q, got %q",
				ErrInvalidConfig, ArtistFilterHard, ArtistFilterSoft, policy)
		}
	}

	return nil
}

// InputPlaylists returns the great/good targets plus any active additional
// input playlists, in a stable order.
func (c StormConfig) InputPlaylists() []string {
	out := []string{c.GreatTargets, c.GoodTargets}
	if c.AdditionalInputPlaylists != nil && c.AdditionalInputPlaylists.IsActive {
		labels := make([]string, 0, len(c.AdditionalInputPlaylists.Playlists))
		for label := range c.AdditionalInputPlaylists.Playlists {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			out = append(out, c.AdditionalInputPlaylists.Playlists[label])
		}
	}
	return out
}
