package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/storm/internal/core/domain"
	"github.com/ewilliams-labs/storm/internal/core/ports"
)

// filterEngine applies the configured artist and track filters over in-memory
// ID sets. Filter kinds are dispatched through handler maps; an unsupported
// kind logs a warning and is skipped, and a handler failure degrades to "no
// removals" rather than aborting the run.
//
// source may be nil (replay mode); blacklist refresh from a playlist is then
// skipped and the persisted blacklist used as-is.
type filterEngine struct {
	store  ports.StormStore
	source ports.SourceProvider
	log    zerolog.Logger
}

type artistFilterHandler func(ctx context.Context, e *filterEngine, raw json.RawMessage, exclusions stringSet) error

var artistFilterHandlers = map[string]artistFilterHandler{
	domain.FilterKindGenre:     excludeArtistsByGenre,
	domain.FilterKindBlacklist: excludeArtistsByBlacklist,
}

// applyArtistFilters computes the surviving artists and the removed ones.
// Survivors are input minus every exclusion; removed is exclusions ∩ input,
// which feeds the soft track filter. Output has set semantics only.
func (e *filterEngine) applyArtistFilters(ctx context.Context, filters map[string]json.RawMessage, inputArtists []string) (stormArtists, removedArtists []string) {
	exclusions := stringSet{}
	for _, name := range sortedKeys(filters) {
		handler, ok := artistFilterHandlers[name]
		if !ok {
			e.log.Warn().Str("filter", name).Msg("artist filter not supported or misspelled, skipping")
			continue
		}
		if err := handler(ctx, e, filters[name], exclusions); err != nil {
			e.log.Warn().Err(err).Str("filter", name).Msg("artist filter failed, no filtering applied for it")
		}
	}

	stormArtists = subtract(inputArtists, exclusions)
	removedArtists = intersect(inputArtists, exclusions)
	e.log.Info().
		Int("input_artists", len(inputArtists)).
		Int("storm_artists", len(stormArtists)).
		Msg("artist filters applied")
	return stormArtists, removedArtists
}

func excludeArtistsByGenre(ctx context.Context, e *filterEngine, raw json.RawMessage, exclusions stringSet) error {
	var genres []string
	if err := json.Unmarshal(raw, &genres); err != nil {
		return err
	}
	ids, err := e.store.GetArtistsByGenres(ctx, genres)
	if err != nil {
		return err
	}
	exclusions.addAll(ids)
	return nil
}

func excludeArtistsByBlacklist(ctx context.Context, e *filterEngine, raw json.RawMessage, exclusions stringSet) error {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return err
	}

	bl, err := e.store.GetBlacklist(ctx, name)
	if errors.Is(err, ports.ErrNotFound) {
		e.log.Warn().Str("blacklist", name).Msg("blacklist not found, no filtering will be done")
		return nil
	}
	if err != nil {
		return err
	}

	// Playlist-sourced blacklists refresh before use so newly added artists
	// take effect the same run.
	if bl.InputPlaylist != "" && e.source != nil {
		if err := e.refreshBlacklist(ctx, bl); err != nil {
			e.log.Warn().Err(err).Str("blacklist", name).Msg("blacklist refresh failed, using persisted set")
		} else if bl, err = e.store.GetBlacklist(ctx, name); err != nil {
			return err
		}
	}

	exclusions.addAll(bl.Artists)
	return nil
}

func (e *filterEngine) refreshBlacklist(ctx context.Context, bl *domain.Blacklist) error {
	tracks, err := e.source.GetPlaylistTracks(ctx, bl.InputPlaylist)
	if err != nil {
		return err
	}
	artists, err := e.source.GetArtistsFromTracks(ctx, tracks)
	if err != nil {
		return err
	}
	return e.store.UpdateBlacklist(ctx, bl.Name, artists)
}

// trackFilterInput is the shared state a track filter handler reads from and
// accumulates removals into.
type trackFilterInput struct {
	eligible       []string
	stormArtists   stringSet
	removedArtists stringSet
	removals       stringSet
}

type trackFilterHandler func(ctx context.Context, e *filterEngine, raw json.RawMessage, in *trackFilterInput) error

var trackFilterHandlers = map[string]trackFilterHandler{
	domain.FilterKindAudioFeature: removeTracksByAudioFeatures,
	domain.FilterKindArtistPolicy: removeTracksByArtistPolicy,
}

// applyTrackFilters computes the delivered tracks and the removed ones.
// Filters compose by union of removals: a track is removed if any filter
// rejects it.
func (e *filterEngine) applyTrackFilters(ctx context.Context, filters map[string]json.RawMessage, eligible, stormArtists, removedArtists []string) (stormTracks, removedTracks []string) {
	in := &trackFilterInput{
		eligible:       eligible,
		stormArtists:   newStringSet(stormArtists),
		removedArtists: newStringSet(removedArtists),
		removals:       stringSet{},
	}

	for _, name := range sortedKeys(filters) {
		handler, ok := trackFilterHandlers[name]
		if !ok {
			e.log.Warn().Str("filter", name).Msg("track filter not supported or misspelled, skipping")
			continue
		}
		if err := handler(ctx, e, filters[name], in); err != nil {
			e.log.Warn().Err(err).Str("filter", name).Msg("track filter failed, no filtering applied for it")
		}
	}

	stormTracks = subtract(eligible, in.removals)
	removedTracks = intersect(eligible, in.removals)
	e.log.Info().
		Int("eligible_tracks", len(eligible)).
		Int("storm_tracks", len(stormTracks)).
		Msg("track filters applied")
	return stormTracks, removedTracks
}

func removeTracksByAudioFeatures(ctx context.Context, e *filterEngine, raw json.RawMessage, in *trackFilterInput) error {
	var rules map[string]string
	if err := json.Unmarshal(raw, &rules); err != nil {
		return err
	}

	for _, feature := range sortedKeys(rules) {
		rule, err := domain.ParseFeatureExpr(feature, rules[feature])
		if err != nil {
			e.log.Warn().Err(err).Str("feature", feature).Msg("bad feature expression, skipping")
			continue
		}

		valid, err := e.store.FilterTracksByAudioFeature(ctx, in.eligible, rule)
		if err != nil {
			e.log.Warn().Err(err).Str("feature", feature).Msg("feature query failed, skipping")
			continue
		}

		validSet := newStringSet(valid)
		for _, id := range in.eligible {
			if !validSet.has(id) {
				in.removals.add(id)
			}
		}
	}
	return nil
}

func removeTracksByArtistPolicy(ctx context.Context, e *filterEngine, raw json.RawMessage, in *trackFilterInput) error {
	var policy domain.ArtistFilterPolicy
	if err := json.Unmarshal(raw, &policy); err != nil {
		return err
	}

	for _, trackID := range in.eligible {
		artists, err := e.store.GetTrackArtists(ctx, trackID)
		if err != nil {
			// Malformed or unknown track: treat as "no artists". Availability
			// over strictness, except under the hard policy below.
			e.log.Debug().Err(err).Str("track", trackID).Msg("track artist lookup failed")
			artists = nil
		}

		switch policy {
		case domain.ArtistFilterHard:
			// Strict containment: every artist must have survived the artist
			// filter. A track with no resolvable artists fails too; the
			// strictest policy should not trust records it cannot verify.
			if len(artists) == 0 {
				in.removals.add(trackID)
				continue
			}
			for _, a := range artists {
				if !in.stormArtists.has(a) {
					in.removals.add(trackID)
					break
				}
			}
		case domain.ArtistFilterSoft:
			// Only exclude tracks with a known-bad collaborator; unknown
			// artists are tolerated.
			for _, a := range artists {
				if in.removedArtists.has(a) {
					in.removals.add(trackID)
					break
				}
			}
		default:
			e.log.Warn().Str("policy", string(policy)).Msg("unknown artist filter policy, skipping")
			return nil
		}
	}
	return nil
}

// sortedKeys returns map keys in sorted order. Filter results compose by set
// union so order cannot change the outcome; sorting just keeps logs stable.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
