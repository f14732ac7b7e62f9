package services

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/storm/internal/core/domain"
	"github.com/ewilliams-labs/storm/internal/core/ports"
)

// rereleaseFilter removes tracks that are most likely re-releases of songs
// already delivered: remasters, reissues, deluxe editions. Identity is the
// content key (normalized name + artist set), compared against the keys
// delivered by this storm's runs inside a trailing window.
//
// Remixes typically carry "remix" in the title and so keep a distinct key.
// The window lets a genuinely re-recorded song come back later, which matters
// for film music. There is no guarantee whether an explicit or clean version
// is the one kept; the tie-break is the smallest track ID per key, which
// makes the stage deterministic and idempotent.
type rereleaseFilter struct {
	store      ports.StormStore
	log        zerolog.Logger
	windowDays int
	now        func() time.Time
}

// apply returns the surviving track IDs and their content keys.
func (f *rereleaseFilter) apply(ctx context.Context, stormName string, stormTracks []string) (tracks, uids []string, err error) {
	tracks, uids = []string{}, []string{}
	if len(stormTracks) == 0 {
		return tracks, uids, nil
	}

	infos, err := f.store.GetTrackInfo(ctx, stormTracks)
	if err != nil {
		return nil, nil, err
	}
	keyByID := make(map[string]string, len(infos))
	for _, t := range infos {
		keyByID[t.ID] = domain.TrackKey(t.Name, t.Artists)
	}

	windowDate := domain.FormatDate(f.now().AddDate(0, 0, -f.windowDays))
	runs, err := f.store.GetRunsSince(ctx, stormName, windowDate)
	if err != nil {
		return nil, nil, err
	}

	delivered := stringSet{}
	for _, run := range runs {
		// Runs recorded before content keys existed have nothing to
		// contribute; backfill-uids closes that gap over time.
		if !run.HasTrackUIDs {
			continue
		}
		delivered.addAll(run.TrackUIDs)
	}

	ordered := make([]string, len(stormTracks))
	copy(ordered, stormTracks)
	sort.Strings(ordered)

	seen := stringSet{}
	for _, id := range ordered {
		key, ok := keyByID[id]
		if !ok {
			// No persisted metadata to key on; keep the track but leave it
			// out of the delivered-key set.
			f.log.Debug().Str("track", id).Msg("no metadata for track, keeping without content key")
			tracks = append(tracks, id)
			continue
		}
		if delivered.has(key) || seen.has(key) {
			continue
		}
		seen.add(key)
		tracks = append(tracks, id)
		uids = append(uids, key)
	}

	f.log.Info().
		Int("before", len(stormTracks)).
		Int("after", len(tracks)).
		Msg("re-release dedup applied")
	return tracks, uids, nil
}
