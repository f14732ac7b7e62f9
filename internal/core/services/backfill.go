package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/storm/internal/core/domain"
	"github.com/ewilliams-labs/storm/internal/core/ports"
)

// Backfiller retrofits content keys onto historical run records. Runs written
// before re-release dedup existed carry no storm_tracks_uid set and are
// invisible to the delivery window; backfilling closes that gap. This is the
// only sanctioned mutation of a persisted run.
type Backfiller struct {
	store ports.StormStore
	log   zerolog.Logger
}

// NewBackfiller constructs a Backfiller.
func NewBackfiller(store ports.StormStore, log zerolog.Logger) *Backfiller {
	return &Backfiller{store: store, log: log}
}

// BackfillTrackUIDs computes and stores the content-key set for every run of
// the storm that lacks one. Returns the number of runs updated.
func (b *Backfiller) BackfillTrackUIDs(ctx context.Context, stormName string) (int, error) {
	runs, err := b.store.GetRunsSince(ctx, stormName, "")
	if err != nil {
		return 0, fmt.Errorf("backfill: load runs for %s: %w", stormName, err)
	}

	updated := 0
	for _, run := range runs {
		if run.HasTrackUIDs {
			continue
		}

		infos, err := b.store.GetTrackInfo(ctx, run.StormTracks)
		if err != nil {
			return updated, fmt.Errorf("backfill: track info for run %s: %w", run.ID, err)
		}

		seen := stringSet{}
		uids := []string{}
		for _, t := range infos {
			key := domain.TrackKey(t.Name, t.Artists)
			if seen.has(key) {
				continue
			}
			seen.add(key)
			uids = append(uids, key)
		}

		if err := b.store.SetRunTrackUIDs(ctx, run.ID, uids); err != nil {
			return updated, fmt.Errorf("backfill: run %s: %w", run.ID, err)
		}
		updated++
		b.log.Info().
			Str("run", run.ID).
			Str("run_date", run.RunDate).
			Int("uids", len(uids)).
			Msg("run backfilled with content keys")
	}
	return updated, nil
}
