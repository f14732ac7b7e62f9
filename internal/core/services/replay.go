package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/storm/internal/core/domain"
	"github.com/ewilliams-labs/storm/internal/core/ports"
)

// Replayer rebuilds the filter stage of a run over already-persisted metadata
// for historical backtesting. Both window dates are caller-supplied literals,
// no source API calls happen, and the resulting record is hypothetical: it is
// returned, never persisted.
type Replayer struct {
	store ports.StormStore
	log   zerolog.Logger
}

// NewReplayer constructs a Replayer.
func NewReplayer(store ports.StormStore, log zerolog.Logger) *Replayer {
	return &Replayer{store: store, log: log}
}

// Replay runs the filter pipeline for the storm over [startDate, runDate].
// Eligible artists come from the most recent recorded run's post-filter
// storm_artists, same as a live run.
func (p *Replayer) Replay(ctx context.Context, stormName, startDate, runDate string) (domain.RunRecord, error) {
	log := p.log.With().Str("storm", stormName).Logger()

	for _, date := range []string{startDate, runDate} {
		if _, err := time.Parse(domain.DateLayout, date); err != nil {
			return domain.RunRecord{}, fmt.Errorf("replay: bad date %q: %w", date, err)
		}
	}

	cfg, err := p.store.GetConfig(ctx, stormName)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("replay: load config for %s: %w", stormName, err)
	}
	if err := cfg.Validate(); err != nil {
		return domain.RunRecord{}, fmt.Errorf("replay: %w", err)
	}

	lastRun, err := p.store.GetLastRun(ctx, stormName)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("replay: no recorded run to replay from: %w", err)
	}

	rec := domain.NewRunRecord(cfg, stormName, startDate, runDate)
	rec.InputArtists = append(rec.InputArtists, lastRun.StormArtists...)
	log.Info().
		Str("start_date", startDate).
		Str("run_date", runDate).
		Int("input_artists", len(rec.InputArtists)).
		Msg("replaying filter stage")

	// source is nil: playlist-backed blacklists use their persisted sets.
	engine := &filterEngine{store: p.store, log: log}

	rec.StormArtists, rec.RemovedArtists = engine.applyArtistFilters(ctx, cfg.Filters.Artist, rec.InputArtists)

	albums, err := p.store.GetAlbumsFromArtistsByDate(ctx, rec.StormArtists, rec.StartDate, rec.RunDate)
	if err != nil {
		log.Warn().Err(err).Msg("album window query failed, no tracks this replay")
	}
	rec.StormAlbums = albums

	eligible, err := p.store.GetTracksFromAlbums(ctx, rec.StormAlbums)
	if err != nil {
		log.Warn().Err(err).Msg("album track query failed, no tracks this replay")
	}
	rec.EligibleTracks = eligible

	rec.StormTracks, rec.RemovedTracks = engine.applyTrackFilters(ctx, cfg.Filters.Track, rec.EligibleTracks, rec.StormArtists, rec.RemovedArtists)

	log.Info().Int("storm_tracks", len(rec.StormTracks)).Msg("replay complete")
	return rec, nil
}
