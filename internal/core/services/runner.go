// Package services holds the run orchestration and track-filtering core: the
// state machine that drives one curation cycle, the bounded batch collection
// protocol, the filter engine and the re-release dedup.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/storm/internal/core/domain"
	"github.com/ewilliams-labs/storm/internal/core/ports"
)

// CollectionSettings bound the batched collection stages.
type CollectionSettings struct {
	AlbumBatchSize             int
	FeatureBatchSize           int
	RetryLimit                 int
	ConsecutiveBadBatchesLimit int
	RereleaseWindowDays        int
}

// DefaultCollectionSettings returns the budgets used in production runs.
func DefaultCollectionSettings() CollectionSettings {
	return CollectionSettings{
		AlbumBatchSize:             20,
		FeatureBatchSize:           100,
		RetryLimit:                 5,
		ConsecutiveBadBatchesLimit: 10,
		RereleaseWindowDays:        60,
	}
}

// Runner drives one end-to-end curation cycle for a named storm: load prior
// state, collect missing metadata, filter, rank, deliver, persist. Stages run
// strictly in order and one logical upstream call is in flight at a time; the
// sequential batches are what respects the source API's rate limits.
type Runner struct {
	store    ports.StormStore
	source   ports.SourceProvider
	writer   ports.PlaylistWriter
	ranker   ports.TrackRanker
	log      zerolog.Logger
	now      func() time.Time
	settings CollectionSettings

	// keepRereleases disables the re-release dedup stage.
	keepRereleases bool
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithRanker wires an optional ranking service; without one the delivery
// order is the filter output order.
func WithRanker(ranker ports.TrackRanker) RunnerOption {
	return func(r *Runner) { r.ranker = ranker }
}

// WithCollectionSettings overrides the default batch sizes and retry budgets.
func WithCollectionSettings(s CollectionSettings) RunnerOption {
	return func(r *Runner) { r.settings = s }
}

// WithClock overrides the wall clock, which decides run_date.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// KeepRereleases disables re-release dedup for this runner.
func KeepRereleases() RunnerOption {
	return func(r *Runner) { r.keepRereleases = true }
}

// NewRunner constructs a Runner.
func NewRunner(store ports.StormStore, source ports.SourceProvider, writer ports.PlaylistWriter, log zerolog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:    store,
		source:   source,
		writer:   writer,
		log:      log,
		now:      time.Now,
		settings: DefaultCollectionSettings(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// runState carries the record under construction plus set indices so the
// collection stages can de-duplicate appends cheaply. Each stage writes its
// outputs into rec and never mutates another stage's fields.
type runState struct {
	rec          *domain.RunRecord
	log          zerolog.Logger
	inputTracks  stringSet
	inputArtists stringSet
}

func (s *runState) addInputTracks(ids []string) {
	for _, id := range ids {
		if !s.inputTracks.has(id) {
			s.inputTracks.add(id)
			s.rec.InputTracks = append(s.rec.InputTracks, id)
		}
	}
}

func (s *runState) addInputArtists(ids []string) {
	for _, id := range ids {
		if !s.inputArtists.has(id) {
			s.inputArtists.add(id)
			s.rec.InputArtists = append(s.rec.InputArtists, id)
		}
	}
}

// Run executes one curation cycle for the storm and returns the completed run
// record. startDate overrides the window start when non-empty; otherwise the
// previous run's run_date is used, or a week back for a new storm.
//
// Only two conditions abort a run: a structurally invalid configuration, and
// a collection stage blowing its consecutive-bad-batch budget. Everything
// else degrades to empty intermediate sets with a log line.
func (r *Runner) Run(ctx context.Context, stormName, startDate string) (domain.RunRecord, error) {
	log := r.log.With().Str("storm", stormName).Logger()
	log.Info().Msg("initializing runner")

	cfg, err := r.store.GetConfig(ctx, stormName)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("runner: load config for %s: %w", stormName, err)
	}
	if err := cfg.Validate(); err != nil {
		return domain.RunRecord{}, fmt.Errorf("runner: %w", err)
	}

	lastRun, err := r.store.GetLastRun(ctx, stormName)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return domain.RunRecord{}, fmt.Errorf("runner: load last run: %w", err)
	}

	runDate := domain.FormatDate(r.now())
	rec := domain.NewRunRecord(cfg, stormName, r.genStartDate(startDate, lastRun), runDate)
	st := &runState{rec: &rec, log: log, inputTracks: stringSet{}, inputArtists: stringSet{}}
	log.Info().Str("start_date", rec.StartDate).Str("run_date", rec.RunDate).Msg("run window set")

	r.loadLastRun(st, lastRun)
	r.collectPlaylists(ctx, st, cfg)
	r.collectArtists(ctx, st)
	if err := r.collectAlbums(ctx, st); err != nil {
		return rec, err
	}
	if err := r.collectFeatures(ctx, st); err != nil {
		return rec, err
	}
	r.filterStormTracks(ctx, st, cfg)
	r.rankTracks(ctx, st, cfg)
	if err := r.deliver(ctx, st, cfg); err != nil {
		return rec, err
	}
	if err := r.persist(ctx, st); err != nil {
		return rec, err
	}

	log.Info().Int("delivered", len(rec.StormTracks)).Msg("run complete")
	return rec, nil
}

// genStartDate: caller override, else the previous run's run_date, else a
// week before now for a brand new storm.
func (r *Runner) genStartDate(override string, lastRun *domain.RunRecord) string {
	if override != "" {
		return override
	}
	if lastRun != nil && lastRun.RunDate != "" {
		return lastRun.RunDate
	}
	return domain.FormatDate(r.now().AddDate(0, 0, -7))
}

// loadLastRun seeds this run from the previous one. Input artists come from
// the previous run's post-filter storm_artists on purpose: an artist that
// survived last cycle stays eligible without being re-validated against the
// input playlists.
func (r *Runner) loadLastRun(st *runState, lastRun *domain.RunRecord) {
	if lastRun == nil {
		st.log.Info().Msg("storm is new, nothing to load")
		return
	}
	st.addInputTracks(lastRun.InputTracks)
	st.addInputArtists(lastRun.StormArtists)
	st.log.Info().
		Int("input_tracks", len(st.rec.InputTracks)).
		Int("input_artists", len(st.rec.InputArtists)).
		Msg("seeded from last run")
}

func (r *Runner) collectPlaylists(ctx context.Context, st *runState, cfg domain.StormConfig) {
	for _, playlistID := range cfg.InputPlaylists() {
		r.loadInputPlaylist(ctx, st, playlistID)
	}

	// The delivery and rolling playlists are snapshotted read-only so later
	// runs can see what was actually consumed.
	r.snapshotPlaylist(ctx, st, cfg.FullStormDelivery.Playlist, true)
	if cfg.RollingGood != nil && cfg.RollingGood.Playlist != "" {
		r.snapshotPlaylist(ctx, st, cfg.RollingGood.Playlist, true)
	}
}

// loadInputPlaylist refreshes the playlist snapshot if it wasn't collected
// today, then reads the persisted membership into the run. The read always
// goes through the store, never the fresh API response, so a skipped
// collection and a fresh one feed the run identically.
func (r *Runner) loadInputPlaylist(ctx context.Context, st *runState, playlistID string) {
	r.snapshotPlaylist(ctx, st, playlistID, false)

	tracks, err := r.store.GetLoadedPlaylistTracks(ctx, playlistID)
	if err != nil {
		st.log.Warn().Err(err).Str("playlist", playlistID).Msg("loading persisted playlist tracks failed")
	}
	artists, err := r.store.GetLoadedPlaylistArtists(ctx, playlistID)
	if err != nil {
		st.log.Warn().Err(err).Str("playlist", playlistID).Msg("loading persisted playlist artists failed")
	}

	st.rec.Playlists = append(st.rec.Playlists, playlistID)
	st.addInputTracks(tracks)
	st.addInputArtists(artists)
}

// snapshotPlaylist collects a playlist from the source API and persists it,
// at most once per calendar day per playlist. For output playlists an empty
// track list means a new storm with nothing to archive, not an error.
func (r *Runner) snapshotPlaylist(ctx context.Context, st *runState, playlistID string, output bool) {
	collected, err := r.store.GetPlaylistCollectionDate(ctx, playlistID)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		st.log.Warn().Err(err).Str("playlist", playlistID).Msg("collection date lookup failed")
		return
	}
	if collected >= st.rec.RunDate {
		st.log.Debug().Str("playlist", playlistID).Msg("already collected today, skipping API load")
		return
	}

	meta, err := r.source.GetPlaylistInfo(ctx, playlistID)
	if err != nil {
		st.log.Warn().Err(err).Str("playlist", playlistID).Msg("playlist info fetch failed")
		return
	}
	tracks, err := r.source.GetPlaylistTracks(ctx, playlistID)
	if err != nil {
		st.log.Warn().Err(err).Str("playlist", playlistID).Msg("playlist tracks fetch failed")
		return
	}
	if output && len(tracks) == 0 {
		st.log.Info().Str("playlist", playlistID).Msg("no tracks, must be a new storm")
		return
	}
	artists, err := r.source.GetArtistsFromTracks(ctx, tracks)
	if err != nil {
		st.log.Warn().Err(err).Str("playlist", playlistID).Msg("playlist artists fetch failed")
		return
	}

	snapshot := domain.PlaylistSnapshot{
		Meta:          meta,
		LastCollected: st.rec.RunDate,
		Tracks:        tracks,
		Artists:       artists,
	}
	if err := r.store.UpdatePlaylist(ctx, snapshot); err != nil {
		st.log.Warn().Err(err).Str("playlist", playlistID).Msg("playlist snapshot write failed")
	}
}

// collectArtists fetches and persists only the input artists the store does
// not know yet.
func (r *Runner) collectArtists(ctx context.Context, st *runState) {
	known, err := r.store.GetKnownArtistIDs(ctx)
	if err != nil {
		st.log.Warn().Err(err).Msg("known artist lookup failed, skipping artist collection")
		return
	}

	newArtists := subtract(st.rec.InputArtists, newStringSet(known))
	if len(newArtists) == 0 {
		st.log.Debug().Msg("no new artists found")
		return
	}

	st.log.Info().Int("count", len(newArtists)).Msg("new artists found, collecting their info")
	info, err := r.source.GetArtistInfo(ctx, newArtists)
	if err != nil {
		st.log.Warn().Err(err).Msg("artist info fetch failed, they will be retried next run")
		return
	}
	if err := r.store.UpdateArtists(ctx, info); err != nil {
		st.log.Warn().Err(err).Msg("artist write failed")
	}
}

// collectAlbums gathers albums for input artists that still need today's
// album sweep, then tracks for every album pending track collection. The
// album-track half runs under the bounded batch-retry protocol and its
// consecutive overflow is fatal.
func (r *Runner) collectAlbums(ctx context.Context, st *runState) error {
	r.collectArtistAlbums(ctx, st)

	needs, err := r.store.GetAlbumsForTrackCollection(ctx)
	if err != nil {
		st.log.Warn().Err(err).Msg("album track work list lookup failed, skipping")
		return nil
	}
	if len(needs) == 0 {
		st.log.Debug().Msg("no albums needed to collect")
		return nil
	}

	pending, err := r.collector(st.log, r.settings.AlbumBatchSize).collect(ctx, needs,
		func(ctx context.Context, batch []string) error {
			tracks, err := r.source.GetAlbumTracks(ctx, batch)
			if err != nil {
				return err
			}
			return r.store.UpdateTracks(ctx, tracks)
		})
	if err != nil {
		return fmt.Errorf("runner: album track collection: %w", err)
	}
	if len(pending) > 0 {
		st.log.Warn().Int("albums", len(pending)).Msg("retry budget spent, albums left pending for next run")
	}
	return nil
}

func (r *Runner) collectArtistAlbums(ctx context.Context, st *runState) {
	needs, err := r.store.GetArtistsForAlbumCollection(ctx, st.rec.RunDate)
	if err != nil {
		st.log.Warn().Err(err).Msg("album collection work list lookup failed, skipping")
		return
	}

	toCollect := intersect(st.rec.InputArtists, newStringSet(needs))
	if len(toCollect) == 0 {
		st.log.Debug().Msg("every input artist's albums already acquired today")
		return
	}

	st.log.Info().Int("artists", len(toCollect)).Msg("collecting artist albums")
	for _, batch := range partition(toCollect, r.settings.AlbumBatchSize) {
		albums, err := r.source.GetArtistAlbums(ctx, batch)
		if err != nil {
			st.log.Warn().Err(err).Msg("artist album fetch failed, batch will be retried next run")
			continue
		}
		if err := r.store.UpdateAlbums(ctx, albums); err != nil {
			st.log.Warn().Err(err).Msg("album write failed")
			continue
		}
		if err := r.store.UpdateArtistAlbumCollectedDate(ctx, batch, st.rec.RunDate); err != nil {
			st.log.Warn().Err(err).Msg("album collection date update failed")
		}
	}
}

// collectFeatures gathers audio features for every track pending feature
// collection, under the bounded batch-retry protocol.
func (r *Runner) collectFeatures(ctx context.Context, st *runState) error {
	needs, err := r.store.GetTracksForFeatureCollection(ctx)
	if err != nil {
		st.log.Warn().Err(err).Msg("feature work list lookup failed, skipping")
		return nil
	}
	if len(needs) == 0 {
		st.log.Debug().Msg("no track features to collect")
		return nil
	}

	pending, err := r.collector(st.log, r.settings.FeatureBatchSize).collect(ctx, needs,
		func(ctx context.Context, batch []string) error {
			features, err := r.source.GetTrackFeatures(ctx, batch)
			if err != nil {
				return err
			}
			return r.store.UpdateTrackFeatures(ctx, features)
		})
	if err != nil {
		return fmt.Errorf("runner: track feature collection: %w", err)
	}
	if len(pending) > 0 {
		st.log.Warn().Int("tracks", len(pending)).Msg("retry budget spent, tracks left pending for next run")
	}
	return nil
}

func (r *Runner) collector(log zerolog.Logger, batchSize int) batchCollector {
	return batchCollector{
		log:              log,
		batchSize:        batchSize,
		retryLimit:       r.settings.RetryLimit,
		consecutiveLimit: r.settings.ConsecutiveBadBatchesLimit,
	}
}

// filterStormTracks runs the filter pipeline: artist filters, album window,
// eligible tracks, track filters, then optionally re-release dedup.
func (r *Runner) filterStormTracks(ctx context.Context, st *runState, cfg domain.StormConfig) {
	engine := &filterEngine{store: r.store, source: r.source, log: st.log}
	rec := st.rec

	rec.StormArtists, rec.RemovedArtists = engine.applyArtistFilters(ctx, cfg.Filters.Artist, rec.InputArtists)

	albums, err := r.store.GetAlbumsFromArtistsByDate(ctx, rec.StormArtists, rec.StartDate, rec.RunDate)
	if err != nil {
		st.log.Warn().Err(err).Msg("album window query failed, no tracks this run")
	}
	rec.StormAlbums = albums

	eligible, err := r.store.GetTracksFromAlbums(ctx, rec.StormAlbums)
	if err != nil {
		st.log.Warn().Err(err).Msg("album track query failed, no tracks this run")
	}
	rec.EligibleTracks = eligible

	rec.StormTracks, rec.RemovedTracks = engine.applyTrackFilters(ctx, cfg.Filters.Track, rec.EligibleTracks, rec.StormArtists, rec.RemovedArtists)

	if r.keepRereleases {
		return
	}
	dedup := &rereleaseFilter{store: r.store, log: st.log, windowDays: r.settings.RereleaseWindowDays, now: r.now}
	tracks, uids, err := dedup.apply(ctx, rec.StormName, rec.StormTracks)
	if err != nil {
		st.log.Warn().Err(err).Msg("re-release dedup failed, delivering the filtered set")
		return
	}
	rec.StormTracks = tracks
	rec.TrackUIDs = uids
	rec.HasTrackUIDs = true
}

// rankTracks hands the surviving set to the ranking service if one is
// configured. Ranking failures are not retried; the filter order stands.
func (r *Runner) rankTracks(ctx context.Context, st *runState, cfg domain.StormConfig) {
	if r.ranker == nil {
		st.log.Debug().Msg("no ranker configured, skipping")
		return
	}
	ranked, err := r.ranker.RankTracks(ctx, st.rec.StormTracks, cfg.GoodTargets, cfg.GreatTargets)
	if err != nil {
		st.log.Warn().Err(err).Msg("ranking failed, keeping filter order")
		return
	}
	st.rec.StormTracks = ranked
}

func (r *Runner) deliver(ctx context.Context, st *runState, cfg domain.StormConfig) error {
	if err := r.writer.WritePlaylistTracks(ctx, cfg.FullStormDelivery.Playlist, st.rec.StormTracks); err != nil {
		return fmt.Errorf("runner: write storm tracks: %w", err)
	}
	st.log.Info().
		Int("tracks", len(st.rec.StormTracks)).
		Str("playlist", cfg.FullStormDelivery.Playlist).
		Msg("storm tracks delivered")
	return nil
}

func (r *Runner) persist(ctx context.Context, st *runState) error {
	if err := r.store.WriteRunRecord(ctx, *st.rec); err != nil {
		return fmt.Errorf("runner: save run record: %w", err)
	}
	return nil
}
