package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/storm/internal/core/domain"
	"github.com/ewilliams-labs/storm/internal/core/ports"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "storm.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_MigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	if err := store.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
}

func TestStore_ConfigRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetConfig(ctx, "metalcore")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("GetConfig on empty store: error = %v, want ErrNotFound", err)
	}

	cfg := domain.StormConfig{
		Name:              "metalcore",
		UserID:            "user1",
		GreatTargets:      "pl-great",
		GoodTargets:       "pl-good",
		FullStormDelivery: domain.PlaylistRef{Playlist: "pl-delivery"},
	}
	if err := store.SaveConfig(ctx, "metalcore", cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	got, err := store.GetConfig(ctx, "metalcore")
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if got.UserID != "user1" || got.FullStormDelivery.Playlist != "pl-delivery" {
		t.Fatalf("GetConfig() = %+v", got)
	}

	names, err := store.ListStormNames(ctx)
	if err != nil {
		t.Fatalf("ListStormNames() error = %v", err)
	}
	if !reflect.DeepEqual(names, []string{"metalcore"}) {
		t.Fatalf("ListStormNames() = %v", names)
	}
}

func TestStore_RunRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetLastRun(ctx, "s"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("GetLastRun on empty store: error = %v, want ErrNotFound", err)
	}

	first := domain.NewRunRecord(domain.StormConfig{}, "s", "2026-08-01", "2026-08-08")
	first.StormTracks = []string{"t1"}
	second := domain.NewRunRecord(domain.StormConfig{}, "s", "2026-08-08", "2026-08-15")
	second.StormTracks = []string{"t2"}
	second.TrackUIDs = []string{"key2"}
	second.HasTrackUIDs = true

	for _, rec := range []domain.RunRecord{first, second} {
		if err := store.WriteRunRecord(ctx, rec); err != nil {
			t.Fatalf("WriteRunRecord() error = %v", err)
		}
	}

	last, err := store.GetLastRun(ctx, "s")
	if err != nil {
		t.Fatalf("GetLastRun() error = %v", err)
	}
	if last.ID != second.ID {
		t.Fatalf("last run = %s, want %s", last.ID, second.ID)
	}
	if !last.HasTrackUIDs || !reflect.DeepEqual(last.TrackUIDs, []string{"key2"}) {
		t.Fatalf("last run uids = (%v, %v)", last.HasTrackUIDs, last.TrackUIDs)
	}

	runs, err := store.GetRunsSince(ctx, "s", "2026-08-08")
	if err != nil {
		t.Fatalf("GetRunsSince() error = %v", err)
	}
	if len(runs) != 1 || runs[0].ID != second.ID {
		t.Fatalf("GetRunsSince(strictly after) = %v", runs)
	}

	all, err := store.GetRunsSince(ctx, "s", "")
	if err != nil {
		t.Fatalf("GetRunsSince(all) error = %v", err)
	}
	if len(all) != 2 || all[0].ID != first.ID {
		t.Fatalf("GetRunsSince(all) = %d runs, first %s", len(all), all[0].ID)
	}
	// The first run predates content keys.
	if all[0].HasTrackUIDs {
		t.Fatal("first run must not claim content keys")
	}

	if err := store.SetRunTrackUIDs(ctx, first.ID, []string{"key1"}); err != nil {
		t.Fatalf("SetRunTrackUIDs() error = %v", err)
	}
	all, _ = store.GetRunsSince(ctx, "s", "")
	if !all[0].HasTrackUIDs || !reflect.DeepEqual(all[0].TrackUIDs, []string{"key1"}) {
		t.Fatalf("backfilled run = %+v", all[0])
	}
	// Backfill leaves the rest of the record alone.
	if !reflect.DeepEqual(all[0].StormTracks, []string{"t1"}) {
		t.Fatalf("backfill mutated storm tracks: %v", all[0].StormTracks)
	}
}

func TestStore_Artists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	artists := []domain.ArtistInfo{
		{ID: "a1", Name: "One", Genres: []string{"metalcore", "metal"}},
		{ID: "a2", Name: "Two", Genres: []string{"metal"}},
		{ID: "a3", Name: "Three", Genres: []string{}},
	}
	if err := store.UpdateArtists(ctx, artists); err != nil {
		t.Fatalf("UpdateArtists() error = %v", err)
	}

	known, err := store.GetKnownArtistIDs(ctx)
	if err != nil {
		t.Fatalf("GetKnownArtistIDs() error = %v", err)
	}
	sort.Strings(known)
	if !reflect.DeepEqual(known, []string{"a1", "a2", "a3"}) {
		t.Fatalf("known artists = %v", known)
	}

	byGenre, err := store.GetArtistsByGenres(ctx, []string{"metal", "metalcore"})
	if err != nil {
		t.Fatalf("GetArtistsByGenres() error = %v", err)
	}
	if !reflect.DeepEqual(byGenre, []string{"a1"}) {
		t.Fatalf("artists by genres = %v, want [a1]", byGenre)
	}

	empty, err := store.GetArtistsByGenres(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("GetArtistsByGenres(nil) = (%v, %v), want empty", empty, err)
	}

	needs, err := store.GetArtistsForAlbumCollection(ctx, "2026-08-31")
	if err != nil {
		t.Fatalf("GetArtistsForAlbumCollection() error = %v", err)
	}
	if len(needs) != 3 {
		t.Fatalf("all artists should need album collection, got %v", needs)
	}

	if err := store.UpdateArtistAlbumCollectedDate(ctx, []string{"a1", "a2"}, "2026-08-31"); err != nil {
		t.Fatalf("UpdateArtistAlbumCollectedDate() error = %v", err)
	}
	needs, _ = store.GetArtistsForAlbumCollection(ctx, "2026-08-31")
	if !reflect.DeepEqual(needs, []string{"a3"}) {
		t.Fatalf("after stamping, needs = %v, want [a3]", needs)
	}

	// A later date re-opens the stamped artists.
	needs, _ = store.GetArtistsForAlbumCollection(ctx, "2026-09-01")
	if len(needs) != 3 {
		t.Fatalf("next day, needs = %v, want all three", needs)
	}
}

func TestStore_AlbumsAndTracks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	albums := []domain.AlbumInfo{
		{ID: "al1", Name: "Album", ReleaseDate: "2026-08-28", Artists: []string{"a1"}},
		{ID: "al2", Name: "Old Album", ReleaseDate: "2020-01-01", Artists: []string{"a1"}},
	}
	if err := store.UpdateAlbums(ctx, albums); err != nil {
		t.Fatalf("UpdateAlbums() error = %v", err)
	}

	needs, err := store.GetAlbumsForTrackCollection(ctx)
	if err != nil {
		t.Fatalf("GetAlbumsForTrackCollection() error = %v", err)
	}
	sort.Strings(needs)
	if !reflect.DeepEqual(needs, []string{"al1", "al2"}) {
		t.Fatalf("albums needing tracks = %v", needs)
	}

	windowed, err := store.GetAlbumsFromArtistsByDate(ctx, []string{"a1"}, "2026-08-24", "2026-08-31")
	if err != nil {
		t.Fatalf("GetAlbumsFromArtistsByDate() error = %v", err)
	}
	if !reflect.DeepEqual(windowed, []string{"al1"}) {
		t.Fatalf("albums in window = %v, want [al1]", windowed)
	}

	tracks := []domain.TrackInfo{
		{ID: "t1", Name: "Song", AlbumID: "al1", Artists: []string{"a1", "a9"}},
	}
	if err := store.UpdateTracks(ctx, tracks); err != nil {
		t.Fatalf("UpdateTracks() error = %v", err)
	}

	// Writing al1's tracks retires it from the work list.
	needs, _ = store.GetAlbumsForTrackCollection(ctx)
	if !reflect.DeepEqual(needs, []string{"al2"}) {
		t.Fatalf("after track write, needs = %v, want [al2]", needs)
	}

	got, err := store.GetTracksFromAlbums(ctx, []string{"al1"})
	if err != nil {
		t.Fatalf("GetTracksFromAlbums() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"t1"}) {
		t.Fatalf("tracks from al1 = %v", got)
	}

	artists, err := store.GetTrackArtists(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTrackArtists() error = %v", err)
	}
	if !reflect.DeepEqual(artists, []string{"a1", "a9"}) {
		t.Fatalf("track artists = %v", artists)
	}
	if _, err := store.GetTrackArtists(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("GetTrackArtists(missing) error = %v, want ErrNotFound", err)
	}

	infos, err := store.GetTrackInfo(ctx, []string{"t1", "missing"})
	if err != nil {
		t.Fatalf("GetTrackInfo() error = %v", err)
	}
	if len(infos) != 1 || infos[0].ID != "t1" || infos[0].Name != "Song" {
		t.Fatalf("GetTrackInfo() = %+v", infos)
	}
}

func TestStore_TrackFeatures(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tracks := []domain.TrackInfo{
		{ID: "t1", Name: "Soft", AlbumID: "al1"},
		{ID: "t2", Name: "Loud", AlbumID: "al1"},
	}
	if err := store.UpdateTracks(ctx, tracks); err != nil {
		t.Fatalf("UpdateTracks() error = %v", err)
	}

	needs, err := store.GetTracksForFeatureCollection(ctx)
	if err != nil {
		t.Fatalf("GetTracksForFeatureCollection() error = %v", err)
	}
	if len(needs) != 2 {
		t.Fatalf("tracks needing features = %v", needs)
	}

	features := []domain.TrackFeatures{
		{ID: "t1", Energy: 0.2, PitchKey: 4},
		{ID: "t2", Energy: 0.9, PitchKey: 7},
	}
	if err := store.UpdateTrackFeatures(ctx, features); err != nil {
		t.Fatalf("UpdateTrackFeatures() error = %v", err)
	}

	needs, _ = store.GetTracksForFeatureCollection(ctx)
	if len(needs) != 0 {
		t.Fatalf("after feature write, needs = %v", needs)
	}

	ids := []string{"t1", "t2"}
	tests := []struct {
		name string
		rule domain.FeatureRule
		want []string
	}{
		{
			name: "energy gte",
			rule: domain.FeatureRule{Feature: "energy", Op: domain.OpGTE, Threshold: 0.5},
			want: []string{"t2"},
		},
		{
			name: "energy lt",
			rule: domain.FeatureRule{Feature: "energy", Op: domain.OpLT, Threshold: 0.5},
			want: []string{"t1"},
		},
		{
			name: "pitch key eq maps to its column",
			rule: domain.FeatureRule{Feature: "key", Op: domain.OpEQ, Threshold: 7},
			want: []string{"t2"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := store.FilterTracksByAudioFeature(ctx, ids, tc.rule)
			if err != nil {
				t.Fatalf("FilterTracksByAudioFeature() error = %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("filtered = %v, want %v", got, tc.want)
			}
		})
	}

	if _, err := store.FilterTracksByAudioFeature(ctx, ids, domain.FeatureRule{Feature: "vibe", Op: domain.OpGT}); err == nil {
		t.Fatal("expected error for unknown feature")
	}
}

func TestStore_Playlists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetPlaylistCollectionDate(ctx, "pl1"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("GetPlaylistCollectionDate(missing) error = %v, want ErrNotFound", err)
	}

	snapshot := domain.PlaylistSnapshot{
		Meta:          domain.PlaylistMeta{ID: "pl1", Name: "Input", Owner: "user1"},
		LastCollected: "2026-08-30",
		Tracks:        []string{"t1", "t2"},
		Artists:       []string{"a1"},
	}
	if err := store.UpdatePlaylist(ctx, snapshot); err != nil {
		t.Fatalf("UpdatePlaylist() error = %v", err)
	}

	date, err := store.GetPlaylistCollectionDate(ctx, "pl1")
	if err != nil || date != "2026-08-30" {
		t.Fatalf("GetPlaylistCollectionDate() = (%s, %v)", date, err)
	}

	tracks, err := store.GetLoadedPlaylistTracks(ctx, "pl1")
	if err != nil || !reflect.DeepEqual(tracks, []string{"t1", "t2"}) {
		t.Fatalf("GetLoadedPlaylistTracks() = (%v, %v)", tracks, err)
	}
	artists, err := store.GetLoadedPlaylistArtists(ctx, "pl1")
	if err != nil || !reflect.DeepEqual(artists, []string{"a1"}) {
		t.Fatalf("GetLoadedPlaylistArtists() = (%v, %v)", artists, err)
	}

	// A second collection keeps the first day's membership in the changelog.
	snapshot.LastCollected = "2026-08-31"
	snapshot.Tracks = []string{"t3"}
	snapshot.Artists = []string{"a2"}
	if err := store.UpdatePlaylist(ctx, snapshot); err != nil {
		t.Fatalf("second UpdatePlaylist() error = %v", err)
	}

	var raw string
	if err := store.db.QueryRow("SELECT changelog FROM playlists WHERE id = 'pl1'").Scan(&raw); err != nil {
		t.Fatalf("changelog read failed: %v", err)
	}
	for _, day := range []string{"2026-08-30", "2026-08-31"} {
		if !strings.Contains(raw, day) {
			t.Fatalf("changelog %s is missing %s", raw, day)
		}
	}

	tracks, _ = store.GetLoadedPlaylistTracks(ctx, "pl1")
	if !reflect.DeepEqual(tracks, []string{"t3"}) {
		t.Fatalf("current tracks = %v, want [t3]", tracks)
	}
}

func TestStore_Blacklists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetBlacklist(ctx, "banned"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("GetBlacklist(missing) error = %v, want ErrNotFound", err)
	}

	bl := domain.Blacklist{Name: "banned", InputPlaylist: "pl-ban", Artists: []string{"a1"}}
	if err := store.SaveBlacklist(ctx, bl); err != nil {
		t.Fatalf("SaveBlacklist() error = %v", err)
	}

	got, err := store.GetBlacklist(ctx, "banned")
	if err != nil {
		t.Fatalf("GetBlacklist() error = %v", err)
	}
	if got.InputPlaylist != "pl-ban" || !reflect.DeepEqual(got.Artists, []string{"a1"}) {
		t.Fatalf("GetBlacklist() = %+v", got)
	}

	// Refreshing the artist set keeps the playlist binding.
	if err := store.UpdateBlacklist(ctx, "banned", []string{"a2", "a3"}); err != nil {
		t.Fatalf("UpdateBlacklist() error = %v", err)
	}
	got, _ = store.GetBlacklist(ctx, "banned")
	if got.InputPlaylist != "pl-ban" {
		t.Fatal("UpdateBlacklist dropped the input playlist binding")
	}
	if !reflect.DeepEqual(got.Artists, []string{"a2", "a3"}) {
		t.Fatalf("refreshed artists = %v", got.Artists)
	}
}

func TestChunkIDs(t *testing.T) {
	ids := make([]string, queryChunkSize+2)
	for i := range ids {
		ids[i] = "id"
	}
	chunks := chunkIDs(ids)
	if len(chunks) != 2 || len(chunks[0]) != queryChunkSize || len(chunks[1]) != 2 {
		t.Fatalf("chunkIDs split = %d chunks", len(chunks))
	}
	if chunkIDs(nil) != nil {
		t.Fatal("chunkIDs(nil) should be nil")
	}
}
