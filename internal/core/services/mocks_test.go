package services

import (
	"context"
	"fmt"

	"github.com/ewilliams-labs/storm/internal/core/domain"
	"github.com/ewilliams-labs/storm/internal/core/ports"
)

// mockStore is a hand-rolled in-memory StormStore. Fields left at their zero
// value behave like an empty database; err fields force specific failures.
type mockStore struct {
	configs map[string]domain.StormConfig
	lastRun *domain.RunRecord
	runs    []domain.RunRecord

	knownArtists        []string
	artistsNeedingAlbum []string
	albumsNeedingTracks []string
	tracksNeedingFeats  []string
	albumsByDate        []string
	tracksFromAlbums    []string

	genreArtists map[string][]string // genre -> artist IDs
	featureValid map[string][]string // feature -> IDs that satisfy the rule
	trackArtists map[string][]string
	trackInfo    map[string]domain.TrackInfo
	blacklists   map[string]*domain.Blacklist

	playlistCollected map[string]string
	playlistTracks    map[string][]string
	playlistArtists   map[string][]string

	writtenRuns        []domain.RunRecord
	setUIDs            map[string][]string
	savedArtists       []domain.ArtistInfo
	savedAlbums        []domain.AlbumInfo
	savedTracks        []domain.TrackInfo
	savedFeatures      []domain.TrackFeatures
	savedPlaylists     []domain.PlaylistSnapshot
	updatedBlacklists  map[string][]string
	albumCollectedFor  []string
	getTrackInfoErr    error
	getRunsSinceErr    error
	writeRunRecordErr  error
	filterByFeatureErr error
}

var _ ports.StormStore = (*mockStore)(nil)

func (m *mockStore) GetConfig(ctx context.Context, name string) (domain.StormConfig, error) {
	cfg, ok := m.configs[name]
	if !ok {
		return domain.StormConfig{}, fmt.Errorf("config %s: %w", name, ports.ErrNotFound)
	}
	return cfg, nil
}

func (m *mockStore) GetLastRun(ctx context.Context, stormName string) (*domain.RunRecord, error) {
	if m.lastRun == nil {
		return nil, fmt.Errorf("last run of %s: %w", stormName, ports.ErrNotFound)
	}
	return m.lastRun, nil
}

func (m *mockStore) GetRunsSince(ctx context.Context, stormName, since string) ([]domain.RunRecord, error) {
	if m.getRunsSinceErr != nil {
		return nil, m.getRunsSinceErr
	}
	out := []domain.RunRecord{}
	for _, run := range m.runs {
		if since == "" || run.RunDate > since {
			out = append(out, run)
		}
	}
	return out, nil
}

func (m *mockStore) WriteRunRecord(ctx context.Context, rec domain.RunRecord) error {
	if m.writeRunRecordErr != nil {
		return m.writeRunRecordErr
	}
	m.writtenRuns = append(m.writtenRuns, rec)
	return nil
}

func (m *mockStore) SetRunTrackUIDs(ctx context.Context, runID string, uids []string) error {
	if m.setUIDs == nil {
		m.setUIDs = map[string][]string{}
	}
	m.setUIDs[runID] = uids
	return nil
}

func (m *mockStore) GetKnownArtistIDs(ctx context.Context) ([]string, error) {
	return m.knownArtists, nil
}

func (m *mockStore) UpdateArtists(ctx context.Context, artists []domain.ArtistInfo) error {
	m.savedArtists = append(m.savedArtists, artists...)
	return nil
}

func (m *mockStore) GetArtistsByGenres(ctx context.Context, genres []string) ([]string, error) {
	// Intersection over genres, same contract as the real store.
	var out []string
	for i, genre := range genres {
		ids := m.genreArtists[genre]
		if i == 0 {
			out = append([]string{}, ids...)
			continue
		}
		out = intersect(out, newStringSet(ids))
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (m *mockStore) GetArtistsForAlbumCollection(ctx context.Context, maxDate string) ([]string, error) {
	return m.artistsNeedingAlbum, nil
}

func (m *mockStore) UpdateArtistAlbumCollectedDate(ctx context.Context, artistIDs []string, date string) error {
	m.albumCollectedFor = append(m.albumCollectedFor, artistIDs...)
	return nil
}

func (m *mockStore) UpdateAlbums(ctx context.Context, albums []domain.AlbumInfo) error {
	m.savedAlbums = append(m.savedAlbums, albums...)
	return nil
}

func (m *mockStore) GetAlbumsForTrackCollection(ctx context.Context) ([]string, error) {
	return m.albumsNeedingTracks, nil
}

func (m *mockStore) GetAlbumsFromArtistsByDate(ctx context.Context, artistIDs []string, start, end string) ([]string, error) {
	return m.albumsByDate, nil
}

func (m *mockStore) UpdateTracks(ctx context.Context, tracks []domain.TrackInfo) error {
	m.savedTracks = append(m.savedTracks, tracks...)
	return nil
}

func (m *mockStore) GetTracksFromAlbums(ctx context.Context, albumIDs []string) ([]string, error) {
	return m.tracksFromAlbums, nil
}

func (m *mockStore) GetTracksForFeatureCollection(ctx context.Context) ([]string, error) {
	return m.tracksNeedingFeats, nil
}

func (m *mockStore) UpdateTrackFeatures(ctx context.Context, features []domain.TrackFeatures) error {
	m.savedFeatures = append(m.savedFeatures, features...)
	return nil
}

func (m *mockStore) FilterTracksByAudioFeature(ctx context.Context, trackIDs []string, rule domain.FeatureRule) ([]string, error) {
	if m.filterByFeatureErr != nil {
		return nil, m.filterByFeatureErr
	}
	return intersect(trackIDs, newStringSet(m.featureValid[rule.Feature])), nil
}

func (m *mockStore) GetTrackArtists(ctx context.Context, trackID string) ([]string, error) {
	artists, ok := m.trackArtists[trackID]
	if !ok {
		return nil, fmt.Errorf("track %s: %w", trackID, ports.ErrNotFound)
	}
	return artists, nil
}

func (m *mockStore) GetTrackInfo(ctx context.Context, trackIDs []string) ([]domain.TrackInfo, error) {
	if m.getTrackInfoErr != nil {
		return nil, m.getTrackInfoErr
	}
	out := []domain.TrackInfo{}
	for _, id := range trackIDs {
		if info, ok := m.trackInfo[id]; ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func (m *mockStore) GetBlacklist(ctx context.Context, name string) (*domain.Blacklist, error) {
	bl, ok := m.blacklists[name]
	if !ok {
		return nil, fmt.Errorf("blacklist %s: %w", name, ports.ErrNotFound)
	}
	return bl, nil
}

func (m *mockStore) UpdateBlacklist(ctx context.Context, name string, artistIDs []string) error {
	if m.updatedBlacklists == nil {
		m.updatedBlacklists = map[string][]string{}
	}
	m.updatedBlacklists[name] = artistIDs
	if bl, ok := m.blacklists[name]; ok {
		bl.Artists = artistIDs
	}
	return nil
}

func (m *mockStore) GetPlaylistCollectionDate(ctx context.Context, playlistID string) (string, error) {
	date, ok := m.playlistCollected[playlistID]
	if !ok {
		return "", fmt.Errorf("playlist %s: %w", playlistID, ports.ErrNotFound)
	}
	return date, nil
}

func (m *mockStore) GetLoadedPlaylistTracks(ctx context.Context, playlistID string) ([]string, error) {
	return m.playlistTracks[playlistID], nil
}

func (m *mockStore) GetLoadedPlaylistArtists(ctx context.Context, playlistID string) ([]string, error) {
	return m.playlistArtists[playlistID], nil
}

func (m *mockStore) UpdatePlaylist(ctx context.Context, snapshot domain.PlaylistSnapshot) error {
	m.savedPlaylists = append(m.savedPlaylists, snapshot)
	if m.playlistCollected == nil {
		m.playlistCollected = map[string]string{}
	}
	if m.playlistTracks == nil {
		m.playlistTracks = map[string][]string{}
	}
	if m.playlistArtists == nil {
		m.playlistArtists = map[string][]string{}
	}
	m.playlistCollected[snapshot.Meta.ID] = snapshot.LastCollected
	m.playlistTracks[snapshot.Meta.ID] = snapshot.Tracks
	m.playlistArtists[snapshot.Meta.ID] = snapshot.Artists
	return nil
}

// mockSource serves playlist and catalog reads from maps. Unknown playlists
// come back empty, never as errors.
type mockSource struct {
	playlistTracks map[string][]string
	trackArtists   map[string][]string // track -> artist IDs for GetArtistsFromTracks
	artistAlbums   map[string][]domain.AlbumInfo
	albumTracks    map[string][]domain.TrackInfo
	features       map[string]domain.TrackFeatures

	playlistInfoErr error
	albumTracksErr  error
	featuresErr     error
}

var _ ports.SourceProvider = (*mockSource)(nil)

func (m *mockSource) GetPlaylistInfo(ctx context.Context, playlistID string) (domain.PlaylistMeta, error) {
	if m.playlistInfoErr != nil {
		return domain.PlaylistMeta{}, m.playlistInfoErr
	}
	return domain.PlaylistMeta{ID: playlistID, Name: "playlist " + playlistID}, nil
}

func (m *mockSource) GetPlaylistTracks(ctx context.Context, playlistID string) ([]string, error) {
	return m.playlistTracks[playlistID], nil
}

func (m *mockSource) GetArtistsFromTracks(ctx context.Context, trackIDs []string) ([]string, error) {
	seen := stringSet{}
	out := []string{}
	for _, id := range trackIDs {
		for _, artist := range m.trackArtists[id] {
			if seen.has(artist) {
				continue
			}
			seen.add(artist)
			out = append(out, artist)
		}
	}
	return out, nil
}

func (m *mockSource) GetArtistInfo(ctx context.Context, artistIDs []string) ([]domain.ArtistInfo, error) {
	out := make([]domain.ArtistInfo, 0, len(artistIDs))
	for _, id := range artistIDs {
		out = append(out, domain.ArtistInfo{ID: id, Name: "artist " + id})
	}
	return out, nil
}

func (m *mockSource) GetArtistAlbums(ctx context.Context, artistIDs []string) ([]domain.AlbumInfo, error) {
	out := []domain.AlbumInfo{}
	for _, id := range artistIDs {
		out = append(out, m.artistAlbums[id]...)
	}
	return out, nil
}

func (m *mockSource) GetAlbumTracks(ctx context.Context, albumIDs []string) ([]domain.TrackInfo, error) {
	if m.albumTracksErr != nil {
		return nil, m.albumTracksErr
	}
	out := []domain.TrackInfo{}
	for _, id := range albumIDs {
		out = append(out, m.albumTracks[id]...)
	}
	return out, nil
}

func (m *mockSource) GetTrackFeatures(ctx context.Context, trackIDs []string) ([]domain.TrackFeatures, error) {
	if m.featuresErr != nil {
		return nil, m.featuresErr
	}
	out := []domain.TrackFeatures{}
	for _, id := range trackIDs {
		if f, ok := m.features[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// mockWriter records the last delivery.
type mockWriter struct {
	playlistID string
	tracks     []string
	calls      int
	err        error
}

var _ ports.PlaylistWriter = (*mockWriter)(nil)

func (m *mockWriter) WritePlaylistTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if m.err != nil {
		return m.err
	}
	m.calls++
	m.playlistID = playlistID
	m.tracks = trackIDs
	return nil
}

// mockRanker returns a fixed order.
type mockRanker struct {
	ranked []string
	called bool
	err    error
}

var _ ports.TrackRanker = (*mockRanker)(nil)

func (m *mockRanker) RankTracks(ctx context.Context, trackIDs []string, goodPlaylistID, greatPlaylistID string) ([]string, error) {
	m.called = true
	if m.err != nil {
		return nil, m.err
	}
	return m.ranked, nil
}
