package domain

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the ISO date format used for run windows and collection
// stamps. ISO dates compare correctly as strings, which the collection
// skip-checks rely on.
const DateLayout = "2006-01-02"

// FormatDate renders t as an ISO date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// RunRecord is the unit of persisted execution history: one completed run of
// one storm, bounded by [StartDate, RunDate]. Records are append-only; the
// only later mutation is the explicit backfill of TrackUIDs.
//
// Membership invariants: StormTracks ⊆ EligibleTracks, and StormArtists is
// InputArtists minus RemovedArtists. All ID slices are unordered sets.
type RunRecord struct {
	ID        string      `json:"id"`
	StormName string      `json:"storm_name"`
	Config    StormConfig `json:"config"`
	RunDate   string      `json:"run_date"`
	StartDate string      `json:"start_date"`

	Playlists      []string `json:"playlists"`
	InputTracks    []string `json:"input_tracks"`
	InputArtists   []string `json:"input_artists"`
	EligibleTracks []string `json:"eligible_tracks"`
	StormTracks    []string `json:"storm_tracks"`
	StormArtists   []string `json:"storm_artists"`
	StormAlbums    []string `json:"storm_albums"`
	RemovedArtists []string `json:"removed_artists"`
	RemovedTracks  []string `json:"removed_tracks"`

	// TrackUIDs holds the content keys of the delivered tracks. Older runs
	// were recorded before the key existed, so absence is a real state and
	// not an empty set: consult HasTrackUIDs before using it.
	TrackUIDs    []string `json:"storm_tracks_uid,omitempty"`
	HasTrackUIDs bool     `json:"-"`
}

// NewRunRecord starts an empty record for one run of the given storm.
func NewRunRecord(cfg StormConfig, stormName, startDate, runDate string) RunRecord {
	return RunRecord{
		ID:             uuid.NewString(),
		StormName:      stormName,
		Config:         cfg,
		RunDate:        runDate,
		StartDate:      startDate,
		Playlists:      []string{},
		InputTracks:    []string{},
		InputArtists:   []string{},
		EligibleTracks: []string{},
		StormTracks:    []string{},
		StormArtists:   []string{},
		StormAlbums:    []string{},
		RemovedArtists: []string{},
		RemovedTracks:  []string{},
	}
}
