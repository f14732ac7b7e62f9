package domain

import (
	"sort"
	"strings"
	"unicode"
)

// Separators for TrackKey. Source-API IDs are base62, so neither can appear
// inside an ID.
const (
	trackKeySeparator  = "::"
	artistKeySeparator = ":"
)

// TrackKey derives the content identity of a track from its display name and
// artist IDs. Two tracks with different opaque IDs but the same key are the
// same underlying song for delivery purposes (re-releases, remasters, deluxe
// editions).
//
// The key is a schema contract shared by the runner, the re-release dedup and
// the backfill tooling: it must produce identical output for identical input
// everywhere, across releases. Do not change the normalization without
// migrating persisted storm_tracks_uid sets.
func TrackKey(name string, artistIDs []string) string {
	ids := make([]string, len(artistIDs))
	copy(ids, artistIDs)
	sort.Strings(ids)

	return normalizeTrackName(name) + trackKeySeparator + strings.Join(ids, artistKeySeparator)
}

// normalizeTrackName lowercases the name and strips punctuation and spacing,
// keeping letters and digits only. "Hello!" and "hello" collapse to the same
// cleaned name; the artist block keeps such collisions apart.
func normalizeTrackName(name string) string {
	var out strings.Builder
	out.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out.WriteRune(r)
		}
	}
	return out.String()
}
