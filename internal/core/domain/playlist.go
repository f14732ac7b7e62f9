package domain

// PlaylistMeta is the metadata subset collected for a playlist.
type PlaylistMeta struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Owner       string `json:"owner"`
	Description string `json:"description"`
	SnapshotID  string `json:"snapshot_id"`
}

// PlaylistSnapshot is a playlist's most recently collected membership plus a
// changelog keyed by collection date. The runner writes a snapshot back after
// each fresh collection and otherwise treats it as read-only.
type PlaylistSnapshot struct {
	Meta          PlaylistMeta              `json:"info"`
	LastCollected string                    `json:"last_collected"`
	Tracks        []string                  `json:"tracks"`
	Artists       []string                  `json:"artists"`
	Changelog     map[string]PlaylistChange `json:"changelog,omitempty"`
}

// PlaylistChange records a playlist's membership as of one collection date.
type PlaylistChange struct {
	Tracks  []string `json:"tracks"`
	Artists []string `json:"artists"`
}

// Blacklist is a named set of excluded artist IDs. When InputPlaylist is set
// the artist set is refreshed from that playlist before each use.
type Blacklist struct {
	Name          string   `json:"name"`
	InputPlaylist string   `json:"input_playlist,omitempty"`
	Artists       []string `json:"blacklist"`
}
