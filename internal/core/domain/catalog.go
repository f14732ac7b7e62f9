package domain

// ArtistInfo is the persisted slice of an artist's source-API record.
type ArtistInfo struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres"`
	Followers  int      `json:"followers"`
	Popularity int      `json:"popularity"`
}

// AlbumInfo is the persisted slice of an album's source-API record. Artists
// holds artist IDs only.
type AlbumInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	AlbumType   string   `json:"album_type"`
	ReleaseDate string   `json:"release_date"`
	TotalTracks int      `json:"total_tracks"`
	Artists     []string `json:"artists"`
}

// TrackInfo is the persisted slice of a track's source-API record. Artists
// holds artist IDs only.
type TrackInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	AlbumID     string   `json:"album_id"`
	Artists     []string `json:"artists"`
	DurationMS  int      `json:"duration_ms"`
	Explicit    bool     `json:"explicit"`
	TrackNumber int      `json:"track_number"`
}

// TrackFeatures holds a track's audio features as reported by the source API.
type TrackFeatures struct {
	ID               string  `json:"id"`
	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	PitchKey         int     `json:"key"`
	Loudness         float64 `json:"loudness"`
	Mode             int     `json:"mode"`
	Speechiness      float64 `json:"speechiness"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
	Liveness         float64 `json:"liveness"`
	Valence          float64 `json:"valence"`
	Tempo            float64 `json:"tempo"`
	TimeSignature    int     `json:"time_signature"`
}
