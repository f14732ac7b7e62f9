package config

import "testing"

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"STORM_DATABASE_PATH", "database.path"},
		{"STORM_SPOTIFY_CLIENT_ID", "spotify.client_id"},
		{"STORM_COLLECTION_CONSECUTIVE_BAD_BATCHES_LIMIT", "collection.consecutive_bad_batches_limit"},
		{"STORM_LOGGING_LEVEL", "logging.level"},
	}
	for _, tc := range tests {
		if got := envTransform(tc.in); got != tc.want {
			t.Errorf("envTransform(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "/nonexistent/storm.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Collection.RetryLimit != 5 {
		t.Fatalf("retry limit = %d, want default 5", cfg.Collection.RetryLimit)
	}
	if cfg.Collection.RereleaseWindowDays != 60 {
		t.Fatalf("window = %d, want default 60", cfg.Collection.RereleaseWindowDays)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("log level = %s, want info", cfg.Logging.Level)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "/nonexistent/storm.yaml")
	t.Setenv("STORM_DATABASE_PATH", "/tmp/other.db")
	t.Setenv("STORM_COLLECTION_RETRY_LIMIT", "9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/tmp/other.db" {
		t.Fatalf("database path = %s", cfg.Database.Path)
	}
	if cfg.Collection.RetryLimit != 9 {
		t.Fatalf("retry limit = %d, want 9", cfg.Collection.RetryLimit)
	}
}
