package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ewilliams-labs/storm/internal/adapters/spotify"
	"github.com/ewilliams-labs/storm/internal/adapters/sqlite"
	"github.com/ewilliams-labs/storm/internal/adapters/weatherboy"
	"github.com/ewilliams-labs/storm/internal/config"
	"github.com/ewilliams-labs/storm/internal/core/services"
	"github.com/ewilliams-labs/storm/internal/logging"
)

// appContext holds the wired dependencies shared by the subcommands. init
// builds the cheap ones; the Spotify clients are built on demand because only
// live runs need credentials.
type appContext struct {
	cfg   config.Config
	log   zerolog.Logger
	store *sqlite.Store
}

func (a *appContext) init() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(cfg.Logging.Level, cfg.Logging.Format)

	store, err := sqlite.NewStore(cfg.Database.Path, a.log.With().Str("component", "store").Logger())
	if err != nil {
		return fmt.Errorf("open storage at %s: %w", cfg.Database.Path, err)
	}
	a.store = store
	return nil
}

func (a *appContext) close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// sourceClient builds the read-side Spotify client on client credentials.
func (a *appContext) sourceClient(ctx context.Context) (*spotify.Client, error) {
	if a.cfg.Spotify.ClientID == "" || a.cfg.Spotify.ClientSecret == "" {
		return nil, fmt.Errorf("spotify client_id and client_secret are required")
	}
	creds := &clientcredentials.Config{
		ClientID:     a.cfg.Spotify.ClientID,
		ClientSecret: a.cfg.Spotify.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return spotify.NewClient(creds.Client(ctx), a.log.With().Str("component", "spotify").Logger()), nil
}

// writerClient builds the write-side Spotify client. Playlist delivery needs
// a user-scoped token; client credentials cannot modify playlists.
func (a *appContext) writerClient(ctx context.Context) (*spotify.Writer, error) {
	if a.cfg.Spotify.UserToken == "" {
		return nil, fmt.Errorf("spotify user_token is required to deliver playlists")
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: a.cfg.Spotify.UserToken})
	httpClient := oauth2.NewClient(ctx, src)
	return spotify.NewWriter(httpClient, a.log.With().Str("component", "spotify").Logger()), nil
}

// runnerOptions assembles the Runner options from configuration.
func (a *appContext) runnerOptions(keepRereleases bool) []services.RunnerOption {
	opts := []services.RunnerOption{
		services.WithCollectionSettings(services.CollectionSettings{
			AlbumBatchSize:             a.cfg.Collection.AlbumBatchSize,
			FeatureBatchSize:           a.cfg.Collection.FeatureBatchSize,
			RetryLimit:                 a.cfg.Collection.RetryLimit,
			ConsecutiveBadBatchesLimit: a.cfg.Collection.ConsecutiveBadBatchesLimit,
			RereleaseWindowDays:        a.cfg.Collection.RereleaseWindowDays,
		}),
	}
	if a.cfg.Weatherboy.URL != "" {
		opts = append(opts, services.WithRanker(
			weatherboy.NewClient(a.cfg.Weatherboy.URL, a.cfg.Weatherboy.Timeout,
				a.log.With().Str("component", "weatherboy").Logger())))
	}
	if keepRereleases {
		opts = append(opts, services.KeepRereleases())
	}
	return opts
}
