// Package main provides the gapless player entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"gapless/internal/app/enrich"
	"gapless/internal/app/playback"
	"gapless/internal/app/resolve"
	"gapless/internal/app/session"
	"gapless/internal/app/session/registry"
	"gapless/internal/infra/config"
	"gapless/internal/infra/logger"
	"gapless/internal/infra/lyrics"
	clocksink "gapless/internal/infra/sink"
	"gapless/internal/infra/spotify"
	"gapless/internal/infra/youtube"
)

var (
	app        = kingpin.New("gapless", "gapless track preparation and playback pipeline")
	configPath = app.Flag("config", "Path to config file").Default("config/gapless.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	sourceRef  = app.Arg("source", "Playlist URL, track URL or search query to play").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg, *sourceRef); err != nil {
		zlog.Error().Msgf("Player error: %v", err)
		os.Exit(1)
	}
}

// run executes the main player logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config, ref string) error {
	ctx := context.Background()

	ytClient := youtube.New()
	lyricsClient := lyrics.New()

	// Spotify is optional; without credentials only YouTube and search
	// references resolve.
	var spotifyClient *spotify.Client
	if cfg.HasSpotify() {
		var err error
		spotifyClient, err = spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
		})
		if err != nil {
			return fmt.Errorf("failed to create Spotify client: %w", err)
		}
	} else {
		zlog.Info().Msg("Spotify credentials not configured, Spotify references disabled")
	}

	// Build the resolver chain; the free-text search resolver matches
	// anything, so it goes last.
	resolvers := []resolve.SourceResolver{}
	if spotifyClient != nil {
		resolvers = append(resolvers, resolve.NewSpotifyResolver(spotifyClient))
	}
	resolvers = append(resolvers,
		resolve.NewYouTubeResolver(ytClient),
		resolve.NewSearchResolver(ytClient),
	)
	chain := resolve.NewChain(resolvers...)

	// Build the enrichment pipeline
	platforms, err := enrich.NewPlatformsFromConfig(cfg, ytClient)
	if err != nil {
		return fmt.Errorf("failed to create enrichment platforms: %w", err)
	}

	var artwork enrich.SpotifyArtwork
	if spotifyClient != nil {
		artwork = spotifyClient
	}
	enricher := enrich.New(platforms, lyricsClient, enrich.NewArtworkRouter(artwork, ytClient), enrich.Config{
		PerPlatformTimeout:  cfg.PerPlatformTimeout(),
		MaxPlatformAttempts: cfg.Enrich.MaxPlatformAttempts,
		RetryBackoff:        cfg.RetryBackoff(),
		SideFetchTimeout:    cfg.SideFetchTimeout(),
	})

	// One local session against the clock sink
	reg := registry.NewSessionRegistry()
	defer reg.CloseAll()

	guildID := snowflake.New(time.Now())
	sess := session.New(guildID, cfg, chain, enricher, clocksink.NewClockSink())
	if err := reg.Add(sess); err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}

	subID, events := sess.Subscribe()
	defer sess.Unsubscribe(subID)

	queued, err := sess.Play(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}
	zlog.Info().Msgf("Queued %d tracks from %q", queued, ref)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			zlog.Info().Msg("Received shutdown signal...")
			return nil
		case n, ok := <-events:
			if !ok {
				return nil
			}
			logNotification(n.Event)
			switch n.Event.Type {
			case playback.EventQueueEmpty:
				zlog.Info().Msg("Queue finished")
				return nil
			case playback.EventQueueDegraded:
				return fmt.Errorf("queue degraded: too many unplayable tracks in a row")
			}
		}
	}
}

func logNotification(ev playback.Event) {
	switch ev.Type {
	case playback.EventTrackChanged:
		zlog.Info().Msgf("Now playing: %s", ev.Stub.Query())
	case playback.EventTrackSkipped:
		zlog.Info().Msgf("Skipped: %s", ev.Stub.Query())
	case playback.EventStateChanged:
		zlog.Info().Msgf("Playback state: %s", ev.State)
	}
}
