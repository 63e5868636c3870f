package enrich

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"gapless/internal/infra/config"
)

// PlatformWithMetadata pairs a platform with its config metadata.
type PlatformWithMetadata struct {
	Platform
	DisplayName string
}

type searchSettings struct {
	SearchLimit int `yaml:"search_limit" mapstructure:"search_limit" default:"3" validate:"gte=1,lte=25"`
}

func decodeSearchSettings(settings map[string]any) (*searchSettings, error) {
	var cfg searchSettings
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	return &cfg, nil
}

// NewPlatformsFromConfig creates the enrichment platform list from
// configuration, in list order.
func NewPlatformsFromConfig(cfg *config.Config, source StreamSource) ([]PlatformWithMetadata, error) {
	if len(cfg.Platforms) == 0 {
		return nil, errors.New("no enrichment platforms configured")
	}

	var platforms []PlatformWithMetadata

	for i, pcfg := range cfg.Platforms {
		var platform Platform
		zlog.Debug().Msgf("creating enrichment platform: index=%d type=%s settings=%+v", i+1, pcfg.Type, pcfg.Settings)

		settings, err := decodeSearchSettings(pcfg.Settings)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create platform (index %d, type %s)", i, pcfg.Type)
		}

		switch pcfg.Type {
		case "ytmusic":
			platform = NewYTMusicPlatform(source, settings.SearchLimit)

		case "youtube":
			platform = NewYouTubePlatform(source, settings.SearchLimit)

		default:
			return nil, errors.Newf("unsupported platform type: %s (platform index %d)", pcfg.Type, i)
		}

		platforms = append(platforms, PlatformWithMetadata{
			Platform:    platform,
			DisplayName: pcfg.DisplayName,
		})

		zlog.Info().Msgf("registered enrichment platform: index=%d type=%s display_name=%s", i+1, pcfg.Type, pcfg.DisplayName)
	}

	return platforms, nil
}
