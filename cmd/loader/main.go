// The loader caches remote slide data locally and builds the basemap tile
// pyramid, so the server never fetches at request time.
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/EChinLee/EChin-CPLN6920-Storymap/internal/basemap"
	"github.com/EChinLee/EChin-CPLN6920-Storymap/internal/config"
	"github.com/EChinLee/EChin-CPLN6920-Storymap/internal/logger"
	"github.com/EChinLee/EChin-CPLN6920-Storymap/internal/source"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile  string   `short:"c" long:"config"       env:"CONFIG_FILE" description:"Path to story configuration file" default:"story.yaml"`
	Limit       []string `short:"l" long:"limit"        env:"LIMIT_IDS"   description:"Limit processing to specific slide ids"`
	Concurrency int      `short:"p" long:"concurrency"  env:"CONCURRENCY" description:"Tile download concurrency" default:"8"`
	TilesOnly   bool     `short:"t" long:"tiles-only"   description:"Build basemap tiles only"`
	GeoJSONOnly bool     `short:"g" long:"geojson-only" description:"Cache slide GeoJSON only"`
	Force       bool     `short:"f" long:"force"        description:"Force overwrite of existing files"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	story, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load story configuration")
	}

	processTiles := true
	processGeo := true
	if opts.TilesOnly && !opts.GeoJSONOnly {
		processGeo = false
	} else if opts.GeoJSONOnly && !opts.TilesOnly {
		processTiles = false
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
		Timeout: 15 * time.Second,
	}

	// Filter slides if limit is set
	slides := story.Slides
	if len(opts.Limit) > 0 {
		byID := make(map[string]config.Slide, len(story.Slides))
		for _, s := range story.Slides {
			byID[s.ID] = s
		}

		slides = make([]config.Slide, 0, len(opts.Limit))
		seen := make(map[string]bool)

		for _, id := range opts.Limit {
			if seen[id] {
				continue
			}
			seen[id] = true

			if s, ok := byID[id]; ok {
				slides = append(slides, s)
			} else {
				log.Error().
					Str("id", id).
					Msg("Slide specified in --limit not found in configuration")
			}
		}
	}

	log.Info().
		Int("slides_total", len(story.Slides)).
		Int("slides_queued", len(slides)).
		Msg("Starting loader")

	ctx := context.Background()

	if processGeo {
		for _, slide := range slides {
			if err := cacheSlide(ctx, client, story.DataDir, slide, opts.Force); err != nil {
				log.Error().Err(err).Str("slide", slide.ID).Msg("Failed to cache slide data")
			}
		}
	}

	if processTiles && story.Basemap != nil {
		if err := basemap.Build(client, story.Basemap, opts.Concurrency, opts.Force); err != nil {
			log.Error().Err(err).Msg("Failed to build basemap")
		}
	}

	log.Info().Msg("Loader finished successfully")
}

// cacheSlide downloads one slide's collection to the data directory. Slides
// without a remote source are expected to have hand-placed files and are
// skipped.
func cacheSlide(ctx context.Context, client *http.Client, dataDir string, slide config.Slide, force bool) error {
	if slide.SourceURL == "" {
		return nil
	}

	destFile := source.CachePath(dataDir, slide.ID)
	if _, err := os.Stat(destFile); err == nil && !force {
		log.Debug().Str("slide", slide.ID).Msg("Data file exists, skipping")
		return nil
	}

	log.Info().
		Str("slide", slide.ID).
		Str("source", slide.SourceURL).
		Msg("Caching slide data from URL")

	fc, err := source.FetchCollection(ctx, client, slide.SourceURL)
	if err != nil {
		return err
	}

	return source.SaveCollection(dataDir, destFile, fc)
}
