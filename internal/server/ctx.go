package server

import (
	"context"
	"net/http"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/EChinLee/EChin-CPLN6920-Storymap/assets"
	"github.com/EChinLee/EChin-CPLN6920-Storymap/internal/config"
	"github.com/EChinLee/EChin-CPLN6920-Storymap/internal/deck"
	"github.com/EChinLee/EChin-CPLN6920-Storymap/internal/source"
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	Story           *config.Story
	SlideResolver   map[string]string
	Styles          *deck.StyleSet
	Source          *source.Cached
	BasemapDir      string
	IndexHTML       []byte
	Favicon         []byte
	TransparentTile []byte
}

// NewServerContext initializes the context and validates the story
// configuration. Slides whose data file is missing are flagged but kept, so
// the narrative still renders without its overlay.
func NewServerContext(story *config.Story) *ServerContext {
	log.Info().Int("slide_count", len(story.Slides)).Msg("Initializing server context")

	resolver := make(map[string]string)

	for i := range story.Slides {
		slide := &story.Slides[i]

		path := source.CachePath(story.DataDir, slide.ID)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			slide.Missing = true
			log.Warn().
				Str("slide", slide.ID).
				Str("path", path).
				Msg("Slide data file not found, overlay disabled")
		} else {
			log.Trace().
				Str("slide", slide.ID).
				Msg("Slide data file found")
		}

		resolver[slide.ID] = slide.ID
		for _, alias := range slide.Aliases {
			resolver[alias] = slide.ID
		}
	}

	basemapDir := "basemap"
	if story.Basemap != nil && story.Basemap.Dir != "" {
		basemapDir = story.Basemap.Dir
	}

	log.Info().
		Str("data_dir", story.DataDir).
		Str("basemap_dir", basemapDir).
		Msg("Server context initialized successfully")

	return &ServerContext{
		Story:           story,
		SlideResolver:   resolver,
		Styles:          deck.StyleSetFromConfig(story.Styles),
		Source:          source.NewCached(&source.Dir{Root: story.DataDir}),
		BasemapDir:      basemapDir,
		IndexHTML:       assets.Index,
		Favicon:         assets.Favicon,
		TransparentTile: assets.TransparentTile,
	}
}

// PreloadCollections warms the shared collection cache for every slide with
// present data, with bounded concurrency. A failed slide is logged and does
// not affect the others.
func (s *ServerContext) PreloadCollections(ctx context.Context, concurrency int) {
	if concurrency <= 0 {
		concurrency = 4
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for _, slide := range s.Story.Slides {
		if slide.Missing {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := s.Source.Collection(ctx, id); err != nil {
				log.Warn().Err(err).Str("slide", id).Msg("Preload failed")
			}
		}(slide.ID)
	}

	wg.Wait()

	log.Info().Int("cached", s.Source.Len()).Msg("Collections preloaded")
}

// Routes registers all handlers on the given mux.
func (s *ServerContext) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/story", s.HandleStory)
	mux.HandleFunc("/favicon.ico", s.HandleFavicon)
	mux.HandleFunc("/data/", s.HandleData)
	mux.HandleFunc("/tiles/", s.HandleTile)
	mux.HandleFunc("/ws", s.HandleWS)
	mux.HandleFunc("/", s.HandleIndex)
}
