// Package deck implements the scrollytelling slide deck controller: it owns
// navigation state, fetches per-slide geodata, and drives the map overlay and
// viewport through the Map contract.
package deck

import (
	"context"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/EChinLee/EChin-CPLN6920-Storymap/internal/config"
	"github.com/EChinLee/EChin-CPLN6920-Storymap/internal/source"
)

// scrollLookahead marks a slide current once it is within this fraction of
// the viewport height from entering the view.
const scrollLookahead = 0.7

const defaultPreloadWorkers = 4

// Deck synchronizes slide index, scroll position, and map state. Exactly one
// overlay layer is live at a time, corresponding to the current slide.
//
// Navigation and sync methods may be called from concurrent host goroutines;
// a newer sync supersedes an older one still waiting on its fetch or
// animation.
type Deck struct {
	slides []config.Slide
	view   Map
	source source.FeatureSource
	styles *StyleSet
	log    zerolog.Logger

	// PreloadWorkers bounds Preload concurrency. Zero means the default.
	PreloadWorkers int

	mu      sync.Mutex
	idx     int
	offsets []float64
	layer   Layer
	gen     uint64
	panels  Panels
}

// New creates a deck over the given slides. The style set may be nil to use
// the defaults.
func New(slides []config.Slide, view Map, src source.FeatureSource, styles *StyleSet) *Deck {
	if styles == nil {
		styles = DefaultStyleSet()
	}
	return &Deck{
		slides: slides,
		view:   view,
		source: src,
		styles: styles,
		log:    log.Logger,
	}
}

// SetPanels attaches the narrative-panel host used for visibility toggling.
func (d *Deck) SetPanels(p Panels) {
	d.mu.Lock()
	d.panels = p
	d.mu.Unlock()
}

// SetOffsets records the vertical offset of each slide element, in slide
// order, as reported by the host layout.
func (d *Deck) SetOffsets(offsets []float64) {
	d.mu.Lock()
	d.offsets = offsets
	d.mu.Unlock()
}

// Len reports the slide count.
func (d *Deck) Len() int {
	return len(d.slides)
}

// Current reports the current slide index.
func (d *Deck) Current() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idx
}

// CurrentSlide resolves the slide at the current index.
func (d *Deck) CurrentSlide() config.Slide {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slides[d.idx]
}

// HideAllSlides marks every slide element as hidden. Host setup code calls
// this before revealing the current panel.
func (d *Deck) HideAllSlides() {
	d.mu.Lock()
	p := d.panels
	d.mu.Unlock()
	if p != nil {
		p.HideAll()
	}
}

// SlideCollection retrieves and parses the feature collection for one slide.
// Fetch and parse failures propagate to the caller.
func (d *Deck) SlideCollection(ctx context.Context, s config.Slide) (*geojson.FeatureCollection, error) {
	return d.source.Collection(ctx, s.ID)
}

// UpdateDataLayer clears the current overlay and builds a new one from the
// collection, retaining and returning it.
func (d *Deck) UpdateDataLayer(fc *geojson.FeatureCollection) Layer {
	d.mu.Lock()
	old := d.layer
	d.mu.Unlock()

	if old != nil {
		d.view.RemoveLayer(old)
	}

	layer := d.view.AddLayer(fc, d.styles)

	d.mu.Lock()
	d.layer = layer
	d.mu.Unlock()

	return layer
}

// SyncToSlide drives the full sequence for one slide: fetch, overlay rebuild,
// viewport animation, and permanent tooltips once the animation has ended.
//
// Each call takes a new generation token; a call that discovers a newer
// generation after its fetch or animation stops without touching the map
// further, so rapid navigation cannot apply stale state.
func (d *Deck) SyncToSlide(ctx context.Context, i int) error {
	d.mu.Lock()
	if i < 0 || i >= len(d.slides) {
		d.mu.Unlock()
		return fmt.Errorf("slide index %d out of range [0, %d)", i, len(d.slides))
	}
	slide := d.slides[i]
	d.gen++
	gen := d.gen
	d.mu.Unlock()

	fc, err := d.SlideCollection(ctx, slide)
	if err != nil {
		return fmt.Errorf("slide %q: %w", slide.ID, err)
	}
	if d.stale(gen) {
		d.log.Debug().Str("slide", slide.ID).Msg("Sync superseded after fetch")
		return nil
	}

	layer := d.UpdateDataLayer(fc)

	if bounds, ok := targetBounds(slide, fc, layer); ok {
		if err := d.view.FlyToBounds(ctx, bounds); err != nil {
			return fmt.Errorf("slide %q: %w", slide.ID, err)
		}
	}
	if d.stale(gen) {
		d.log.Debug().Str("slide", slide.ID).Msg("Sync superseded after animation")
		return nil
	}

	if slide.ShowPopups {
		layer.OpenPermanentTooltips()
	}

	return nil
}

func (d *Deck) stale(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gen != d.gen
}

// targetBounds picks the viewport target: a per-slide bbox override first,
// then an explicit bbox on the collection, then the computed bounds of the
// rendered overlay.
func targetBounds(slide config.Slide, fc *geojson.FeatureCollection, layer Layer) (orb.Bound, bool) {
	if len(slide.BBox) == 4 {
		return geojson.BBox(slide.BBox).Bound(), true
	}
	if fc != nil && fc.BBox.Valid() {
		return fc.BBox.Bound(), true
	}
	if layer == nil {
		return orb.Bound{}, false
	}
	return layer.Bounds()
}

// SyncToCurrent resyncs the map to the slide at the current index.
func (d *Deck) SyncToCurrent(ctx context.Context) error {
	return d.SyncToSlide(ctx, d.Current())
}

// Next advances the current index with wraparound and resyncs.
func (d *Deck) Next(ctx context.Context) error {
	d.mu.Lock()
	d.idx = (d.idx + 1) % len(d.slides)
	i := d.idx
	d.mu.Unlock()

	d.showPanel(i)
	return d.SyncToSlide(ctx, i)
}

// Prev retreats the current index with wraparound and resyncs.
func (d *Deck) Prev(ctx context.Context) error {
	d.mu.Lock()
	d.idx = (d.idx - 1 + len(d.slides)) % len(d.slides)
	i := d.idx
	d.mu.Unlock()

	d.showPanel(i)
	return d.SyncToSlide(ctx, i)
}

// CurrentIndexForScroll derives the slide index for a scroll position: the
// first slide whose offset, adjusted by the lookahead threshold, is still at
// or below the fold. Past the last slide the last index sticks.
func (d *Deck) CurrentIndexForScroll(scrollTop, viewportHeight float64) int {
	d.mu.Lock()
	offsets := d.offsets
	idx := d.idx
	d.mu.Unlock()

	for i, off := range offsets {
		if off-scrollTop+viewportHeight*scrollLookahead >= 0 {
			return i
		}
	}

	if len(offsets) == 0 {
		return idx
	}
	return len(offsets) - 1
}

// HandleScroll recalculates the current index from scroll state and resyncs
// only when the index changed. It reports whether a resync was triggered, so
// repeated calls with unchanged scroll position are side-effect free.
func (d *Deck) HandleScroll(ctx context.Context, scrollTop, viewportHeight float64) (bool, error) {
	i := d.CurrentIndexForScroll(scrollTop, viewportHeight)

	d.mu.Lock()
	if i == d.idx {
		d.mu.Unlock()
		return false, nil
	}
	d.idx = i
	d.mu.Unlock()

	d.showPanel(i)
	return true, d.SyncToSlide(ctx, i)
}

func (d *Deck) showPanel(i int) {
	d.mu.Lock()
	p := d.panels
	d.mu.Unlock()
	if p != nil {
		p.HideAll()
		p.Show(i)
	}
}

// Preload fetches every slide's collection with bounded concurrency to warm
// the source's cache. Each slide fails independently; a failed preload is
// logged and does not affect the others or later navigation.
func (d *Deck) Preload(ctx context.Context) {
	workers := d.PreloadWorkers
	if workers <= 0 {
		workers = defaultPreloadWorkers
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for _, s := range d.slides {
		wg.Add(1)
		sem <- struct{}{}

		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := d.source.Collection(ctx, id); err != nil {
				d.log.Warn().Err(err).Str("slide", id).Msg("Preload failed")
			}
		}(s.ID)
	}

	wg.Wait()
}
