package deck

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/EChinLee/EChin-CPLN6920-Storymap/internal/config"
	"github.com/EChinLee/EChin-CPLN6920-Storymap/internal/geo"
)

// stubSource returns canned collections and counts lookups per id.
type stubSource struct {
	mu    sync.Mutex
	data  map[string]*geojson.FeatureCollection
	err   error
	calls map[string]int
}

func newStubSource() *stubSource {
	return &stubSource{
		data:  make(map[string]*geojson.FeatureCollection),
		calls: make(map[string]int),
	}
}

func (s *stubSource) Collection(_ context.Context, id string) (*geojson.FeatureCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[id]++
	if s.err != nil {
		return nil, s.err
	}
	fc, ok := s.data[id]
	if !ok {
		return nil, errors.New("no such collection")
	}
	return fc, nil
}

func (s *stubSource) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

type fakeLayer struct {
	m  *fakeMap
	fc *geojson.FeatureCollection
}

func (l *fakeLayer) Bounds() (orb.Bound, bool) {
	return geo.CollectionBounds(l.fc)
}

func (l *fakeLayer) OpenPermanentTooltips() {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	l.m.events = append(l.m.events, "popups")
}

type fakeMap struct {
	mu      sync.Mutex
	added   []*fakeLayer
	removed []Layer
	flown   []orb.Bound
	events  []string
	onFly   func()
}

func (m *fakeMap) AddLayer(fc *geojson.FeatureCollection, _ *StyleSet) Layer {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := &fakeLayer{m: m, fc: fc}
	m.added = append(m.added, l)
	m.events = append(m.events, "add")
	return l
}

func (m *fakeMap) RemoveLayer(l Layer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, l)
	m.events = append(m.events, "remove")
}

func (m *fakeMap) FlyToBounds(_ context.Context, b orb.Bound) error {
	m.mu.Lock()
	m.flown = append(m.flown, b)
	m.events = append(m.events, "fly")
	hook := m.onFly
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (m *fakeMap) lastFlown() orb.Bound {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flown[len(m.flown)-1]
}

func pointCollection(coords ...orb.Point) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range coords {
		f := geojson.NewFeature(p)
		f.Properties["name"] = "spot"
		fc.Append(f)
	}
	return fc
}

func testDeck(t *testing.T, slides []config.Slide) (*Deck, *fakeMap, *stubSource) {
	t.Helper()
	src := newStubSource()
	for _, s := range slides {
		src.data[s.ID] = pointCollection(orb.Point{1, 2}, orb.Point{3, 4})
	}
	fm := &fakeMap{}
	return New(slides, fm, src, nil), fm, src
}

func slideIDs(ids ...string) []config.Slide {
	slides := make([]config.Slide, len(ids))
	for i, id := range ids {
		slides[i] = config.Slide{ID: id}
	}
	return slides
}

func TestNext_WrapsAround(t *testing.T) {
	d, _, _ := testDeck(t, slideIDs("a", "b", "c"))
	ctx := context.Background()

	want := []int{1, 2, 0, 1}
	for step, w := range want {
		if err := d.Next(ctx); err != nil {
			t.Fatalf("Next() step %d: %v", step, err)
		}
		if got := d.Current(); got != w {
			t.Errorf("Next() step %d: index = %d, want %d", step, got, w)
		}
	}
}

func TestPrev_WrapsAround(t *testing.T) {
	d, _, _ := testDeck(t, slideIDs("a", "b", "c"))
	ctx := context.Background()

	want := []int{2, 1, 0, 2}
	for step, w := range want {
		if err := d.Prev(ctx); err != nil {
			t.Fatalf("Prev() step %d: %v", step, err)
		}
		if got := d.Current(); got != w {
			t.Errorf("Prev() step %d: index = %d, want %d", step, got, w)
		}
	}
}

func TestUpdateDataLayer_ReplacesWholesale(t *testing.T) {
	d, fm, _ := testDeck(t, slideIDs("a"))

	first := d.UpdateDataLayer(pointCollection(orb.Point{0, 0}))
	second := d.UpdateDataLayer(pointCollection(orb.Point{9, 9}))

	if len(fm.added) != 2 {
		t.Fatalf("expected 2 layers added, got %d", len(fm.added))
	}
	if len(fm.removed) != 1 || fm.removed[0] != first {
		t.Errorf("expected first layer removed before second added")
	}
	if first == second {
		t.Errorf("expected a fresh layer per update")
	}
}

func TestSyncToSlide_ExplicitBBoxWins(t *testing.T) {
	slides := slideIDs("a")
	d, fm, src := testDeck(t, slides)

	fc := pointCollection(orb.Point{0, 0})
	fc.BBox = geojson.BBox{10, 20, 30, 40}
	src.data["a"] = fc

	if err := d.SyncToSlide(context.Background(), 0); err != nil {
		t.Fatalf("SyncToSlide: %v", err)
	}

	want := orb.Bound{Min: orb.Point{10, 20}, Max: orb.Point{30, 40}}
	if got := fm.lastFlown(); got != want {
		t.Errorf("viewport target = %v, want bbox bounds %v", got, want)
	}
}

func TestSyncToSlide_ComputedBoundsWithoutBBox(t *testing.T) {
	d, fm, src := testDeck(t, slideIDs("a"))
	src.data["a"] = pointCollection(orb.Point{5, 5}, orb.Point{7, 9})

	if err := d.SyncToSlide(context.Background(), 0); err != nil {
		t.Fatalf("SyncToSlide: %v", err)
	}

	want := orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{7, 9}}
	if got := fm.lastFlown(); got != want {
		t.Errorf("viewport target = %v, want overlay bounds %v", got, want)
	}
}

func TestSyncToSlide_PopupsOnlyAfterAnimation(t *testing.T) {
	slides := slideIDs("a")
	slides[0].ShowPopups = true
	d, fm, _ := testDeck(t, slides)

	if err := d.SyncToSlide(context.Background(), 0); err != nil {
		t.Fatalf("SyncToSlide: %v", err)
	}

	want := []string{"add", "fly", "popups"}
	if len(fm.events) != len(want) {
		t.Fatalf("events = %v, want %v", fm.events, want)
	}
	for i, ev := range want {
		if fm.events[i] != ev {
			t.Fatalf("events = %v, want %v", fm.events, want)
		}
	}
}

func TestSyncToSlide_NoPopupsWithoutFlag(t *testing.T) {
	d, fm, _ := testDeck(t, slideIDs("a"))

	if err := d.SyncToSlide(context.Background(), 0); err != nil {
		t.Fatalf("SyncToSlide: %v", err)
	}

	for _, ev := range fm.events {
		if ev == "popups" {
			t.Errorf("permanent tooltips opened for unflagged slide")
		}
	}
}

func TestSyncToSlide_SupersededSkipsPopups(t *testing.T) {
	slides := slideIDs("a", "b")
	slides[0].ShowPopups = true
	d, fm, _ := testDeck(t, slides)
	ctx := context.Background()

	// A navigation landing mid-animation supersedes the running sync.
	fm.onFly = func() {
		fm.mu.Lock()
		fm.onFly = nil
		fm.mu.Unlock()
		if err := d.SyncToSlide(ctx, 1); err != nil {
			t.Errorf("inner SyncToSlide: %v", err)
		}
	}

	if err := d.SyncToSlide(ctx, 0); err != nil {
		t.Fatalf("SyncToSlide: %v", err)
	}

	for _, ev := range fm.events {
		if ev == "popups" {
			t.Errorf("stale sync opened popups after being superseded")
		}
	}
}

func TestSyncToSlide_FetchErrorPropagates(t *testing.T) {
	d, fm, src := testDeck(t, slideIDs("a"))
	src.err = errors.New("boom")

	if err := d.SyncToSlide(context.Background(), 0); err == nil {
		t.Fatal("expected fetch error to propagate")
	}
	if len(fm.added) != 0 {
		t.Errorf("overlay rebuilt despite failed fetch")
	}
}

func TestSyncToSlide_IndexOutOfRange(t *testing.T) {
	d, _, _ := testDeck(t, slideIDs("a"))

	if err := d.SyncToSlide(context.Background(), 3); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}

func TestCurrentIndexForScroll(t *testing.T) {
	d, _, _ := testDeck(t, slideIDs("a", "b", "c"))
	d.SetOffsets([]float64{0, 1000, 2000})

	tests := []struct {
		name      string
		scrollTop float64
		height    float64
		want      int
	}{
		{"top of page", 0, 800, 0},
		{"first slide leaving lookahead", 700, 800, 1},
		{"between slides", 1200, 800, 1},
		{"last slide", 2100, 800, 2},
		{"past the end", 9000, 800, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.CurrentIndexForScroll(tt.scrollTop, tt.height); got != tt.want {
				t.Errorf("CurrentIndexForScroll(%v, %v) = %d, want %d", tt.scrollTop, tt.height, got, tt.want)
			}
		})
	}
}

func TestHandleScroll_IdempotentWithoutChange(t *testing.T) {
	d, _, src := testDeck(t, slideIDs("a", "b", "c"))
	d.SetOffsets([]float64{0, 1000, 2000})
	ctx := context.Background()

	changed, err := d.HandleScroll(ctx, 1200, 800)
	if err != nil {
		t.Fatalf("HandleScroll: %v", err)
	}
	if !changed {
		t.Fatal("expected first scroll to change the index")
	}
	syncs := src.total()

	changed, err = d.HandleScroll(ctx, 1200, 800)
	if err != nil {
		t.Fatalf("HandleScroll: %v", err)
	}
	if changed {
		t.Error("unchanged scroll position triggered a resync")
	}
	if src.total() != syncs {
		t.Errorf("resync side effect on unchanged index: %d fetches, want %d", src.total(), syncs)
	}
}

func TestPreload_FailureIsolation(t *testing.T) {
	slides := slideIDs("a", "b", "c")
	src := newStubSource()
	src.data["a"] = pointCollection(orb.Point{1, 1})
	src.data["c"] = pointCollection(orb.Point{2, 2})
	// "b" missing: its preload fails

	d := New(slides, &fakeMap{}, src, nil)
	d.Preload(context.Background())

	for _, id := range []string{"a", "b", "c"} {
		if src.calls[id] != 1 {
			t.Errorf("slide %q fetched %d times during preload, want 1", id, src.calls[id])
		}
	}
}

func TestSlideBBoxOverride(t *testing.T) {
	slides := slideIDs("a")
	slides[0].BBox = []float64{-1, -2, 3, 4}
	d, fm, src := testDeck(t, slides)

	fc := pointCollection(orb.Point{50, 50})
	fc.BBox = geojson.BBox{10, 20, 30, 40}
	src.data["a"] = fc

	if err := d.SyncToSlide(context.Background(), 0); err != nil {
		t.Fatalf("SyncToSlide: %v", err)
	}

	want := orb.Bound{Min: orb.Point{-1, -2}, Max: orb.Point{3, 4}}
	if got := fm.lastFlown(); got != want {
		t.Errorf("viewport target = %v, want slide override %v", got, want)
	}
}
