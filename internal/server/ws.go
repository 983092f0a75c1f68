package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/EChinLee/EChin-CPLN6920-Storymap/internal/deck"
	"github.com/EChinLee/EChin-CPLN6920-Storymap/internal/geo"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// mapCommand is one server-to-client instruction for the map widget.
type mapCommand struct {
	Cmd        string                     `json:"cmd"`
	Seq        uint64                     `json:"seq,omitempty"`
	Index      int                        `json:"index"`
	Bounds     *wireBounds                `json:"bounds,omitempty"`
	Collection *geojson.FeatureCollection `json:"collection,omitempty"`
	Styles     *deck.StyleSet             `json:"styles,omitempty"`
}

// wireBounds is the bounds shape the Leaflet client consumes.
type wireBounds struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// clientEvent is one browser-to-server message: layout reports, scroll
// positions, explicit navigation, and movement-end acknowledgements.
type clientEvent struct {
	Event          string    `json:"event"`
	Seq            uint64    `json:"seq,omitempty"`
	Offsets        []float64 `json:"offsets,omitempty"`
	ScrollTop      float64   `json:"scrollTop"`
	ViewportHeight float64   `json:"viewportHeight"`
}

// mapBridge implements deck.Map and deck.Panels over one websocket
// connection. FlyToBounds blocks until the client acknowledges the movement
// end for the matching sequence number, which replaces the browser-side
// one-shot moveend listener.
type mapBridge struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	seq     uint64
	waiters map[uint64]chan struct{}
}

func newMapBridge(conn *websocket.Conn) *mapBridge {
	return &mapBridge{
		conn:    conn,
		waiters: make(map[uint64]chan struct{}),
	}
}

func (b *mapBridge) send(cmd mapCommand) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.conn.WriteJSON(cmd)
}

// AddLayer ships the collection and styles to the client; bounds are
// computed server-side so the deck never waits on the client for them.
func (b *mapBridge) AddLayer(fc *geojson.FeatureCollection, styles *deck.StyleSet) deck.Layer {
	if err := b.send(mapCommand{Cmd: "setLayer", Collection: fc, Styles: styles}); err != nil {
		log.Debug().Err(err).Msg("setLayer send failed")
	}
	return &wsLayer{bridge: b, fc: fc}
}

// RemoveLayer clears the client's overlay layer group.
func (b *mapBridge) RemoveLayer(deck.Layer) {
	if err := b.send(mapCommand{Cmd: "clearLayer"}); err != nil {
		log.Debug().Err(err).Msg("clearLayer send failed")
	}
}

// FlyToBounds animates the client viewport and waits for its moveend
// acknowledgement or context cancellation.
func (b *mapBridge) FlyToBounds(ctx context.Context, bound orb.Bound) error {
	b.mu.Lock()
	b.seq++
	seq := b.seq
	ch := make(chan struct{})
	b.waiters[seq] = ch
	b.mu.Unlock()

	cmd := mapCommand{
		Cmd: "flyTo",
		Seq: seq,
		Bounds: &wireBounds{
			West:  bound.Min.Lon(),
			South: bound.Min.Lat(),
			East:  bound.Max.Lon(),
			North: bound.Max.Lat(),
		},
	}
	if err := b.send(cmd); err != nil {
		b.dropWaiter(seq)
		return err
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		b.dropWaiter(seq)
		return ctx.Err()
	}
}

func (b *mapBridge) dropWaiter(seq uint64) {
	b.mu.Lock()
	delete(b.waiters, seq)
	b.mu.Unlock()
}

// movementEnded releases the FlyToBounds call waiting on this sequence.
func (b *mapBridge) movementEnded(seq uint64) {
	b.mu.Lock()
	ch, ok := b.waiters[seq]
	if ok {
		delete(b.waiters, seq)
	}
	b.mu.Unlock()

	if ok {
		close(ch)
	}
}

// HideAll marks every slide panel hidden on the client.
func (b *mapBridge) HideAll() {
	if err := b.send(mapCommand{Cmd: "hideSlides"}); err != nil {
		log.Debug().Err(err).Msg("hideSlides send failed")
	}
}

// Show reveals one slide panel on the client.
func (b *mapBridge) Show(i int) {
	if err := b.send(mapCommand{Cmd: "showSlide", Index: i}); err != nil {
		log.Debug().Err(err).Msg("showSlide send failed")
	}
}

// HandleWS runs one scrollytelling session: a deck per connection, scroll and
// navigation events in, map commands out.
func (s *ServerContext) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	bridge := newMapBridge(conn)
	d := deck.New(s.Story.Slides, bridge, s.Source, s.Styles)
	d.SetPanels(bridge)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	log.Debug().Str("ip", r.RemoteAddr).Msg("Session started")

	for {
		var ev clientEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("Session read failed")
			}
			return
		}

		switch ev.Event {
		case "layout":
			d.SetOffsets(ev.Offsets)
			d.HideAllSlides()
			bridge.Show(d.Current())
			go syncLogged(ctx, d.SyncToCurrent)

		case "scroll":
			top, height := ev.ScrollTop, ev.ViewportHeight
			go func() {
				if _, err := d.HandleScroll(ctx, top, height); err != nil {
					log.Warn().Err(err).Msg("Scroll sync failed")
				}
			}()

		case "next":
			go syncLogged(ctx, d.Next)

		case "prev":
			go syncLogged(ctx, d.Prev)

		case "moveend":
			bridge.movementEnded(ev.Seq)

		default:
			log.Debug().Str("event", ev.Event).Msg("Unknown client event")
		}
	}
}

func syncLogged(ctx context.Context, op func(context.Context) error) {
	if err := op(ctx); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Msg("Slide sync failed")
	}
}

// wsLayer is the server-side handle for the overlay currently rendered by
// the client.
type wsLayer struct {
	bridge *mapBridge
	fc     *geojson.FeatureCollection
}

// Bounds computes the rendered overlay bounds from the shipped collection.
func (l *wsLayer) Bounds() (orb.Bound, bool) {
	return geo.CollectionBounds(l.fc)
}

// OpenPermanentTooltips tells the client to bind and open a permanent
// tooltip on every overlay feature.
func (l *wsLayer) OpenPermanentTooltips() {
	if err := l.bridge.send(mapCommand{Cmd: "openPopups"}); err != nil {
		log.Debug().Err(err).Msg("openPopups send failed")
	}
}
