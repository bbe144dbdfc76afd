package graphview

import (
	"errors"
	"fmt"
	"math"

	"github.com/pipeloom/pipeloom/pkg/pipeline"
)

// Zoom limits and node geometry shared by hit testing and rendering.
const (
	MinZoom    = 0.4
	MaxZoom    = 2.5
	NodeRadius = 26.0
)

// EventKind names a pointer or viewport event forwarded from the browser.
type EventKind string

const (
	EventPointerDown EventKind = "pointerdown"
	EventPointerMove EventKind = "pointermove"
	EventPointerUp   EventKind = "pointerup"
	EventWheel       EventKind = "wheel"
	EventDoubleClick EventKind = "dblclick"
	EventResize      EventKind = "resize"
)

// Event is one interaction event in screen coordinates. DeltaY is set for
// wheel events, Width for resize events.
type Event struct {
	Kind   EventKind `json:"kind"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	DeltaY float64   `json:"delta_y,omitempty"`
	Width  float64   `json:"width,omitempty"`
}

// ErrUnknownEvent is returned by Handle for event kinds the scene does not
// recognize.
var ErrUnknownEvent = errors.New("graphview: unknown event kind")

type dragKind int

const (
	dragNone dragKind = iota
	dragPan
	dragNode
)

// Scene holds the full interaction state of one diagram: graph, layout,
// viewport transform, and any in-progress drag. A Scene is not safe for
// concurrent use; the host serializes events per session.
type Scene struct {
	theme Theme

	graph  *Graph
	layout Layout

	offsetX float64
	offsetY float64
	zoom    float64

	drag   dragKind
	dragID string
	grabDX float64 // world-space offset from pointer to dragged node center
	grabDY float64
	lastX  float64 // last pointer position in screen space, for panning
	lastY  float64

	saved  map[string]Point // overrides supplied at rebuild time
	cache  map[string]Point // positions changed by drags since the last rebuild
	active string           // node id with the pulsing glow, "" for none
}

// NewScene returns an empty scene with an identity transform.
func NewScene(theme Theme) *Scene {
	return &Scene{
		theme: theme,
		zoom:  1,
		saved: map[string]Point{},
		cache: map[string]Point{},
	}
}

// SetTheme switches the palette used on the next render.
func (s *Scene) SetTheme(t Theme) { s.theme = t }

// Theme returns the current palette.
func (s *Scene) Theme() Theme { return s.theme }

// SetPipeline rebuilds the diagram from a pipeline definition. Positions in
// saved pin their nodes; every other node gets a computed slot. The drag
// cache is cleared: only drags performed after the rebuild count as unsaved
// changes. The viewport transform resets to identity; it is never carried
// from one definition to the next.
func (s *Scene) SetPipeline(p *pipeline.Pipeline, saved map[string]Point) {
	s.graph = BuildGraph(p)
	s.saved = make(map[string]Point, len(saved))
	for id, pt := range saved {
		s.saved[id] = pt
	}
	s.cache = make(map[string]Point)
	s.layout = ComputeLayout(s.graph, s.layout.Width, s.saved)
	if s.active != "" && s.graph.Node(s.active) == nil {
		s.active = ""
	}
	s.offsetX, s.offsetY = 0, 0
	s.zoom = 1
	s.drag = dragNone
	s.dragID = ""
}

// CommitSaved replaces the rebuild-time pin set with snapshot and clears the
// drag cache, leaving geometry and the viewport alone. Hosts call this after
// persisting PositionsForSave so a later rebuild pins what was stored.
func (s *Scene) CommitSaved(snapshot map[string]Point) {
	s.saved = make(map[string]Point, len(snapshot))
	for id, pt := range snapshot {
		s.saved[id] = pt
	}
	s.cache = make(map[string]Point)
}

// Handle processes one interaction event.
func (s *Scene) Handle(ev Event) error {
	switch ev.Kind {
	case EventPointerDown:
		s.pointerDown(ev.X, ev.Y)
	case EventPointerMove:
		s.pointerMove(ev.X, ev.Y)
	case EventPointerUp:
		s.drag = dragNone
		s.dragID = ""
	case EventWheel:
		s.wheel(ev.X, ev.Y, ev.DeltaY)
	case EventDoubleClick:
		// Accepted and ignored: reserved for a future node detail view.
	case EventResize:
		s.resize(ev.Width)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Kind)
	}
	return nil
}

func (s *Scene) pointerDown(x, y float64) {
	wx, wy := s.screenToWorld(x, y)
	// A node under the pointer captures the gesture; panning only starts on
	// empty canvas.
	if n := s.hitNode(wx, wy); n != nil {
		pos := s.layout.Pos[n.ID()]
		s.drag = dragNode
		s.dragID = n.ID()
		s.grabDX = pos.X - wx
		s.grabDY = pos.Y - wy
		return
	}
	s.drag = dragPan
	s.lastX, s.lastY = x, y
}

func (s *Scene) pointerMove(x, y float64) {
	switch s.drag {
	case dragNode:
		wx, wy := s.screenToWorld(x, y)
		p := Point{X: wx + s.grabDX, Y: wy + s.grabDY}
		s.layout.Pos[s.dragID] = p
		s.cache[s.dragID] = p
	case dragPan:
		s.offsetX += x - s.lastX
		s.offsetY += y - s.lastY
		s.lastX, s.lastY = x, y
		s.clampPan()
	}
}

func (s *Scene) wheel(x, y, deltaY float64) {
	factor := 1.1
	if deltaY > 0 {
		factor = 1 / 1.1
	}
	z := clamp(s.zoom*factor, MinZoom, MaxZoom)
	// Keep the world point under the cursor fixed while scaling.
	s.offsetX = x - (x-s.offsetX)*z/s.zoom
	s.offsetY = y - (y-s.offsetY)*z/s.zoom
	s.zoom = z
	s.clampPan()
}

func (s *Scene) resize(width float64) {
	if s.graph == nil {
		return
	}
	s.layout = ComputeLayout(s.graph, width, s.overrides())
}

// SetZoom sets the zoom level directly, clamped to [MinZoom, MaxZoom].
func (s *Scene) SetZoom(z float64) {
	s.zoom = clamp(z, MinZoom, MaxZoom)
	s.clampPan()
}

// Zoom returns the current zoom level.
func (s *Scene) Zoom() float64 { return s.zoom }

// Transform returns the viewport transform: screen = world*zoom + offset.
func (s *Scene) Transform() (offsetX, offsetY, zoom float64) {
	return s.offsetX, s.offsetY, s.zoom
}

// Cursor returns the CSS cursor for the current gesture state.
func (s *Scene) Cursor() string {
	if s.drag != dragNone {
		return "grabbing"
	}
	return "grab"
}

// SetActive marks the node that renders with a pulsing glow; pass "" to
// clear it. Unknown ids simply render no glow.
func (s *Scene) SetActive(id string) { s.active = id }

// Active returns the glowing node id, or "".
func (s *Scene) Active() string { return s.active }

// Graph returns the current diagram model.
func (s *Scene) Graph() *Graph { return s.graph }

// Layout returns the current layout.
func (s *Scene) Layout() Layout { return s.layout }

// Dragged returns a copy of the positions changed by drags since the last
// rebuild.
func (s *Scene) Dragged() map[string]Point {
	out := make(map[string]Point, len(s.cache))
	for id, p := range s.cache {
		out[id] = p
	}
	return out
}

// PositionsForSave returns every position override in effect (rebuild-time
// pins plus drags since), restricted to nodes still in the graph. Nothing is
// persisted until the host stores this snapshot explicitly.
func (s *Scene) PositionsForSave() map[string]Point {
	merged := s.overrides()
	for id := range merged {
		if s.graph == nil || s.graph.Node(id) == nil {
			delete(merged, id)
		}
	}
	return merged
}

func (s *Scene) overrides() map[string]Point {
	m := make(map[string]Point, len(s.saved)+len(s.cache))
	for id, p := range s.saved {
		m[id] = p
	}
	for id, p := range s.cache {
		m[id] = p
	}
	return m
}

func (s *Scene) screenToWorld(x, y float64) (wx, wy float64) {
	return (x - s.offsetX) / s.zoom, (y - s.offsetY) / s.zoom
}

// hitNode returns the topmost node whose circle contains the world point.
// Nodes later in definition order draw on top, so scan backward.
func (s *Scene) hitNode(wx, wy float64) *Node {
	if s.graph == nil {
		return nil
	}
	for i := len(s.graph.Nodes) - 1; i >= 0; i-- {
		n := s.graph.Nodes[i]
		p := s.layout.Pos[n.ID()]
		if math.Hypot(wx-p.X, wy-p.Y) <= NodeRadius {
			return n
		}
	}
	return nil
}

// clampPan keeps the scaled diagram rect overlapping the viewport so a wild
// pan can never lose the whole drawing off screen.
func (s *Scene) clampPan() {
	w, h := s.layout.Width, s.layout.Height
	if w <= 0 || h <= 0 {
		return
	}
	s.offsetX = clamp(s.offsetX, -w*s.zoom, w)
	s.offsetY = clamp(s.offsetY, -h*s.zoom, h)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
