package graphview_test

import (
	"errors"
	"testing"

	"github.com/pipeloom/pipeloom/pkg/graphview"
)

func newTestScene() *graphview.Scene {
	s := graphview.NewScene(graphview.DarkTheme())
	s.SetPipeline(threeColumnPipeline(), nil)
	return s
}

// With an identity transform, screen coordinates equal world coordinates, so
// node centers from the layout can be used as pointer positions directly.

func TestSetZoom_Clamped(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0.2, graphview.MinZoom},
		{5.0, graphview.MaxZoom},
		{1.7, 1.7},
		{graphview.MinZoom, graphview.MinZoom},
		{graphview.MaxZoom, graphview.MaxZoom},
	}
	for _, tt := range tests {
		s := newTestScene()
		s.SetZoom(tt.in)
		if !closeTo(s.Zoom(), tt.want) {
			t.Errorf("SetZoom(%v): zoom = %v, want %v", tt.in, s.Zoom(), tt.want)
		}
	}
}

func TestWheel_ZoomsAroundCursor(t *testing.T) {
	s := newTestScene()
	pos := s.Layout().Pos["fetch"]

	// Zoom in with the cursor over the fetch node; that node must stay put
	// on screen.
	if err := s.Handle(graphview.Event{Kind: graphview.EventWheel, X: pos.X, Y: pos.Y, DeltaY: -40}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	ox, oy, z := s.Transform()
	if !closeTo(z, 1.1) {
		t.Fatalf("zoom = %v, want 1.1", z)
	}
	if sx := pos.X*z + ox; !closeTo(sx, pos.X) {
		t.Errorf("anchor x drifted: %v, want %v", sx, pos.X)
	}
	if sy := pos.Y*z + oy; !closeTo(sy, pos.Y) {
		t.Errorf("anchor y drifted: %v, want %v", sy, pos.Y)
	}

	// Wheel the other way zooms out.
	s2 := newTestScene()
	if err := s2.Handle(graphview.Event{Kind: graphview.EventWheel, X: 0, Y: 0, DeltaY: 40}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if _, _, z := s2.Transform(); z >= 1 {
		t.Errorf("zoom = %v, want < 1", z)
	}
}

func TestPan_OnEmptyCanvas(t *testing.T) {
	s := newTestScene()
	must := func(ev graphview.Event) {
		t.Helper()
		if err := s.Handle(ev); err != nil {
			t.Fatalf("Handle(%s): %v", ev.Kind, err)
		}
	}
	// (300, 100) is empty canvas: no node there in the three column layout.
	must(graphview.Event{Kind: graphview.EventPointerDown, X: 300, Y: 100})
	if s.Cursor() != "grabbing" {
		t.Errorf("cursor = %q during pan, want grabbing", s.Cursor())
	}
	must(graphview.Event{Kind: graphview.EventPointerMove, X: 350, Y: 130})
	ox, oy, _ := s.Transform()
	if !closeTo(ox, 50) || !closeTo(oy, 30) {
		t.Errorf("offset = (%v, %v), want (50, 30)", ox, oy)
	}
	if len(s.Dragged()) != 0 {
		t.Errorf("pan polluted the drag cache: %v", s.Dragged())
	}
	must(graphview.Event{Kind: graphview.EventPointerUp})
	if s.Cursor() != "grab" {
		t.Errorf("cursor = %q after release, want grab", s.Cursor())
	}
}

func TestPan_Clamped(t *testing.T) {
	s := newTestScene()
	w := s.Layout().Width
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerDown, X: 300, Y: 100})
	// Yank the canvas impossibly far right and down.
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerMove, X: 300 + 100*w, Y: 100 + 100*w})
	ox, oy, _ := s.Transform()
	if ox > w || oy > s.Layout().Height {
		t.Errorf("offset = (%v, %v) escaped the clamp", ox, oy)
	}
}

func TestDrag_NodeCapturesPointerOverPan(t *testing.T) {
	s := newTestScene()
	pos := s.Layout().Pos["fetch"]

	// Pointer lands on the fetch node: this is a node drag, not a pan.
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerDown, X: pos.X, Y: pos.Y})
	if s.Cursor() != "grabbing" {
		t.Errorf("cursor = %q, want grabbing", s.Cursor())
	}
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerMove, X: pos.X + 30, Y: pos.Y + 40})

	ox, oy, _ := s.Transform()
	if ox != 0 || oy != 0 {
		t.Errorf("node drag moved the viewport: offset (%v, %v)", ox, oy)
	}
	got := s.Layout().Pos["fetch"]
	want := graphview.Point{X: pos.X + 30, Y: pos.Y + 40}
	if got != want {
		t.Errorf("fetch = %+v, want %+v", got, want)
	}
	if cached := s.Dragged()["fetch"]; cached != want {
		t.Errorf("drag cache = %+v, want %+v", cached, want)
	}

	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerUp})
	if s.Cursor() != "grab" {
		t.Errorf("cursor = %q after drop, want grab", s.Cursor())
	}
}

func TestDrag_GrabOffsetPreserved(t *testing.T) {
	s := newTestScene()
	pos := s.Layout().Pos["clean"]

	// Grab the node 10 units right of its center: the node must not snap to
	// the pointer.
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerDown, X: pos.X + 10, Y: pos.Y})
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerMove, X: pos.X + 60, Y: pos.Y})
	got := s.Layout().Pos["clean"]
	if !closeTo(got.X, pos.X+50) || !closeTo(got.Y, pos.Y) {
		t.Errorf("clean = %+v, want (%v, %v)", got, pos.X+50, pos.Y)
	}
}

func TestDrag_WorksWhileZoomed(t *testing.T) {
	s := newTestScene()
	s.SetZoom(2)
	pos := s.Layout().Pos["fetch"]

	// Screen position of the node center at zoom 2, offset 0.
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerDown, X: pos.X * 2, Y: pos.Y * 2})
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerMove, X: pos.X*2 + 40, Y: pos.Y * 2})
	got := s.Layout().Pos["fetch"]
	// 40 screen units at zoom 2 is 20 world units.
	if !closeTo(got.X, pos.X+20) {
		t.Errorf("fetch x = %v, want %v", got.X, pos.X+20)
	}
}

func TestRebuild_ResetsDragCache(t *testing.T) {
	s := newTestScene()
	pos := s.Layout().Pos["fetch"]
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerDown, X: pos.X, Y: pos.Y})
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerMove, X: pos.X + 50, Y: pos.Y + 50})
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerUp})
	if len(s.Dragged()) != 1 {
		t.Fatalf("drag cache = %v, want one entry", s.Dragged())
	}

	// Rebuild without saving: the drag is gone and the node is back in its
	// computed slot.
	s.SetPipeline(threeColumnPipeline(), nil)
	if len(s.Dragged()) != 0 {
		t.Errorf("drag cache survived rebuild: %v", s.Dragged())
	}
	if got := s.Layout().Pos["fetch"]; got != pos {
		t.Errorf("fetch = %+v, want computed slot %+v", got, pos)
	}
}

func TestRebuild_ResetsTransform(t *testing.T) {
	s := newTestScene()
	s.SetZoom(1.8)
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerDown, X: 300, Y: 100})
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerMove, X: 340, Y: 120})
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerUp})

	s.SetPipeline(threeColumnPipeline(), nil)
	ox, oy, z := s.Transform()
	if ox != 0 || oy != 0 || z != 1 {
		t.Errorf("transform after rebuild = (%v, %v, %v), want identity", ox, oy, z)
	}
}

func TestCommitSaved_KeepsGeometryAndViewport(t *testing.T) {
	s := newTestScene()
	s.SetZoom(1.5)
	pos := s.Layout().Pos["fetch"]
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerDown, X: pos.X * 1.5, Y: pos.Y * 1.5})
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerMove, X: pos.X*1.5 + 30, Y: pos.Y * 1.5})
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerUp})
	dragged := s.Layout().Pos["fetch"]

	s.CommitSaved(s.PositionsForSave())

	if len(s.Dragged()) != 0 {
		t.Errorf("drag cache survived commit: %v", s.Dragged())
	}
	if s.Layout().Pos["fetch"] != dragged {
		t.Errorf("commit moved the node: %+v", s.Layout().Pos["fetch"])
	}
	if _, _, z := s.Transform(); z != 1.5 {
		t.Errorf("commit touched the viewport: zoom = %v", z)
	}
	// The committed snapshot now pins the node across a resize.
	_ = s.Handle(graphview.Event{Kind: graphview.EventResize, Width: 1400})
	if s.Layout().Pos["fetch"] != dragged {
		t.Errorf("committed position lost on resize: %+v", s.Layout().Pos["fetch"])
	}
}

func TestPositionsForSave_MergesPinsAndDrags(t *testing.T) {
	s := graphview.NewScene(graphview.DarkTheme())
	saved := map[string]graphview.Point{
		"clean": {X: 200, Y: 200},
		"gone":  {X: 9, Y: 9}, // no such node anymore
	}
	s.SetPipeline(threeColumnPipeline(), saved)

	pos := s.Layout().Pos["fetch"]
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerDown, X: pos.X, Y: pos.Y})
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerMove, X: pos.X + 5, Y: pos.Y})
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerUp})

	out := s.PositionsForSave()
	if len(out) != 2 {
		t.Fatalf("PositionsForSave = %v, want clean + fetch", out)
	}
	if out["clean"] != (graphview.Point{X: 200, Y: 200}) {
		t.Errorf("pin lost: %+v", out["clean"])
	}
	if !closeTo(out["fetch"].X, pos.X+5) {
		t.Errorf("drag missing: %+v", out["fetch"])
	}
	if _, ok := out["gone"]; ok {
		t.Error("stale id exported")
	}
}

func TestResize_KeepsOverrides(t *testing.T) {
	s := newTestScene()
	pos := s.Layout().Pos["fetch"]
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerDown, X: pos.X, Y: pos.Y})
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerMove, X: pos.X + 11, Y: pos.Y})
	_ = s.Handle(graphview.Event{Kind: graphview.EventPointerUp})
	dragged := s.Layout().Pos["fetch"]

	_ = s.Handle(graphview.Event{Kind: graphview.EventResize, Width: 1400})
	if !closeTo(s.Layout().Width, 1400) {
		t.Fatalf("width = %v, want 1400", s.Layout().Width)
	}
	if !closeTo(s.Layout().Pos["clean"].X, 700) {
		t.Errorf("center column x = %v, want 700", s.Layout().Pos["clean"].X)
	}
	if s.Layout().Pos["fetch"] != dragged {
		t.Errorf("dragged node lost its position on resize: %+v", s.Layout().Pos["fetch"])
	}
}

func TestDoubleClick_AcceptedAndIgnored(t *testing.T) {
	s := newTestScene()
	before := s.Layout()
	ox, oy, z := s.Transform()
	if err := s.Handle(graphview.Event{Kind: graphview.EventDoubleClick, X: 480, Y: 270}); err != nil {
		t.Fatalf("Handle(dblclick) = %v, want nil", err)
	}
	ox2, oy2, z2 := s.Transform()
	if ox != ox2 || oy != oy2 || z != z2 {
		t.Error("double click changed the transform")
	}
	if s.Layout().Pos["fetch"] != before.Pos["fetch"] {
		t.Error("double click moved a node")
	}
}

func TestHandle_UnknownEventKind(t *testing.T) {
	s := newTestScene()
	err := s.Handle(graphview.Event{Kind: "hover"})
	if !errors.Is(err, graphview.ErrUnknownEvent) {
		t.Fatalf("err = %v, want ErrUnknownEvent", err)
	}
}

func TestSetActive(t *testing.T) {
	s := newTestScene()
	s.SetActive("clean")
	if s.Active() != "clean" {
		t.Errorf("active = %q", s.Active())
	}
	// Rebuild with the node still present keeps it; removing it clears it.
	s.SetPipeline(threeColumnPipeline(), nil)
	if s.Active() != "clean" {
		t.Errorf("active after rebuild = %q, want clean", s.Active())
	}
	p := threeColumnPipeline()
	p.Steps = p.Steps[:1]
	s.SetPipeline(p, nil)
	if s.Active() != "" {
		t.Errorf("active = %q after its node vanished, want empty", s.Active())
	}
}
