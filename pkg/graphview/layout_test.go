package graphview_test

import (
	"math"
	"testing"

	"github.com/pipeloom/pipeloom/pkg/graphview"
	"github.com/pipeloom/pipeloom/pkg/pipeline"
)

func closeTo(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func threeColumnPipeline() *pipeline.Pipeline {
	return &pipeline.Pipeline{Steps: []pipeline.Step{
		{ID: "fetch", Name: "Fetch"},
		{ID: "clean", Name: "Clean", DependsOn: []string{"fetch"}},
		{ID: "store", Name: "Store", DependsOn: []string{"clean"}},
	}}
}

func TestComputeLayout_Columns(t *testing.T) {
	g := graphview.BuildGraph(threeColumnPipeline())
	l := graphview.ComputeLayout(g, 960, nil)

	if !closeTo(l.Pos["fetch"].X, graphview.HMargin) {
		t.Errorf("source column x = %v, want %v", l.Pos["fetch"].X, graphview.HMargin)
	}
	if !closeTo(l.Pos["clean"].X, 480) {
		t.Errorf("transform column x = %v, want 480", l.Pos["clean"].X)
	}
	if !closeTo(l.Pos["store"].X, 960-graphview.HMargin) {
		t.Errorf("sink column x = %v, want %v", l.Pos["store"].X, 960-graphview.HMargin)
	}
}

func TestComputeLayout_SingleNodeCentered(t *testing.T) {
	// One node per column sits at the vertical center of the base height.
	g := graphview.BuildGraph(threeColumnPipeline())
	l := graphview.ComputeLayout(g, 960, nil)
	for _, id := range []string{"fetch", "clean", "store"} {
		if !closeTo(l.Pos[id].Y, graphview.BaseHeight/2) {
			t.Errorf("%s y = %v, want %v", id, l.Pos[id].Y, graphview.BaseHeight/2)
		}
	}
}

func TestComputeLayout_SlotDistribution(t *testing.T) {
	// Three transforms share the middle column: slots at 1/4, 2/4, 3/4 of
	// the usable height, in definition order.
	p := &pipeline.Pipeline{Steps: []pipeline.Step{
		{ID: "t1", Name: "Alpha"},
		{ID: "t2", Name: "Beta"},
		{ID: "t3", Name: "Gamma"},
	}}
	g := graphview.BuildGraph(p)
	l := graphview.ComputeLayout(g, 960, nil)

	usable := graphview.BaseHeight - 2*graphview.VMargin
	for i, id := range []string{"t1", "t2", "t3"} {
		want := graphview.VMargin + float64(i+1)*usable/4
		if !closeTo(l.Pos[id].Y, want) {
			t.Errorf("%s y = %v, want %v", id, l.Pos[id].Y, want)
		}
	}
}

func TestComputeLayout_HeightGrows(t *testing.T) {
	steps := make([]pipeline.Step, 7)
	for i := range steps {
		steps[i] = pipeline.Step{ID: string(rune('a' + i)), Name: "Work"}
	}
	g := graphview.BuildGraph(&pipeline.Pipeline{Steps: steps})
	l := graphview.ComputeLayout(g, 960, nil)

	want := 7 * graphview.PerNodeHeight
	if !closeTo(l.Height, want) {
		t.Errorf("height = %v, want %v", l.Height, want)
	}
	// Slots spread over the grown height, still evenly spaced.
	spacing := (l.Height - 2*graphview.VMargin) / 8
	prev := l.Pos["a"].Y
	for _, id := range []string{"b", "c", "d", "e", "f", "g"} {
		if !closeTo(l.Pos[id].Y-prev, spacing) {
			t.Fatalf("uneven spacing at %s: %v, want %v", id, l.Pos[id].Y-prev, spacing)
		}
		prev = l.Pos[id].Y
	}
}

func TestComputeLayout_WidthFallback(t *testing.T) {
	g := graphview.BuildGraph(threeColumnPipeline())
	for _, width := range []float64{0, -5} {
		l := graphview.ComputeLayout(g, width, nil)
		if !closeTo(l.Width, graphview.DefaultWidth) {
			t.Errorf("width %v → %v, want %v", width, l.Width, graphview.DefaultWidth)
		}
		if !closeTo(l.Pos["clean"].X, graphview.DefaultWidth/2) {
			t.Errorf("center column x = %v", l.Pos["clean"].X)
		}
	}
}

func TestComputeLayout_SavedOverride(t *testing.T) {
	g := graphview.BuildGraph(threeColumnPipeline())
	saved := map[string]graphview.Point{
		"clean": {X: 123, Y: 456},
		"gone":  {X: 1, Y: 1}, // unknown id: ignored
	}
	l := graphview.ComputeLayout(g, 960, saved)

	if l.Pos["clean"] != (graphview.Point{X: 123, Y: 456}) {
		t.Errorf("clean = %+v, want saved position verbatim", l.Pos["clean"])
	}
	if !closeTo(l.Pos["fetch"].X, graphview.HMargin) {
		t.Errorf("fetch still computed, got %+v", l.Pos["fetch"])
	}
	if _, ok := l.Pos["gone"]; ok {
		t.Error("unknown saved id leaked into layout")
	}
}
