package graphview

// Diagram geometry. Width is caller-supplied (browser viewport); height grows
// with the fullest column so slots never compress below a readable spacing.
const (
	DefaultWidth  = 960.0
	BaseHeight    = 540.0
	PerNodeHeight = 96.0
	HMargin       = 90.0
	VMargin       = 70.0
)

// Point is a position in diagram (world) coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Layout holds computed node positions and the diagram size they fit.
type Layout struct {
	Width  float64
	Height float64
	Pos    map[string]Point
}

// ComputeLayout places nodes in three columns, one per layer, distributing
// each column's nodes evenly over the usable height. A non-positive width
// falls back to DefaultWidth. Positions in saved override the computed slot
// for their node verbatim; unknown ids in saved are ignored.
func ComputeLayout(g *Graph, width float64, saved map[string]Point) Layout {
	if width <= 0 {
		width = DefaultWidth
	}

	var buckets [3][]*Node
	for _, n := range g.Nodes {
		buckets[n.Layer] = append(buckets[n.Layer], n)
	}
	maxBucket := 0
	for _, b := range buckets {
		if len(b) > maxBucket {
			maxBucket = len(b)
		}
	}

	height := BaseHeight
	if grown := float64(maxBucket) * PerNodeHeight; grown > height {
		height = grown
	}

	columnX := [3]float64{HMargin, width / 2, width - HMargin}
	usable := height - 2*VMargin

	l := Layout{Width: width, Height: height, Pos: make(map[string]Point, len(g.Nodes))}
	for layer, bucket := range buckets {
		n := len(bucket)
		for i, node := range bucket {
			// Slots are 1-based out of n+1 divisions: a single node sits at
			// the vertical center, two nodes at thirds, and so on.
			p := Point{
				X: columnX[layer],
				Y: VMargin + float64(i+1)*usable/float64(n+1),
			}
			if sp, ok := saved[node.ID()]; ok {
				p = sp
			}
			l.Pos[node.ID()] = p
		}
	}
	return l
}
