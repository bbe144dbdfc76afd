package graphview

import (
	"fmt"
	"strconv"
	"strings"
)

// EdgePath returns SVG path data for an edge between two node centers: a
// cubic curve whose control points keep each endpoint's X and meet at the
// halfway Y. The S-bulge grows with vertical separation and the curve
// straightens into a plain line as its endpoints align horizontally. Initial
// draws and drag redraws share this one rule, so edges never change shape
// between the two.
func EdgePath(from, to Point) string {
	midY := from.Y + (to.Y-from.Y)/2
	return fmt.Sprintf("M %s %s C %s %s, %s %s, %s %s",
		ftoa(from.X), ftoa(from.Y),
		ftoa(from.X), ftoa(midY),
		ftoa(to.X), ftoa(midY),
		ftoa(to.X), ftoa(to.Y))
}

// ftoa formats a coordinate with at most one decimal place.
func ftoa(v float64) string {
	s := strconv.FormatFloat(v, 'f', 1, 64)
	return strings.TrimSuffix(s, ".0")
}
