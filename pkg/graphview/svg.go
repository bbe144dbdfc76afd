package graphview

import (
	"fmt"
	"html"
	"strings"
)

const (
	haloRadius    = 40.0
	glowDeviation = 8
	pulseDur      = "1.6s"
	captionLimit  = 14
)

// Render draws the scene as a complete standalone SVG document. Every call
// redraws from scratch; there is no retained render state to invalidate. An
// empty graph renders to the empty string.
func (s *Scene) Render() string {
	if s.graph == nil || len(s.graph.Nodes) == 0 {
		return ""
	}
	t := s.theme
	w, h := ftoa(s.layout.Width), ftoa(s.layout.Height)

	var b strings.Builder
	fmt.Fprintf(&b,
		`<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s" style="background:%s;cursor:%s">`,
		w, h, w, h, t.Background, s.Cursor())
	b.WriteByte('\n')
	s.writeDefs(&b)

	fmt.Fprintf(&b, `<g transform="translate(%s %s) scale(%s)">`,
		ftoa(s.offsetX), ftoa(s.offsetY), ftoa(s.zoom))
	b.WriteByte('\n')
	s.writeEdges(&b)
	s.writeNodes(&b)
	b.WriteString("</g>\n</svg>")
	return b.String()
}

func (s *Scene) writeDefs(b *strings.Builder) {
	t := s.theme
	b.WriteString("<defs>\n")
	// refX pulls the arrow tip back by the node radius so it lands on the
	// circle's rim, not its center.
	writeArrowMarker(b, "arrow", t.Edge)
	writeArrowMarker(b, "arrow-active", t.Accent)
	fmt.Fprintf(b,
		`<filter id="glow" x="-75%%" y="-75%%" width="250%%" height="250%%"><feGaussianBlur stdDeviation="%d"/></filter>`,
		glowDeviation)
	b.WriteString("\n</defs>\n")
}

func writeArrowMarker(b *strings.Builder, id, color string) {
	fmt.Fprintf(b,
		`<marker id="%s" markerUnits="userSpaceOnUse" markerWidth="10" markerHeight="8" refX="%s" refY="4" orient="auto"><path d="M 0 0 L 10 4 L 0 8 z" fill="%s"/></marker>`,
		id, ftoa(10+NodeRadius), color)
	b.WriteByte('\n')
}

func (s *Scene) writeEdges(b *strings.Builder) {
	t := s.theme
	for _, e := range s.graph.Edges {
		from := s.layout.Pos[e.From.ID()]
		to := s.layout.Pos[e.To.ID()]
		color, marker := t.Edge, "arrow"
		if s.active != "" && e.To.ID() == s.active {
			color, marker = t.Accent, "arrow-active"
		}
		fmt.Fprintf(b, `<path d="%s" fill="none" stroke="%s" stroke-width="2" marker-end="url(#%s)"/>`,
			EdgePath(from, to), color, marker)
		b.WriteByte('\n')
	}
}

func (s *Scene) writeNodes(b *strings.Builder) {
	t := s.theme
	for _, n := range s.graph.Nodes {
		p := s.layout.Pos[n.ID()]
		ring, numeral, caption := t.StatusColor(n.Status), t.Text, t.Caption
		if n.ID() == s.active {
			ring, numeral, caption = t.Accent, t.Accent, t.Accent
			fmt.Fprintf(b,
				`<circle cx="%s" cy="%s" r="%s" fill="%s" filter="url(#glow)"><animate attributeName="opacity" values="0.75;0.25;0.75" dur="%s" repeatCount="indefinite"/></circle>`,
				ftoa(p.X), ftoa(p.Y), ftoa(haloRadius), t.Accent, pulseDur)
			b.WriteByte('\n')
		}
		fmt.Fprintf(b, `<circle cx="%s" cy="%s" r="%s" fill="%s" stroke="%s" stroke-width="2.5"/>`,
			ftoa(p.X), ftoa(p.Y), ftoa(NodeRadius), t.NodeFill, ring)
		b.WriteByte('\n')
		fmt.Fprintf(b,
			`<text x="%s" y="%s" text-anchor="middle" font-family="ui-sans-serif,system-ui" font-size="15" font-weight="600" fill="%s">%d</text>`,
			ftoa(p.X), ftoa(p.Y+5), numeral, n.Index)
		b.WriteByte('\n')
		fmt.Fprintf(b,
			`<text x="%s" y="%s" text-anchor="middle" font-family="ui-sans-serif,system-ui" font-size="12" fill="%s">%s</text>`,
			ftoa(p.X), ftoa(p.Y+NodeRadius+18), caption, html.EscapeString(truncateCaption(n.Label())))
		b.WriteByte('\n')
	}
}

// truncateCaption shortens long labels so captions stay inside a column.
func truncateCaption(label string) string {
	runes := []rune(label)
	if len(runes) <= captionLimit {
		return label
	}
	return string(runes[:captionLimit]) + "…"
}
