package visor

import (
	"bytes"
	"fmt"
	"html"
	"math"
)

// Chart geometry in SVG user units.
const (
	chartWidth  = 480
	chartHeight = 300
	padLeft     = 56
	padRight    = 110
	padTop      = 32
	padBottom   = 40
	chartTicks  = 5
)

var seriesColors = []string{"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd"}

type point struct{ x, y float64 }

type lineSeries struct {
	name   string
	points []point
}

// renderLineChart draws series as polylines on shared axes with a legend on the right.
func renderLineChart(title, xLabel string, series []lineSeries) []byte {
	xMin, xMax := math.Inf(1), math.Inf(-1)
	yMin, yMax := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, p := range s.points {
			xMin, xMax = math.Min(xMin, p.x), math.Max(xMax, p.x)
			yMin, yMax = math.Min(yMin, p.y), math.Max(yMax, p.y)
		}
	}
	if math.IsInf(xMin, 1) {
		xMin, xMax, yMin, yMax = 0, 1, 0, 1
	}
	if xMax == xMin {
		xMin, xMax = xMin-0.5, xMax+0.5
	}
	if yMax == yMin {
		yMin, yMax = yMin-0.5, yMax+0.5
	}

	plotW := float64(chartWidth - padLeft - padRight)
	plotH := float64(chartHeight - padTop - padBottom)
	sx := func(x float64) float64 { return padLeft + (x-xMin)/(xMax-xMin)*plotW }
	sy := func(y float64) float64 { return padTop + (1-(y-yMin)/(yMax-yMin))*plotH }

	var b bytes.Buffer
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" font-family="sans-serif" font-size="11">`+"\n", chartWidth, chartHeight)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="white"/>`+"\n", chartWidth, chartHeight)
	fmt.Fprintf(&b, `<text x="%d" y="18" font-size="14">%s</text>`+"\n", padLeft, html.EscapeString(title))

	// Axes and grid.
	fmt.Fprintf(&b, `<g stroke="#ccc">`+"\n")
	for i := 0; i <= chartTicks; i++ {
		y := padTop + plotH*float64(i)/chartTicks
		fmt.Fprintf(&b, `<line x1="%d" y1="%.1f" x2="%.1f" y2="%.1f"/>`+"\n", padLeft, y, padLeft+plotW, y)
	}
	fmt.Fprintf(&b, "</g>\n")
	fmt.Fprintf(&b, `<g stroke="black"><line x1="%d" y1="%d" x2="%d" y2="%.1f"/><line x1="%d" y1="%.1f" x2="%.1f" y2="%.1f"/></g>`+"\n",
		padLeft, padTop, padLeft, padTop+plotH, padLeft, padTop+plotH, padLeft+plotW, padTop+plotH)

	for i := 0; i <= chartTicks; i++ {
		v := yMax - (yMax-yMin)*float64(i)/chartTicks
		y := padTop + plotH*float64(i)/chartTicks
		fmt.Fprintf(&b, `<text x="%d" y="%.1f" text-anchor="end">%.3g</text>`+"\n", padLeft-4, y+4, v)
	}
	for i := 0; i <= chartTicks; i++ {
		v := xMin + (xMax-xMin)*float64(i)/chartTicks
		fmt.Fprintf(&b, `<text x="%.1f" y="%.1f" text-anchor="middle">%.3g</text>`+"\n", sx(v), padTop+plotH+14, v)
	}
	fmt.Fprintf(&b, `<text x="%.1f" y="%d" text-anchor="middle">%s</text>`+"\n", padLeft+plotW/2, chartHeight-6, html.EscapeString(xLabel))

	for i, s := range series {
		c := seriesColors[i%len(seriesColors)]
		fmt.Fprintf(&b, `<polyline fill="none" stroke="%s" stroke-width="2" points="`, c)
		for j, p := range s.points {
			if j > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%.1f,%.1f", sx(p.x), sy(p.y))
		}
		b.WriteString(`"/>` + "\n")
		for _, p := range s.points {
			fmt.Fprintf(&b, `<circle cx="%.1f" cy="%.1f" r="2.5" fill="%s"/>`+"\n", sx(p.x), sy(p.y), c)
		}

		ly := padTop + 14*i
		fmt.Fprintf(&b, `<rect x="%.1f" y="%d" width="10" height="10" fill="%s"/>`+"\n", padLeft+plotW+12, ly, c)
		fmt.Fprintf(&b, `<text x="%.1f" y="%d">%s</text>`+"\n", padLeft+plotW+26, ly+9, html.EscapeString(s.name))
	}

	b.WriteString("</svg>\n")
	return b.Bytes()
}
