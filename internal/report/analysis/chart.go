package analysis

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	chartWidth    = 800
	chartHeight   = 400
	barWidth      = 40
	minBarsWidth  = 400
	barSlotWidth  = 60
	rangePaddingF = 0.05
)

func pointStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    3,
		DotColor:    col,
	}
}

func lineStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: 1.5,
		StrokeColor: col,
	}
}

// paddedRange spans values with a little margin; go-chart refuses zero
// width ranges, so a single distinct value gets +-1 around it.
func paddedRange(values []float64) *chart.ContinuousRange {
	if len(values) == 0 {
		return &chart.ContinuousRange{Min: 0, Max: 1}
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		return &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
	}
	pad := (hi - lo) * rangePaddingF
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

func seriesSVG(title, xName, yName string, series chart.Series, xs, ys []float64) (string, error) {
	ch := chart.Chart{
		Title:  title,
		Width:  chartWidth,
		Height: chartHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16},
		},
		XAxis:  chart.XAxis{Name: xName, Range: paddedRange(xs)},
		YAxis:  chart.YAxis{Name: yName, Range: paddedRange(ys)},
		Series: []chart.Series{series},
	}

	var buf bytes.Buffer
	if err := ch.Render(chart.SVG, &buf); err != nil {
		return "", fmt.Errorf("render chart %q: %w", title, err)
	}
	return buf.String(), nil
}

func scatterSVG(title, xName, yName string, xs, ys []float64) (string, error) {
	series := chart.ContinuousSeries{
		Name:    title,
		XValues: xs,
		YValues: ys,
		Style:   pointStyle(chart.ColorBlue),
	}
	return seriesSVG(title, xName, yName, series, xs, ys)
}

func lineSVG(title, xName, yName string, xs, ys []float64) (string, error) {
	if len(xs) == 1 {
		// a line needs two points
		xs = []float64{xs[0], xs[0] + 1}
		ys = []float64{ys[0], ys[0]}
	}
	series := chart.ContinuousSeries{
		Name:    title,
		XValues: xs,
		YValues: ys,
		Style:   lineStyle(chart.ColorRed),
	}
	return seriesSVG(title, xName, yName, series, xs, ys)
}

func barSVG(title, yName string, bars []chart.Value) (string, error) {
	if len(bars) == 0 {
		return "", fmt.Errorf("render bar chart %q: no bars", title)
	}

	maxValue := 0.0
	for _, b := range bars {
		if b.Value > maxValue {
			maxValue = b.Value
		}
	}
	if maxValue == 0 {
		maxValue = 1
	}

	width := len(bars)*barSlotWidth + 100
	if width < minBarsWidth {
		width = minBarsWidth
	}

	bc := chart.BarChart{
		Title:  title,
		Width:  width,
		Height: chartHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		BarWidth: barWidth,
		YAxis: chart.YAxis{
			Name:  yName,
			Range: &chart.ContinuousRange{Min: 0, Max: maxValue * 1.1},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := bc.Render(chart.SVG, &buf); err != nil {
		return "", fmt.Errorf("render bar chart %q: %w", title, err)
	}
	return buf.String(), nil
}
