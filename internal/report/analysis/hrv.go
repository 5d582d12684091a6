package analysis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/2beens/gymhrv/internal/hrv/dataset"
	"github.com/2beens/gymhrv/internal/hrv/stats"
)

const tsLayout = "2006-01-02 15:04:05.000"

func hrvKinds() []Kind {
	return []Kind{
		{
			ID:    KindPoincare,
			Title: "Poincaré plot",
			Data:  DataHRV,
			Graph: poincareGraph,
			Table: poincareTable,
			Text:  poincareText,
		},
		histogramKind(KindRRHistogram, "RR interval histogram", "RR (ms)", rrValues),
		histogramKind(KindHRHistogram, "Heart rate histogram", "HR (bpm)", hrValues),
		timeSeriesKind(KindRRTimeSeries, "RR intervals over time", "RR (ms)", func(v float64) float64 { return v }),
		timeSeriesKind(KindHRTimeSeries, "Heart rate over time", "HR (bpm)", stats.HeartRate),
		histogramKind(KindSuccessiveDiffHistogram, "Successive differences histogram", "RR[n+1]-RR[n] (ms)", diffValues),
		{
			ID:    KindSummary,
			Title: "Summary statistics",
			Data:  DataHRV,
			Graph: summaryGraph,
			Table: summaryTable,
			Text:  summaryText,
		},
		{
			ID:    KindRawData,
			Title: "Raw intervals",
			Data:  DataHRVRaw,
			Graph: rawGraph,
			Table: rawTable,
			Text:  rawText,
		},
	}
}

func rrValues(intervals []dataset.Interval) []float64 {
	out := make([]float64, len(intervals))
	for i, in := range intervals {
		out[i] = in.Value
	}
	return out
}

func hrValues(intervals []dataset.Interval) []float64 {
	return stats.HeartRates(rrValues(intervals))
}

func diffValues(intervals []dataset.Interval) []float64 {
	return stats.SuccessiveDiffs(rrValues(intervals))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// requireIntervals fails with a no data error below minCount intervals.
func requireIntervals(kind KindID, in Input, minCount int) error {
	if len(in.Intervals) == 0 {
		return noData(kind, noDataMessage)
	}
	if len(in.Intervals) < minCount {
		return noData(kind, fmt.Sprintf("at least %d intervals needed", minCount))
	}
	return nil
}

// Poincaré

func poincareGraph(_ context.Context, in Input) (Artifact, error) {
	if err := requireIntervals(KindPoincare, in, 2); err != nil {
		return Artifact{}, err
	}
	xs, ys := stats.PoincarePairs(rrValues(in.Intervals))
	svg, err := scatterSVG("Poincaré plot", "RR[n] (ms)", "RR[n+1] (ms)", xs, ys)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{SVG: svg}, nil
}

func poincareTable(_ context.Context, in Input) (Artifact, error) {
	if err := requireIntervals(KindPoincare, in, 2); err != nil {
		return Artifact{}, err
	}
	xs, ys := stats.PoincarePairs(rrValues(in.Intervals))
	table := &Table{Columns: []string{"RR[n] (ms)", "RR[n+1] (ms)"}}
	for i := range xs {
		table.Rows = append(table.Rows, []string{formatFloat(xs[i]), formatFloat(ys[i])})
	}
	return Artifact{Table: table}, nil
}

func poincareText(_ context.Context, in Input) (Artifact, error) {
	if err := requireIntervals(KindPoincare, in, 2); err != nil {
		return Artifact{}, err
	}
	rr := rrValues(in.Intervals)
	sd1, sd2 := stats.SD1SD2(rr)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Pairs: %d\n", len(rr)-1)
	fmt.Fprintf(&sb, "SD1: %s ms\n", formatFloat(sd1))
	fmt.Fprintf(&sb, "SD2: %s ms\n", formatFloat(sd2))
	if sd2 > 0 {
		fmt.Fprintf(&sb, "SD1/SD2: %s\n", formatFloat(sd1/sd2))
	} else {
		sb.WriteString("SD1/SD2: n/a\n")
	}
	return Artifact{Text: sb.String()}, nil
}

// Histograms

func histogramKind(id KindID, title, unit string, valuesFn func([]dataset.Interval) []float64) Kind {
	minIntervals := 1
	if id == KindSuccessiveDiffHistogram {
		minIntervals = 2
	}

	bins := func(in Input) ([]stats.Bin, error) {
		if err := requireIntervals(id, in, minIntervals); err != nil {
			return nil, err
		}
		return stats.Histogram(valuesFn(in.Intervals)), nil
	}

	return Kind{
		ID:    id,
		Title: title,
		Data:  DataHRV,
		Graph: func(_ context.Context, in Input) (Artifact, error) {
			hist, err := bins(in)
			if err != nil {
				return Artifact{}, err
			}
			bars := make([]chart.Value, len(hist))
			for i, b := range hist {
				bars[i] = chart.Value{Value: float64(b.Count), Label: binLabel(b)}
			}
			svg, err := barSVG(title, "count", bars)
			if err != nil {
				return Artifact{}, err
			}
			return Artifact{SVG: svg}, nil
		},
		Table: func(_ context.Context, in Input) (Artifact, error) {
			hist, err := bins(in)
			if err != nil {
				return Artifact{}, err
			}
			table := &Table{Columns: []string{unit + " from", unit + " to", "Count"}}
			for _, b := range hist {
				table.Rows = append(table.Rows, []string{formatFloat(b.Lower), formatFloat(b.Upper), strconv.Itoa(b.Count)})
			}
			return Artifact{Table: table}, nil
		},
		Text: func(_ context.Context, in Input) (Artifact, error) {
			hist, err := bins(in)
			if err != nil {
				return Artifact{}, err
			}
			var sb strings.Builder
			fmt.Fprintf(&sb, "%s, %d bins\n", title, len(hist))
			for _, b := range hist {
				fmt.Fprintf(&sb, "%s .. %s: %d\n", formatFloat(b.Lower), formatFloat(b.Upper), b.Count)
			}
			return Artifact{Text: sb.String()}, nil
		},
	}
}

func binLabel(b stats.Bin) string {
	return fmt.Sprintf("%.0f-%.0f", b.Lower, b.Upper)
}

// Time series

func timeSeriesKind(id KindID, title, unit string, convert func(float64) float64) Kind {
	return Kind{
		ID:    id,
		Title: title,
		Data:  DataHRVRaw,
		Graph: func(_ context.Context, in Input) (Artifact, error) {
			if err := requireIntervals(id, in, 1); err != nil {
				return Artifact{}, err
			}
			start := in.Intervals[0].Timestamp
			xs := make([]float64, len(in.Intervals))
			ys := make([]float64, len(in.Intervals))
			for i, iv := range in.Intervals {
				xs[i] = iv.Timestamp.Sub(start).Seconds()
				ys[i] = convert(iv.Value)
			}
			svg, err := lineSVG(title, "time (s)", unit, xs, ys)
			if err != nil {
				return Artifact{}, err
			}
			return Artifact{SVG: svg}, nil
		},
		Table: func(_ context.Context, in Input) (Artifact, error) {
			if err := requireIntervals(id, in, 1); err != nil {
				return Artifact{}, err
			}
			table := &Table{Columns: []string{"Timestamp", unit}}
			for _, iv := range in.Intervals {
				table.Rows = append(table.Rows, []string{iv.Timestamp.Format(tsLayout), formatFloat(convert(iv.Value))})
			}
			return Artifact{Table: table}, nil
		},
		Text: func(_ context.Context, in Input) (Artifact, error) {
			if err := requireIntervals(id, in, 1); err != nil {
				return Artifact{}, err
			}
			first := in.Intervals[0]
			last := in.Intervals[len(in.Intervals)-1]
			values := make([]float64, len(in.Intervals))
			for i, iv := range in.Intervals {
				values[i] = convert(iv.Value)
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "%s\n", title)
			fmt.Fprintf(&sb, "From: %s\n", first.Timestamp.Format(tsLayout))
			fmt.Fprintf(&sb, "To: %s\n", last.Timestamp.Format(tsLayout))
			fmt.Fprintf(&sb, "Duration: %s\n", last.Timestamp.Sub(first.Timestamp).Round(time.Millisecond))
			fmt.Fprintf(&sb, "Points: %d\n", len(values))
			fmt.Fprintf(&sb, "Mean: %s %s\n", formatFloat(stats.Mean(values)), unit)
			return Artifact{Text: sb.String()}, nil
		},
	}
}

// Summary

type summaryRow struct {
	name  string
	value float64
	unit  string
}

func summaryRows(s stats.Summary) []summaryRow {
	return []summaryRow{
		{"Count", float64(s.Count), ""},
		{"Mean RR", s.MeanRR, "ms"},
		{"SDNN", s.SDNN, "ms"},
		{"RMSSD", s.RMSSD, "ms"},
		{"pNN50", s.PNN50, "%"},
		{"Min RR", s.MinRR, "ms"},
		{"Max RR", s.MaxRR, "ms"},
		{"Median RR", s.MedianRR, "ms"},
		{"Mean HR", s.MeanHR, "bpm"},
		{"SD1", s.SD1, "ms"},
		{"SD2", s.SD2, "ms"},
	}
}

func summarize(in Input) (stats.Summary, error) {
	if err := requireIntervals(KindSummary, in, 1); err != nil {
		return stats.Summary{}, err
	}
	s, _ := stats.Summarize(rrValues(in.Intervals))
	return s, nil
}

func summaryGraph(_ context.Context, in Input) (Artifact, error) {
	s, err := summarize(in)
	if err != nil {
		return Artifact{}, err
	}
	bars := []chart.Value{
		{Label: "SDNN", Value: s.SDNN},
		{Label: "RMSSD", Value: s.RMSSD},
		{Label: "SD1", Value: s.SD1},
		{Label: "SD2", Value: s.SD2},
	}
	svg, err := barSVG("HRV summary", "ms", bars)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{SVG: svg}, nil
}

func summaryTable(_ context.Context, in Input) (Artifact, error) {
	s, err := summarize(in)
	if err != nil {
		return Artifact{}, err
	}
	table := &Table{Columns: []string{"Metric", "Value", "Unit"}}
	for _, row := range summaryRows(s) {
		value := formatFloat(row.value)
		if row.name == "Count" {
			value = strconv.Itoa(s.Count)
		}
		table.Rows = append(table.Rows, []string{row.name, value, row.unit})
	}
	return Artifact{Table: table}, nil
}

func summaryText(_ context.Context, in Input) (Artifact, error) {
	s, err := summarize(in)
	if err != nil {
		return Artifact{}, err
	}
	var sb strings.Builder
	for _, row := range summaryRows(s) {
		if row.name == "Count" {
			fmt.Fprintf(&sb, "Count: %d\n", s.Count)
			continue
		}
		fmt.Fprintf(&sb, "%s: %s %s\n", row.name, formatFloat(row.value), row.unit)
	}
	return Artifact{Text: sb.String()}, nil
}

// Raw data

func rawGraph(_ context.Context, in Input) (Artifact, error) {
	if err := requireIntervals(KindRawData, in, 1); err != nil {
		return Artifact{}, err
	}
	xs := make([]float64, len(in.Intervals))
	ys := make([]float64, len(in.Intervals))
	for i, iv := range in.Intervals {
		xs[i] = float64(iv.OriginalIndex)
		ys[i] = iv.Value
	}
	svg, err := scatterSVG("Raw intervals", "index", "RR (ms)", xs, ys)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{SVG: svg}, nil
}

func rawTable(_ context.Context, in Input) (Artifact, error) {
	if err := requireIntervals(KindRawData, in, 1); err != nil {
		return Artifact{}, err
	}
	table := &Table{Columns: []string{"#", "Timestamp", "RR (ms)"}}
	for _, iv := range in.Intervals {
		table.Rows = append(table.Rows, []string{
			strconv.Itoa(iv.OriginalIndex),
			iv.Timestamp.Format(tsLayout),
			strconv.FormatFloat(iv.Value, 'f', -1, 64),
		})
	}
	return Artifact{Table: table}, nil
}

func rawText(_ context.Context, in Input) (Artifact, error) {
	if err := requireIntervals(KindRawData, in, 1); err != nil {
		return Artifact{}, err
	}
	var sb strings.Builder
	for _, iv := range in.Intervals {
		fmt.Fprintf(&sb, "%d\t%s\t%s\n", iv.OriginalIndex, iv.Timestamp.Format(tsLayout), strconv.FormatFloat(iv.Value, 'f', -1, 64))
	}
	return Artifact{Text: sb.String()}, nil
}
