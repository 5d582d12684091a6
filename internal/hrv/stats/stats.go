// Package stats holds the HRV math shared by the analysis kinds.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// nn50 threshold, ms
const nn50Threshold = 50.0

// HeartRate converts an RR interval in ms to beats per minute.
func HeartRate(rrMs float64) float64 {
	return 60000 / rrMs
}

func HeartRates(rr []float64) []float64 {
	out := make([]float64, len(rr))
	for i, v := range rr {
		out[i] = HeartRate(v)
	}
	return out
}

// SuccessiveDiffs returns rr[i+1]-rr[i] for every consecutive pair.
func SuccessiveDiffs(rr []float64) []float64 {
	if len(rr) < 2 {
		return nil
	}
	out := make([]float64, len(rr)-1)
	for i := 0; i < len(rr)-1; i++ {
		out[i] = rr[i+1] - rr[i]
	}
	return out
}

// PoincarePairs returns (rr[i], rr[i+1]) points.
func PoincarePairs(rr []float64) (x, y []float64) {
	if len(rr) < 2 {
		return nil, nil
	}
	return rr[:len(rr)-1], rr[1:]
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// SampleSD is the n-1 standard deviation, 0 for fewer than two values.
func SampleSD(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func RMSSD(rr []float64) float64 {
	diffs := SuccessiveDiffs(rr)
	if len(diffs) == 0 {
		return 0
	}
	sum := 0.0
	for _, d := range diffs {
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(diffs)))
}

// PNN50 is the percentage of successive differences larger than 50 ms.
func PNN50(rr []float64) float64 {
	diffs := SuccessiveDiffs(rr)
	if len(diffs) == 0 {
		return 0
	}
	count := 0
	for _, d := range diffs {
		if math.Abs(d) > nn50Threshold {
			count++
		}
	}
	return 100 * float64(count) / float64(len(diffs))
}

// SD1 and SD2 are the Poincaré ellipse descriptors.
func SD1SD2(rr []float64) (sd1, sd2 float64) {
	diffs := SuccessiveDiffs(rr)
	if len(diffs) < 2 {
		return 0, 0
	}
	sdsd := SampleSD(diffs)
	sdnn := SampleSD(rr)
	sd1 = math.Sqrt(sdsd * sdsd / 2)
	v := 2*sdnn*sdnn - sd1*sd1
	if v > 0 {
		sd2 = math.Sqrt(v)
	}
	return sd1, sd2
}

// Summary is the descriptive statistics set of a filtered interval sequence.
type Summary struct {
	Count    int     `json:"count"`
	MeanRR   float64 `json:"meanRR"`
	SDNN     float64 `json:"sdnn"`
	RMSSD    float64 `json:"rmssd"`
	PNN50    float64 `json:"pnn50"`
	MinRR    float64 `json:"minRR"`
	MaxRR    float64 `json:"maxRR"`
	MedianRR float64 `json:"medianRR"`
	MeanHR   float64 `json:"meanHR"`
	SD1      float64 `json:"sd1"`
	SD2      float64 `json:"sd2"`
}

// Summarize returns false when there are no values.
func Summarize(rr []float64) (Summary, bool) {
	if len(rr) == 0 {
		return Summary{}, false
	}
	sd1, sd2 := SD1SD2(rr)
	return Summary{
		Count:    len(rr),
		MeanRR:   Mean(rr),
		SDNN:     SampleSD(rr),
		RMSSD:    RMSSD(rr),
		PNN50:    PNN50(rr),
		MinRR:    floats.Min(rr),
		MaxRR:    floats.Max(rr),
		MedianRR: Median(rr),
		MeanHR:   Mean(HeartRates(rr)),
		SD1:      sd1,
		SD2:      sd2,
	}, true
}
