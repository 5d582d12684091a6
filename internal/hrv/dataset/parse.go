package dataset

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// epoch values above this are treated as milliseconds
const epochMillisThreshold = 1e11

// bare numbers before 2000-01-01 are beat counters or sample indexes
// ("1,800"), not timestamps
var minEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

type point struct {
	value float64
	ts    time.Time
	hasTS bool
}

// parseText reads one interval per line, either a bare value or a
// timestamp,value pair. Lines that do not yield a positive value are
// skipped and counted.
func parseText(raw string) (points []point, skipped int) {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		p, ok := parseLine(line)
		if !ok {
			skipped++
			continue
		}
		points = append(points, p)
	}
	return points, skipped
}

func parseLine(line string) (point, bool) {
	valuePart := line
	tsPart := ""
	if idx := strings.LastIndex(line, ","); idx >= 0 {
		tsPart = strings.TrimSpace(line[:idx])
		valuePart = strings.TrimSpace(line[idx+1:])
	}

	value, ok := parseValue(valuePart)
	if !ok {
		return point{}, false
	}

	p := point{value: value}
	if tsPart != "" {
		p.ts, p.hasTS = parseTimestamp(tsPart)
	}
	return p, true
}

func parseValue(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, validValue(v)
}

func validValue(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	epoch, err := strconv.ParseFloat(s, 64)
	if err != nil || epoch <= 0 || math.IsInf(epoch, 0) || math.IsNaN(epoch) {
		return time.Time{}, false
	}
	var ts time.Time
	if epoch > epochMillisThreshold {
		ts = time.UnixMilli(int64(epoch)).UTC()
	} else {
		sec, frac := math.Modf(epoch)
		ts = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	if ts.Before(minEpoch) {
		return time.Time{}, false
	}
	return ts, true
}

// resolveTimestamps fills in missing timestamps. When no point carries one,
// timestamps are synthesized one second apart ending at now and true is
// returned. Otherwise gaps are derived from the neighbouring timestamp and
// the interval lengths, so the beat at i happens value[i] ms after i-1.
func resolveTimestamps(points []point, now time.Time) (synthesized bool) {
	first := -1
	for i, p := range points {
		if p.hasTS {
			first = i
			break
		}
	}

	if first < 0 {
		n := len(points)
		for i := range points {
			points[i].ts = now.Add(-time.Duration(n-1-i) * time.Second)
		}
		return true
	}

	for i := first - 1; i >= 0; i-- {
		points[i].ts = points[i+1].ts.Add(-millis(points[i+1].value))
	}
	for i := first + 1; i < len(points); i++ {
		if !points[i].hasTS {
			points[i].ts = points[i-1].ts.Add(millis(points[i].value))
		}
	}
	return false
}

func millis(v float64) time.Duration {
	return time.Duration(v * float64(time.Millisecond))
}
