package dataset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/gymhrv/internal/notify"
)

// Interval is one measured beat-to-beat interval, in milliseconds.
type Interval struct {
	Value         float64   `json:"value"`
	Timestamp     time.Time `json:"timestamp"`
	OriginalIndex int       `json:"originalIndex"`
}

// Ticket orders concurrent loads: only the newest ticket may commit.
type Ticket uint64

// Dataset owns the loaded interval sequence and the exclusion set over it.
// It is safe for concurrent use.
type Dataset struct {
	mu        sync.RWMutex
	intervals []Interval
	excluded  map[int]struct{}
	revision  uint64

	tickets atomic.Uint64

	notifier notify.Sink
	now      func() time.Time
}

type Option func(*Dataset)

func WithNotifier(sink notify.Sink) Option {
	return func(d *Dataset) {
		if sink != nil {
			d.notifier = sink
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dataset) {
		if now != nil {
			d.now = now
		}
	}
}

func New(opts ...Option) *Dataset {
	d := &Dataset{
		excluded: make(map[int]struct{}),
		notifier: notify.Discard,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Begin issues a new load ticket, superseding every load started before.
// Callers that fetch data before loading take the ticket first, so the
// latest intent wins regardless of which fetch finishes first.
func (d *Dataset) Begin() Ticket {
	return Ticket(d.tickets.Add(1))
}

// Load parses newline separated intervals and replaces the dataset. Input
// that is not text fails with ErrParseFailure and supersedes nothing.
func (d *Dataset) Load(ctx context.Context, raw string) (int, error) {
	if !utf8.ValidString(raw) || strings.ContainsRune(raw, 0) {
		return 0, &LoadError{Reason: ReasonParseFailure, Err: errors.New("input is not text")}
	}
	ticket := d.Begin()
	points, skipped := parseText(raw)
	if skipped > 0 {
		log.Debugf("dataset load: skipped %d invalid lines", skipped)
	}
	return d.commit(ctx, ticket, points)
}

// LoadPoints replaces the dataset with already decoded values. Timestamps
// are optional; a zero timestamp or a missing entry is treated as absent.
func (d *Dataset) LoadPoints(ctx context.Context, ticket Ticket, values []float64, timestamps []time.Time) (int, error) {
	points := make([]point, 0, len(values))
	skipped := 0
	for i, v := range values {
		if !validValue(v) {
			skipped++
			continue
		}
		p := point{value: v}
		if i < len(timestamps) && !timestamps[i].IsZero() {
			p.ts = timestamps[i]
			p.hasTS = true
		}
		points = append(points, p)
	}
	if skipped > 0 {
		log.Debugf("dataset load points: skipped %d invalid values", skipped)
	}
	return d.commit(ctx, ticket, points)
}

func (d *Dataset) commit(ctx context.Context, ticket Ticket, points []point) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, ErrEmptyDataset
	}

	synthesized := resolveTimestamps(points, d.now())
	intervals := make([]Interval, len(points))
	for i, p := range points {
		intervals[i] = Interval{
			Value:         p.value,
			Timestamp:     p.ts,
			OriginalIndex: i,
		}
	}

	d.mu.Lock()
	if uint64(ticket) != d.tickets.Load() {
		d.mu.Unlock()
		return 0, ErrLoadSuperseded
	}
	d.intervals = intervals
	d.excluded = make(map[int]struct{})
	d.revision++
	d.mu.Unlock()

	if synthesized {
		d.notifier.Notify(notify.New(
			fmt.Sprintf("No timestamps found, synthesized 1 s spacing for %d intervals", len(intervals)),
			notify.SeverityInfo,
		))
	}

	return len(intervals), nil
}

// ToggleExclusion flips the exclusion of the interval with the given
// original index and reports whether it is now excluded.
func (d *Dataset) ToggleExclusion(originalIndex int) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if originalIndex < 0 || originalIndex >= len(d.intervals) {
		return false, fmt.Errorf("%w: %d", ErrIndexOutOfRange, originalIndex)
	}

	d.revision++
	if _, ok := d.excluded[originalIndex]; ok {
		delete(d.excluded, originalIndex)
		return false, nil
	}
	d.excluded[originalIndex] = struct{}{}
	return true, nil
}

func (d *Dataset) ResetExclusions() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.excluded) == 0 {
		return
	}
	d.excluded = make(map[int]struct{})
	d.revision++
}

// FilteredView returns a copy of the intervals not excluded, in original order.
func (d *Dataset) FilteredView() []Interval {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Interval, 0, len(d.intervals)-len(d.excluded))
	for _, in := range d.intervals {
		if _, ok := d.excluded[in.OriginalIndex]; ok {
			continue
		}
		out = append(out, in)
	}
	return out
}

// All returns a copy of every loaded interval, excluded ones included.
func (d *Dataset) All() []Interval {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Interval, len(d.intervals))
	copy(out, d.intervals)
	return out
}

// Excluded returns the excluded original indices, sorted.
func (d *Dataset) Excluded() []int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.excludedSorted()
}

func (d *Dataset) excludedSorted() []int {
	out := make([]int, 0, len(d.excluded))
	for idx := range d.excluded {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.intervals)
}

func (d *Dataset) ExcludedCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.excluded)
}

func (d *Dataset) Empty() bool {
	return d.Len() == 0
}

// Revision changes whenever the filtered view may have changed.
func (d *Dataset) Revision() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.revision
}

// State is the persisted form of a dataset.
type State struct {
	Intervals []Interval `json:"intervals"`
	Excluded  []int      `json:"excluded"`
}

func (d *Dataset) Snapshot() State {
	d.mu.RLock()
	defer d.mu.RUnlock()

	intervals := make([]Interval, len(d.intervals))
	copy(intervals, d.intervals)
	return State{
		Intervals: intervals,
		Excluded:  d.excludedSorted(),
	}
}

// Restore replaces the dataset with a previously taken snapshot. Pending
// loads are superseded.
func (d *Dataset) Restore(state State) error {
	for i, in := range state.Intervals {
		if !validValue(in.Value) {
			return fmt.Errorf("%w: interval %d has value %v", ErrInvalidSnapshot, i, in.Value)
		}
		if in.OriginalIndex != i {
			return fmt.Errorf("%w: interval %d has original index %d", ErrInvalidSnapshot, i, in.OriginalIndex)
		}
	}
	excluded := make(map[int]struct{}, len(state.Excluded))
	for _, idx := range state.Excluded {
		if idx < 0 || idx >= len(state.Intervals) {
			return fmt.Errorf("%w: excluded index %d", ErrInvalidSnapshot, idx)
		}
		excluded[idx] = struct{}{}
	}

	intervals := make([]Interval, len(state.Intervals))
	copy(intervals, state.Intervals)

	d.Begin()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.intervals = intervals
	d.excluded = excluded
	d.revision++
	return nil
}
