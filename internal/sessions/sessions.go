// Package sessions archives recorded HRV measurements and loads them back
// into the interval dataset.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/gymhrv/internal/hrv/dataset"
	"github.com/2beens/gymhrv/internal/store"
	"github.com/2beens/gymhrv/internal/telemetry/tracing"
)

type Kind string

const (
	KindSimple   Kind = "simple"
	KindAdvanced Kind = "advanced"
)

var (
	ErrUnknownCollection = errors.New("unknown session collection")
	ErrSessionNotFound   = errors.New("session not found")
	ErrNoIntervalData    = dataset.ErrNoIntervalData
)

// Collections lists the session collections in listing order.
var Collections = []string{
	store.CollectionSessionsSimple,
	store.CollectionSessionsAdvanced,
}

// SessionRecord is one archived measurement.
type SessionRecord struct {
	ID          string      `json:"id"`
	Date        time.Time   `json:"date"`
	Kind        Kind        `json:"kind"`
	Intervals   []float64   `json:"intervals"`
	Timestamps  []time.Time `json:"timestamps,omitempty"`
	DurationSec int         `json:"durationSec,omitempty"`
	Notes       string      `json:"notes,omitempty"`
}

type SessionSummary struct {
	ID          string    `json:"id"`
	Collection  string    `json:"collection"`
	Date        time.Time `json:"date"`
	Kind        Kind      `json:"kind"`
	Intervals   int       `json:"intervals"`
	DurationSec int       `json:"durationSec,omitempty"`
	Notes       string    `json:"notes,omitempty"`
}

// Dataset is the part of the interval dataset a session load needs.
type Dataset interface {
	Begin() dataset.Ticket
	LoadPoints(ctx context.Context, ticket dataset.Ticket, values []float64, timestamps []time.Time) (int, error)
}

type Loader struct {
	store   store.Store
	dataset Dataset
}

func NewLoader(s store.Store, ds Dataset) *Loader {
	return &Loader{
		store:   s,
		dataset: ds,
	}
}

func kindFor(collection string) (Kind, error) {
	switch collection {
	case store.CollectionSessionsSimple:
		return KindSimple, nil
	case store.CollectionSessionsAdvanced:
		return KindAdvanced, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
}

// ListAvailableSessions returns the sessions of every collection, newest
// first. Records that cannot be decoded are skipped.
func (l *Loader) ListAvailableSessions(ctx context.Context) (_ []SessionSummary, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sessions.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	summaries := []SessionSummary{}
	for _, collection := range Collections {
		records, err := l.store.GetAll(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}

		for _, rec := range records {
			var s SessionRecord
			if err := rec.Decode(&s); err != nil {
				log.Warnf("list sessions: skipping %s/%s: %s", collection, rec.Key, err)
				continue
			}
			kind := s.Kind
			if kind == "" {
				kind, _ = kindFor(collection)
			}
			summaries = append(summaries, SessionSummary{
				ID:          rec.Key,
				Collection:  collection,
				Date:        s.Date,
				Kind:        kind,
				Intervals:   len(s.Intervals),
				DurationSec: s.DurationSec,
				Notes:       s.Notes,
			})
		}
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].Date.Equal(summaries[j].Date) {
			return summaries[i].ID < summaries[j].ID
		}
		return summaries[i].Date.After(summaries[j].Date)
	})
	return summaries, nil
}

// LoadSession replaces the dataset with the intervals of one archived
// session and returns the number of loaded intervals. The load ticket is
// taken before the fetch, so a newer load started meanwhile wins.
func (l *Loader) LoadSession(ctx context.Context, collection, sessionID string) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sessions.load")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if _, err := kindFor(collection); err != nil {
		return 0, err
	}

	ticket := l.dataset.Begin()

	var s SessionRecord
	if err := store.GetJSON(ctx, l.store, collection, sessionID, &s); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s/%s", ErrSessionNotFound, collection, sessionID)
		}
		return 0, fmt.Errorf("get session %s/%s: %w", collection, sessionID, err)
	}
	if len(s.Intervals) == 0 {
		return 0, ErrNoIntervalData
	}

	n, err := l.dataset.LoadPoints(ctx, ticket, s.Intervals, s.Timestamps)
	if err != nil {
		if errors.Is(err, dataset.ErrEmptyDataset) {
			return 0, ErrNoIntervalData
		}
		return 0, err
	}

	log.Debugf("session %s/%s loaded: %d intervals", collection, sessionID, n)
	return n, nil
}

// SaveSession archives a measurement. A record without an id gets one
// assigned by the store.
func (l *Loader) SaveSession(ctx context.Context, collection string, record SessionRecord) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sessions.save")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	kind, err := kindFor(collection)
	if err != nil {
		return "", err
	}
	if len(record.Intervals) == 0 {
		return "", ErrNoIntervalData
	}
	if record.Kind == "" {
		record.Kind = kind
	}
	if record.Date.IsZero() {
		record.Date = time.Now().UTC()
	}
	if len(record.Timestamps) > 0 && len(record.Timestamps) != len(record.Intervals) {
		return "", fmt.Errorf("session has %d timestamps for %d intervals", len(record.Timestamps), len(record.Intervals))
	}

	// the key is the id; keep it out of the payload so a stored copy
	// never disagrees with its key
	key := record.ID
	record.ID = ""
	id, err := store.PutJSON(ctx, l.store, collection, key, record)
	if err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return id, nil
}

func (l *Loader) DeleteSession(ctx context.Context, collection, sessionID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sessions.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if _, err := kindFor(collection); err != nil {
		return err
	}
	if err := l.store.Delete(ctx, collection, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s/%s", ErrSessionNotFound, collection, sessionID)
		}
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
