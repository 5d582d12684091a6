// Package analysis is the catalog of analysis kinds a report can hold.
// Every kind renders itself as a graph, a table or plain text.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/2beens/gymhrv/internal/hrv/dataset"
	"github.com/2beens/gymhrv/internal/store"
)

type KindID string

const (
	KindPoincare                KindID = "poincare"
	KindRRHistogram             KindID = "rr_histogram"
	KindHRHistogram             KindID = "hr_histogram"
	KindRRTimeSeries            KindID = "rr_timeseries"
	KindHRTimeSeries            KindID = "hr_timeseries"
	KindSuccessiveDiffHistogram KindID = "successive_diff_histogram"
	KindSummary                 KindID = "summary"
	KindRawData                 KindID = "raw_data"
	KindMembersList             KindID = "members_list"
	KindSubscriptionsList       KindID = "subscriptions_list"
	KindFinanceSummary          KindID = "finance_summary"
	KindComprehensiveReport     KindID = "comprehensive_user_report"
)

// DataTag says where a kind takes its data from.
type DataTag string

const (
	DataHRV           DataTag = "hrv"
	DataHRVRaw        DataTag = "hrv_raw"
	DataStoreList     DataTag = "indexedDB_list"
	DataComprehensive DataTag = "comprehensive"
)

type Mode string

const (
	ModeGraph Mode = "graph"
	ModeTable Mode = "table"
	ModeText  Mode = "text"
)

var (
	ErrUnknownKind = errors.New("unknown analysis kind")
	ErrUnknownMode = errors.New("unknown render mode")
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeGraph, ModeTable, ModeText:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Input is what a render function works on. Interval kinds read Intervals,
// store backed kinds read from Store on behalf of UserID.
type Input struct {
	Intervals []dataset.Interval
	Store     store.Store
	UserID    string
}

type RenderFunc func(ctx context.Context, in Input) (Artifact, error)

type Kind struct {
	ID           KindID  `json:"id"`
	Title        string  `json:"title"`
	Data         DataTag `json:"dataTag"`
	UniqueGlobal bool    `json:"uniqueGlobal"`

	Graph RenderFunc `json:"-"`
	Table RenderFunc `json:"-"`
	Text  RenderFunc `json:"-"`
}

// NeedsIntervals reports whether the kind renders from the interval dataset.
func (k Kind) NeedsIntervals() bool {
	return k.Data == DataHRV || k.Data == DataHRVRaw
}

// DefaultMode is table for store backed kinds and graph otherwise.
func (k Kind) DefaultMode() Mode {
	if k.Data == DataStoreList || k.Data == DataComprehensive {
		return ModeTable
	}
	return ModeGraph
}

func (k Kind) renderer(mode Mode) (RenderFunc, error) {
	var fn RenderFunc
	switch mode {
	case ModeGraph:
		fn = k.Graph
	case ModeTable:
		fn = k.Table
	case ModeText:
		fn = k.Text
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if fn == nil {
		return nil, fmt.Errorf("%s has no %s renderer", k.ID, mode)
	}
	return fn, nil
}
