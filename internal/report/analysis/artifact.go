package analysis

import (
	"errors"
	"fmt"
)

const (
	noDataMessage    = "no data available"
	noRecordsMessage = "no records"
)

type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Artifact is one rendered analysis. Exactly one of SVG, Table and Text is
// set unless NoData or Error is.
type Artifact struct {
	Kind    KindID `json:"kind"`
	Mode    Mode   `json:"mode"`
	SVG     string `json:"svg,omitempty"`
	Table   *Table `json:"table,omitempty"`
	Text    string `json:"text,omitempty"`
	NoData  bool   `json:"noData,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (a Artifact) Failed() bool {
	return a.Error != ""
}

// Size is the rough memory footprint of the artifact content.
func (a Artifact) Size() int {
	size := len(a.SVG) + len(a.Text) + len(a.Message) + len(a.Error)
	if a.Table != nil {
		for _, c := range a.Table.Columns {
			size += len(c)
		}
		for _, row := range a.Table.Rows {
			for _, cell := range row {
				size += len(cell)
			}
		}
	}
	return size
}

type RenderReason string

const (
	ReasonNoData            RenderReason = "no_data"
	ReasonSourceUnavailable RenderReason = "source_unavailable"
)

// RenderError is a failed render. It matches (errors.Is) any other
// RenderError with the same reason.
type RenderError struct {
	Kind   KindID
	Reason RenderReason
	Err    error
}

func (e *RenderError) Error() string {
	msg := fmt.Sprintf("render %s: %s", e.Kind, e.Reason)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

func (e *RenderError) Is(target error) bool {
	t, ok := target.(*RenderError)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

var (
	ErrNoData            = &RenderError{Reason: ReasonNoData}
	ErrSourceUnavailable = &RenderError{Reason: ReasonSourceUnavailable}
)

func noData(kind KindID, message string) *RenderError {
	return &RenderError{Kind: kind, Reason: ReasonNoData, Err: errors.New(message)}
}

func sourceUnavailable(kind KindID, err error) *RenderError {
	return &RenderError{Kind: kind, Reason: ReasonSourceUnavailable, Err: err}
}

// noDataArtifact turns a no data render error into the placeholder
// artifact shown in place of the analysis.
func noDataArtifact(kind KindID, mode Mode, err *RenderError) Artifact {
	msg := noDataMessage
	if err.Err != nil {
		msg = err.Err.Error()
	}
	return Artifact{
		Kind:    kind,
		Mode:    mode,
		NoData:  true,
		Message: msg,
	}
}
