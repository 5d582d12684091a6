package dataset

import (
	"errors"
	"fmt"
)

type LoadReason string

const (
	ReasonEmptyDataset   LoadReason = "empty_dataset"
	ReasonNoIntervalData LoadReason = "no_interval_data"
	ReasonParseFailure   LoadReason = "parse_failure"
)

// LoadError is returned when a load leaves no usable intervals. It matches
// (errors.Is) any other LoadError with the same reason.
type LoadError struct {
	Reason LoadReason
	Err    error
}

func (e *LoadError) Error() string {
	msg := "load dataset: "
	switch e.Reason {
	case ReasonEmptyDataset:
		msg += "no valid intervals"
	case ReasonNoIntervalData:
		msg += "record has no interval data"
	case ReasonParseFailure:
		msg += "cannot parse input"
	default:
		msg += string(e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func (e *LoadError) Is(target error) bool {
	t, ok := target.(*LoadError)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

var (
	ErrEmptyDataset   = &LoadError{Reason: ReasonEmptyDataset}
	ErrNoIntervalData = &LoadError{Reason: ReasonNoIntervalData}
	ErrParseFailure   = &LoadError{Reason: ReasonParseFailure}

	ErrIndexOutOfRange = errors.New("interval index out of range")
	ErrLoadSuperseded  = errors.New("load superseded by a newer one")
	ErrInvalidSnapshot = errors.New("invalid dataset snapshot")
)
