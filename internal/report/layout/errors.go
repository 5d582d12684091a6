package layout

import (
	"errors"
	"fmt"

	"github.com/2beens/gymhrv/internal/report/analysis"
)

type AddReason string

const (
	ReasonDataUnavailable        AddReason = "data_unavailable"
	ReasonAlreadyPresentOnPage   AddReason = "already_present_on_page"
	ReasonAlreadyPresentGlobally AddReason = "already_present_globally"
)

// AddError is a rejected placement. It matches (errors.Is) any other
// AddError with the same reason.
type AddError struct {
	Kind   analysis.KindID
	Reason AddReason
}

func (e *AddError) Error() string {
	switch e.Reason {
	case ReasonDataUnavailable:
		return fmt.Sprintf("cannot add %s: load interval data first", e.Kind)
	case ReasonAlreadyPresentOnPage:
		return fmt.Sprintf("%s is already on this page", e.Kind)
	case ReasonAlreadyPresentGlobally:
		return fmt.Sprintf("%s can only appear once in the report", e.Kind)
	default:
		return fmt.Sprintf("cannot add %s: %s", e.Kind, e.Reason)
	}
}

func (e *AddError) Is(target error) bool {
	t, ok := target.(*AddError)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

var (
	ErrDataUnavailable        = &AddError{Reason: ReasonDataUnavailable}
	ErrAlreadyPresentOnPage   = &AddError{Reason: ReasonAlreadyPresentOnPage}
	ErrAlreadyPresentGlobally = &AddError{Reason: ReasonAlreadyPresentGlobally}

	ErrUnknownKind      = analysis.ErrUnknownKind
	ErrInstanceNotFound = errors.New("analysis instance not found")
	ErrPageOutOfRange   = errors.New("page index out of range")
	ErrInvalidOrder     = errors.New("new order must list every instance of the page exactly once")
	ErrLastPage         = errors.New("cannot remove the last page")
)
