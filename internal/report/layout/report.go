// Package layout is the report composition model: ordered pages of placed
// analysis instances, a page cursor and the instance id counter.
package layout

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/2beens/gymhrv/internal/report/analysis"
)

type Mode = analysis.Mode

// Instance is one analysis placed on a page.
type Instance struct {
	UniqueID string          `json:"uniqueId"`
	KindID   analysis.KindID `json:"analysisKindId"`
	Mode     Mode            `json:"activeRenderMode"`
}

type Page struct {
	Instances []Instance `json:"instances"`
}

func (p Page) index(uniqueID string) int {
	for i, in := range p.Instances {
		if in.UniqueID == uniqueID {
			return i
		}
	}
	return -1
}

func (p Page) hasKind(kind analysis.KindID) bool {
	for _, in := range p.Instances {
		if in.KindID == kind {
			return true
		}
	}
	return false
}

func (p Page) ids() []string {
	out := make([]string, len(p.Instances))
	for i, in := range p.Instances {
		out[i] = in.UniqueID
	}
	return out
}

// Report is the persisted form of the whole layout.
type Report struct {
	Pages   []Page `json:"pages"`
	Current int    `json:"currentPage"`
	Counter int    `json:"counter"`
}

func newReport() Report {
	return Report{Pages: []Page{{Instances: []Instance{}}}}
}

func (r Report) clone() Report {
	out := Report{
		Pages:   make([]Page, len(r.Pages)),
		Current: r.Current,
		Counter: r.Counter,
	}
	for i, p := range r.Pages {
		out.Pages[i].Instances = make([]Instance, len(p.Instances))
		copy(out.Pages[i].Instances, p.Instances)
	}
	return out
}

// find returns the page and position holding uniqueID.
func (r Report) find(uniqueID string) (page, pos int, ok bool) {
	for pi, p := range r.Pages {
		if idx := p.index(uniqueID); idx >= 0 {
			return pi, idx, true
		}
	}
	return 0, 0, false
}

func (r Report) hasKind(kind analysis.KindID) bool {
	for _, p := range r.Pages {
		if p.hasKind(kind) {
			return true
		}
	}
	return false
}

// InstanceCount is the number of instances on all pages.
func (r Report) InstanceCount() int {
	n := 0
	for _, p := range r.Pages {
		n += len(p.Instances)
	}
	return n
}

func uniqueID(kind analysis.KindID, counter int) string {
	return fmt.Sprintf("%s-%d", kind, counter)
}

// idSuffix parses the counter part of a unique id.
func idSuffix(uniqueID string) (int, bool) {
	idx := strings.LastIndex(uniqueID, "-")
	if idx < 0 || idx == len(uniqueID)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(uniqueID[idx+1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
