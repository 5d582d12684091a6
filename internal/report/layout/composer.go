package layout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/gymhrv/internal/notify"
	"github.com/2beens/gymhrv/internal/report/analysis"
	"github.com/2beens/gymhrv/internal/store"
	"github.com/2beens/gymhrv/internal/telemetry/metrics"
	"github.com/2beens/gymhrv/internal/telemetry/tracing"
)

const reportKey = "current"

//go:generate mockgen -source=$GOFILE -destination=composer_mocks_test.go -package=layout_test

// Catalog resolves analysis kinds.
type Catalog interface {
	Lookup(id analysis.KindID) (analysis.Kind, bool)
}

// DataPresence tells whether interval data is loaded.
type DataPresence interface {
	Empty() bool
}

// Releaser frees rendered artifacts of removed instances.
type Releaser interface {
	Release(targets ...string) error
}

type modePreference struct {
	Mode Mode `json:"mode"`
}

type ComposerParams struct {
	Store          store.Store
	Catalog        Catalog
	Data           DataPresence
	Releaser       Releaser
	Notifier       notify.Sink
	MetricsManager *metrics.Manager
}

// Composer owns the report layout. Every successful change is persisted
// as one put of the whole report; a failed change leaves the layout as it
// was and is reported through the notifier.
type Composer struct {
	mu     sync.Mutex
	report Report

	store          store.Store
	catalog        Catalog
	data           DataPresence
	releaser       Releaser
	notifier       notify.Sink
	metricsManager *metrics.Manager
}

func NewComposer(params ComposerParams) *Composer {
	notifier := params.Notifier
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Composer{
		report:         newReport(),
		store:          params.Store,
		catalog:        params.Catalog,
		data:           params.Data,
		releaser:       params.Releaser,
		notifier:       notifier,
		metricsManager: params.MetricsManager,
	}
}

// Snapshot returns a copy of the current report.
func (c *Composer) Snapshot() Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report.clone()
}

// Instance returns the instance with uniqueID and the page holding it.
func (c *Composer) Instance(uniqueID string) (Instance, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	page, pos, ok := c.report.find(uniqueID)
	if !ok {
		return Instance{}, 0, fmt.Errorf("%w: %s", ErrInstanceNotFound, uniqueID)
	}
	return c.report.Pages[page].Instances[pos], page, nil
}

// Page returns a copy of the page at index.
func (c *Composer) Page(index int) (Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.report.Pages) {
		return Page{}, fmt.Errorf("%w: %d", ErrPageOutOfRange, index)
	}
	return c.report.clone().Pages[index], nil
}

// AddAnalysis places a new instance of kindID on the current page.
func (c *Composer) AddAnalysis(ctx context.Context, kindID analysis.KindID) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kind, ok := c.catalog.Lookup(kindID)
	if !ok {
		return "", c.fail(fmt.Errorf("%w: %q", ErrUnknownKind, kindID))
	}

	if kind.NeedsIntervals() && (c.data == nil || c.data.Empty()) {
		return "", c.reject(&AddError{Kind: kindID, Reason: ReasonDataUnavailable})
	}
	if kind.UniqueGlobal && c.report.hasKind(kindID) {
		return "", c.reject(&AddError{Kind: kindID, Reason: ReasonAlreadyPresentGlobally})
	}
	if c.report.Pages[c.report.Current].hasKind(kindID) {
		return "", c.reject(&AddError{Kind: kindID, Reason: ReasonAlreadyPresentOnPage})
	}

	next := c.report.clone()
	next.Counter++
	id := uniqueID(kindID, next.Counter)
	instance := Instance{
		UniqueID: id,
		KindID:   kindID,
		Mode:     c.preferredMode(ctx, id, kind),
	}
	page := &next.Pages[next.Current]
	page.Instances = append(page.Instances, instance)

	if err := c.commit(ctx, next); err != nil {
		return "", err
	}

	if c.metricsManager != nil {
		c.metricsManager.CounterAnalysesAdded.WithLabelValues(string(kindID)).Inc()
	}
	return id, nil
}

func (c *Composer) preferredMode(ctx context.Context, id string, kind analysis.Kind) Mode {
	var pref modePreference
	err := store.GetJSON(ctx, c.store, store.CollectionRenderModes, id, &pref)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warnf("render mode preference %s: %s", id, err)
		}
		return kind.DefaultMode()
	}
	if _, err := analysis.ParseMode(string(pref.Mode)); err != nil {
		return kind.DefaultMode()
	}
	return pref.Mode
}

// RemoveAnalysis removes the instance from whichever page holds it and
// releases its artifact.
func (c *Composer) RemoveAnalysis(ctx context.Context, uniqueID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pageIdx, pos, ok := c.report.find(uniqueID)
	if !ok {
		return c.fail(fmt.Errorf("%w: %s", ErrInstanceNotFound, uniqueID))
	}

	next := c.report.clone()
	page := &next.Pages[pageIdx]
	page.Instances = append(page.Instances[:pos], page.Instances[pos+1:]...)

	if err := c.commit(ctx, next); err != nil {
		return err
	}
	c.release(uniqueID)
	return nil
}

// ReorderWithinPage replaces the instance order of one page. newOrder must
// be a permutation of the page's unique ids.
func (c *Composer) ReorderWithinPage(ctx context.Context, pageIndex int, newOrder []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pageIndex < 0 || pageIndex >= len(c.report.Pages) {
		return c.fail(fmt.Errorf("%w: %d", ErrPageOutOfRange, pageIndex))
	}

	page := c.report.Pages[pageIndex]
	if len(newOrder) != len(page.Instances) {
		return c.fail(ErrInvalidOrder)
	}

	reordered := make([]Instance, 0, len(newOrder))
	seen := make(map[string]bool, len(newOrder))
	for _, id := range newOrder {
		idx := page.index(id)
		if idx < 0 || seen[id] {
			return c.fail(fmt.Errorf("%w: %s", ErrInvalidOrder, id))
		}
		seen[id] = true
		reordered = append(reordered, page.Instances[idx])
	}

	next := c.report.clone()
	next.Pages[pageIndex].Instances = reordered
	return c.commit(ctx, next)
}

// MoveAnalysis moves an instance to position on toPage. Positions past the
// end append.
func (c *Composer) MoveAnalysis(ctx context.Context, uniqueID string, toPage, position int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fromPage, pos, ok := c.report.find(uniqueID)
	if !ok {
		return c.fail(fmt.Errorf("%w: %s", ErrInstanceNotFound, uniqueID))
	}
	if toPage < 0 || toPage >= len(c.report.Pages) {
		return c.fail(fmt.Errorf("%w: %d", ErrPageOutOfRange, toPage))
	}

	instance := c.report.Pages[fromPage].Instances[pos]
	if toPage != fromPage && c.report.Pages[toPage].hasKind(instance.KindID) {
		return c.reject(&AddError{Kind: instance.KindID, Reason: ReasonAlreadyPresentOnPage})
	}

	next := c.report.clone()
	src := &next.Pages[fromPage]
	src.Instances = append(src.Instances[:pos], src.Instances[pos+1:]...)

	dst := &next.Pages[toPage]
	if position < 0 {
		position = 0
	}
	if position > len(dst.Instances) {
		position = len(dst.Instances)
	}
	dst.Instances = append(dst.Instances, Instance{})
	copy(dst.Instances[position+1:], dst.Instances[position:])
	dst.Instances[position] = instance

	return c.commit(ctx, next)
}

// AddPage appends an empty page and moves the cursor to it.
func (c *Composer) AddPage(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.report.clone()
	next.Pages = append(next.Pages, Page{Instances: []Instance{}})
	next.Current = len(next.Pages) - 1

	if err := c.commit(ctx, next); err != nil {
		return 0, err
	}
	return next.Current, nil
}

// RemovePage removes a page with all its instances. The last remaining
// page cannot be removed.
func (c *Composer) RemovePage(ctx context.Context, pageIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.report.Pages) == 1 {
		return c.reject(ErrLastPage)
	}
	if pageIndex < 0 || pageIndex >= len(c.report.Pages) {
		return c.fail(fmt.Errorf("%w: %d", ErrPageOutOfRange, pageIndex))
	}

	removed := c.report.Pages[pageIndex].ids()

	next := c.report.clone()
	next.Pages = append(next.Pages[:pageIndex], next.Pages[pageIndex+1:]...)
	if next.Current >= len(next.Pages) {
		next.Current = len(next.Pages) - 1
	}

	if err := c.commit(ctx, next); err != nil {
		return err
	}
	c.release(removed...)
	return nil
}

// Navigate moves the cursor by delta pages, clamped to the existing pages.
func (c *Composer) Navigate(ctx context.Context, delta int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.report.Current + delta
	if target < 0 {
		target = 0
	}
	if last := len(c.report.Pages) - 1; target > last {
		target = last
	}
	if target == c.report.Current {
		return target, nil
	}

	next := c.report.clone()
	next.Current = target
	if err := c.commit(ctx, next); err != nil {
		return c.report.Current, err
	}
	return target, nil
}

// SetRenderMode changes the mode of one instance and remembers it as the
// preference for its unique id.
func (c *Composer) SetRenderMode(ctx context.Context, uniqueID string, mode Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := analysis.ParseMode(string(mode)); err != nil {
		return c.fail(err)
	}

	pageIdx, pos, ok := c.report.find(uniqueID)
	if !ok {
		return c.fail(fmt.Errorf("%w: %s", ErrInstanceNotFound, uniqueID))
	}

	next := c.report.clone()
	next.Pages[pageIdx].Instances[pos].Mode = mode
	if err := c.commit(ctx, next); err != nil {
		return err
	}

	if _, err := store.PutJSON(ctx, c.store, store.CollectionRenderModes, uniqueID, modePreference{Mode: mode}); err != nil {
		log.Errorf("save render mode preference %s: %s", uniqueID, err)
	}
	return nil
}

// Clear drops every page and instance and resets the id counter. Render
// mode preferences are kept.
func (c *Composer) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []string
	for _, p := range c.report.Pages {
		removed = append(removed, p.ids()...)
	}

	if err := c.commit(ctx, newReport()); err != nil {
		return err
	}
	c.release(removed...)
	return nil
}

// Restore loads the persisted report. A missing report leaves the default
// single empty page. Instances of unknown kinds are dropped and the id
// counter never goes below the largest id suffix present.
func (c *Composer) Restore(ctx context.Context) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "layout.restore")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	var persisted Report
	if err := store.GetJSON(ctx, c.store, store.CollectionReportLayout, reportKey, &persisted); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.report = newReport()
			return nil
		}
		return c.fail(fmt.Errorf("restore report: %w", err))
	}

	c.report = c.sanitize(persisted)
	log.Debugf("report restored: %d pages, %d instances, counter %d",
		len(c.report.Pages), c.report.InstanceCount(), c.report.Counter)
	return nil
}

func (c *Composer) sanitize(in Report) Report {
	out := Report{Counter: in.Counter}
	if out.Counter < 0 {
		out.Counter = 0
	}

	seen := make(map[string]bool)
	for _, p := range in.Pages {
		page := Page{Instances: []Instance{}}
		for _, inst := range p.Instances {
			kind, ok := c.catalog.Lookup(inst.KindID)
			if !ok || inst.UniqueID == "" || seen[inst.UniqueID] {
				log.Warnf("restore report: dropping instance %q (%s)", inst.UniqueID, inst.KindID)
				continue
			}
			seen[inst.UniqueID] = true
			if _, err := analysis.ParseMode(string(inst.Mode)); err != nil {
				inst.Mode = kind.DefaultMode()
			}
			if n, ok := idSuffix(inst.UniqueID); ok && n > out.Counter {
				out.Counter = n
			}
			page.Instances = append(page.Instances, inst)
		}
		out.Pages = append(out.Pages, page)
	}

	if len(out.Pages) == 0 {
		out.Pages = []Page{{Instances: []Instance{}}}
	}
	out.Current = in.Current
	if out.Current < 0 {
		out.Current = 0
	}
	if out.Current >= len(out.Pages) {
		out.Current = len(out.Pages) - 1
	}
	return out
}

// commit persists next and makes it the current report.
func (c *Composer) commit(ctx context.Context, next Report) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "layout.persist")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if _, err := store.PutJSON(ctx, c.store, store.CollectionReportLayout, reportKey, next); err != nil {
		return c.fail(fmt.Errorf("save report: %w", err))
	}
	c.report = next
	return nil
}

func (c *Composer) release(targets ...string) {
	if c.releaser == nil || len(targets) == 0 {
		return
	}
	if err := c.releaser.Release(targets...); err != nil {
		log.Errorf("release artifacts %v: %s", targets, err)
	}
}

// reject reports a refused user action as a warning.
func (c *Composer) reject(err error) error {
	var addErr *AddError
	if errors.As(err, &addErr) && c.metricsManager != nil {
		c.metricsManager.CounterAddRejected.WithLabelValues(string(addErr.Reason)).Inc()
	}
	c.notifier.Notify(notify.New(userMessage(err), notify.SeverityWarning))
	return err
}

func (c *Composer) fail(err error) error {
	c.notifier.Notify(notify.New(userMessage(err), notify.SeverityError))
	return err
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrLastPage):
		return "Cannot remove the last page"
	case errors.Is(err, ErrPageOutOfRange):
		return "That page does not exist"
	case errors.Is(err, ErrInstanceNotFound):
		return "That analysis is no longer in the report"
	case errors.Is(err, ErrInvalidOrder):
		return "Invalid analysis order"
	case errors.Is(err, ErrUnknownKind):
		return "Unknown analysis type"
	}
	var addErr *AddError
	if errors.As(err, &addErr) {
		return addErr.Error()
	}
	return err.Error()
}
