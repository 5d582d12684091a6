// Package reports exposes the report builder over HTTP: dataset loading,
// session import, report composition and rendering of placed analyses.
package reports

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/gymhrv/internal/hrv/dataset"
	"github.com/2beens/gymhrv/internal/notify"
	"github.com/2beens/gymhrv/internal/report/analysis"
	"github.com/2beens/gymhrv/internal/report/layout"
	"github.com/2beens/gymhrv/internal/report/render"
	"github.com/2beens/gymhrv/internal/sessions"
	"github.com/2beens/gymhrv/internal/store"
	"github.com/2beens/gymhrv/internal/telemetry/metrics"
	"github.com/2beens/gymhrv/internal/telemetry/tracing"
)

const datasetKey = "current"

// load sources, used as metric labels
const (
	sourceUpload  = "upload"
	sourceSession = "session"
)

type DatasetInfo struct {
	Count    int    `json:"count"`
	Excluded []int  `json:"excluded"`
	Filtered int    `json:"filtered"`
	Revision uint64 `json:"revision"`
}

// CatalogEntry is an analysis kind as offered to the user.
type CatalogEntry struct {
	analysis.Kind
	DefaultMode analysis.Mode `json:"defaultMode"`
	Available   bool          `json:"available"`
}

type RenderedInstance struct {
	Instance layout.Instance   `json:"instance"`
	Artifact analysis.Artifact `json:"artifact"`
}

type ServiceParams struct {
	Dataset        *dataset.Dataset
	Registry       *analysis.Registry
	Surface        *render.Surface
	Composer       *layout.Composer
	Sessions       *sessions.Loader
	Store          store.Store
	Notifier       notify.Sink
	MetricsManager *metrics.Manager
	UserID         string
}

type Service struct {
	dataset        *dataset.Dataset
	registry       *analysis.Registry
	surface        *render.Surface
	composer       *layout.Composer
	sessions       *sessions.Loader
	store          store.Store
	notifier       notify.Sink
	metricsManager *metrics.Manager
	userID         string

	// serializes dataset puts; the snapshot is taken under it so the
	// last put always carries the newest state
	persistMu sync.Mutex
}

func NewService(params ServiceParams) *Service {
	notifier := params.Notifier
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Service{
		dataset:        params.Dataset,
		registry:       params.Registry,
		surface:        params.Surface,
		composer:       params.Composer,
		sessions:       params.Sessions,
		store:          params.Store,
		notifier:       notifier,
		metricsManager: params.MetricsManager,
		userID:         params.UserID,
	}
}

// Restore brings back the persisted dataset and report layout.
func (s *Service) Restore(ctx context.Context) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.reports.restore")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var state dataset.State
	err = store.GetJSON(ctx, s.store, store.CollectionDataset, datasetKey, &state)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Debugln("no persisted dataset")
	case err != nil:
		return fmt.Errorf("get dataset: %w", err)
	default:
		if err := s.dataset.Restore(state); err != nil {
			return fmt.Errorf("restore dataset: %w", err)
		}
		s.updateDatasetGauge()
		log.Debugf("dataset restored: %d intervals, %d excluded", len(state.Intervals), len(state.Excluded))
	}

	if err := s.composer.Restore(ctx); err != nil {
		return fmt.Errorf("restore report: %w", err)
	}
	return nil
}

func (s *Service) LoadDataset(ctx context.Context, raw string) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.reports.dataset.load")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	n, err := s.dataset.Load(ctx, raw)
	return n, s.afterLoad(ctx, sourceUpload, n, err)
}

func (s *Service) LoadSession(ctx context.Context, collection, sessionID string) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.reports.session.load")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	n, err := s.sessions.LoadSession(ctx, collection, sessionID)
	return n, s.afterLoad(ctx, sourceSession, n, err)
}

func (s *Service) afterLoad(ctx context.Context, source string, n int, err error) error {
	outcome := "ok"
	switch {
	case errors.Is(err, dataset.ErrLoadSuperseded):
		outcome = "superseded"
		log.Debugf("%s load superseded by a newer one", source)
	case err != nil:
		outcome = "error"
		s.notifier.Notify(notify.New(fmt.Sprintf("Failed to load data: %s", err), notify.SeverityError))
	}
	if s.metricsManager != nil {
		s.metricsManager.CounterDatasetLoads.WithLabelValues(source, outcome).Inc()
	}
	if err != nil {
		return err
	}

	s.updateDatasetGauge()
	s.persistDataset(ctx)
	s.notifier.Notify(notify.New(fmt.Sprintf("Loaded %d intervals", n), notify.SeveritySuccess))
	return nil
}

func (s *Service) ToggleExclusion(ctx context.Context, originalIndex int) (bool, error) {
	excluded, err := s.dataset.ToggleExclusion(originalIndex)
	if err != nil {
		return false, err
	}
	s.persistDataset(ctx)
	return excluded, nil
}

func (s *Service) ResetExclusions(ctx context.Context) {
	s.dataset.ResetExclusions()
	s.persistDataset(ctx)
}

func (s *Service) DatasetInfo() DatasetInfo {
	state := s.dataset.Snapshot()
	return DatasetInfo{
		Count:    len(state.Intervals),
		Excluded: state.Excluded,
		Filtered: len(state.Intervals) - len(state.Excluded),
		Revision: s.dataset.Revision(),
	}
}

func (s *Service) FilteredIntervals() []dataset.Interval {
	return s.dataset.FilteredView()
}

// persistDataset saves the dataset snapshot. Failures are logged only,
// the in-memory dataset stays authoritative.
func (s *Service) persistDataset(ctx context.Context) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.reports.dataset.persist")
	defer span.End()

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if _, err := store.PutJSON(ctx, s.store, store.CollectionDataset, datasetKey, s.dataset.Snapshot()); err != nil {
		log.Errorf("persist dataset: %s", err)
		s.notifier.Notify(notify.New("Dataset could not be saved", notify.SeverityWarning))
	}
}

func (s *Service) updateDatasetGauge() {
	if s.metricsManager != nil {
		s.metricsManager.GaugeDatasetIntervals.Set(float64(s.dataset.Len()))
	}
}

func (s *Service) Sessions(ctx context.Context) ([]sessions.SessionSummary, error) {
	return s.sessions.ListAvailableSessions(ctx)
}

func (s *Service) SaveSession(ctx context.Context, collection string, record sessions.SessionRecord) (string, error) {
	return s.sessions.SaveSession(ctx, collection, record)
}

func (s *Service) DeleteSession(ctx context.Context, collection, sessionID string) error {
	return s.sessions.DeleteSession(ctx, collection, sessionID)
}

func (s *Service) Catalog() []CatalogEntry {
	hasData := !s.dataset.Empty()
	kinds := s.registry.Kinds()
	entries := make([]CatalogEntry, len(kinds))
	for i, k := range kinds {
		entries[i] = CatalogEntry{
			Kind:        k,
			DefaultMode: k.DefaultMode(),
			Available:   hasData || !k.NeedsIntervals(),
		}
	}
	return entries
}

func (s *Service) Report() layout.Report {
	return s.composer.Snapshot()
}

func (s *Service) Composer() *layout.Composer {
	return s.composer
}

// SetRenderMode switches the mode of an instance and renders it in the
// new mode.
func (s *Service) SetRenderMode(ctx context.Context, uniqueID string, mode analysis.Mode) (analysis.Artifact, error) {
	if err := s.composer.SetRenderMode(ctx, uniqueID, mode); err != nil {
		return analysis.Artifact{}, err
	}
	return s.RenderInstance(ctx, uniqueID)
}

// ClearReport drops the whole layout and every rendered artifact.
func (s *Service) ClearReport(ctx context.Context) error {
	if err := s.composer.Clear(ctx); err != nil {
		return err
	}
	s.surface.ReleaseAll()
	s.notifier.Notify(notify.New("Report cleared", notify.SeverityInfo))
	return nil
}

// RenderInstance returns the artifact of one placed instance. Interval
// based artifacts are reused while the dataset revision and mode match.
func (s *Service) RenderInstance(ctx context.Context, uniqueID string) (_ analysis.Artifact, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.reports.render.instance")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	inst, _, err := s.composer.Instance(uniqueID)
	if err != nil {
		return analysis.Artifact{}, err
	}

	job, cached, fresh := s.prepare(inst)
	if fresh {
		return cached, nil
	}

	artifact, err := s.surface.Render(ctx, job)
	switch {
	case errors.Is(err, render.ErrTargetRemoved):
		return analysis.Artifact{}, fmt.Errorf("%w: %s", layout.ErrInstanceNotFound, uniqueID)
	case errors.Is(err, render.ErrSuperseded):
		return s.surface.Artifact(uniqueID)
	case err != nil && artifact.Error != "":
		log.Warnf("render %s: %s", uniqueID, err)
		return artifact, nil
	case err != nil:
		return analysis.Artifact{}, err
	}
	return artifact, nil
}

// RenderPage renders every instance of a page. A failing instance gets an
// inline error artifact, the others render normally.
func (s *Service) RenderPage(ctx context.Context, pageIndex int) (_ []RenderedInstance, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.reports.render.page")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	page, err := s.composer.Page(pageIndex)
	if err != nil {
		return nil, err
	}

	out := make([]RenderedInstance, len(page.Instances))
	var jobs []render.Job
	var slots []int
	for i, inst := range page.Instances {
		out[i].Instance = inst
		job, cached, fresh := s.prepare(inst)
		if fresh {
			out[i].Artifact = cached
			continue
		}
		jobs = append(jobs, job)
		slots = append(slots, i)
	}

	for i, artifact := range s.surface.RenderPage(ctx, jobs) {
		out[slots[i]].Artifact = artifact
	}
	return out, nil
}

// prepare builds the render job of an instance, or returns the cached
// artifact when it is still current.
func (s *Service) prepare(inst layout.Instance) (render.Job, analysis.Artifact, bool) {
	job := render.Job{
		Target: inst.UniqueID,
		Kind:   inst.KindID,
		Mode:   inst.Mode,
		Input: analysis.Input{
			Store:  s.store,
			UserID: s.userID,
		},
		Placed: func() bool {
			_, _, err := s.composer.Instance(inst.UniqueID)
			return err == nil
		},
	}

	kind, ok := s.registry.Lookup(inst.KindID)
	if !ok || !kind.NeedsIntervals() {
		return job, analysis.Artifact{}, false
	}

	// revision first: a change landing in between only makes the entry
	// look older than its data
	job.Revision = s.dataset.Revision()
	if entry, err := s.surface.Cached(inst.UniqueID); err == nil {
		a := entry.Artifact
		if entry.Revision == job.Revision && a.Mode == inst.Mode && !a.Failed() {
			return job, a, true
		}
	}
	job.Input.Intervals = s.dataset.FilteredView()
	return job, analysis.Artifact{}, false
}
