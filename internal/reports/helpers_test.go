package reports_test

import (
	"fmt"
	"testing"

	"github.com/golang/mock/gomock"

	"github.com/2beens/gymhrv/internal/hrv/dataset"
	"github.com/2beens/gymhrv/internal/notify"
	"github.com/2beens/gymhrv/internal/report/analysis"
	"github.com/2beens/gymhrv/internal/report/layout"
	"github.com/2beens/gymhrv/internal/report/render"
	"github.com/2beens/gymhrv/internal/reports"
	"github.com/2beens/gymhrv/internal/sessions"
	"github.com/2beens/gymhrv/internal/store"
	"github.com/2beens/gymhrv/internal/telemetry/metrics"
)

type testEnv struct {
	service  *reports.Service
	dataset  *dataset.Dataset
	surface  *render.Surface
	store    store.Store
	notices  *notify.Recorder
	metrics  *metrics.Manager
	registry *analysis.Registry
}

// severityIs matches notices by severity.
type severityIs notify.Severity

func (s severityIs) Matches(x interface{}) bool {
	n, ok := x.(notify.Notice)
	return ok && n.Severity == notify.Severity(s)
}

func (s severityIs) String() string {
	return fmt.Sprintf("notice with severity %s", string(s))
}

// newTestEnv wires the report builder on a memory store. A nil sink
// records every notice.
func newTestEnv(t *testing.T, sink notify.Sink) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, sink, store.NewMemoryStore())
}

func newTestEnvWithStore(t *testing.T, sink notify.Sink, st store.Store) *testEnv {
	t.Helper()

	recorder := notify.NewRecorder(50)
	notifier := notify.Fanout{recorder, sink}
	metricsManager := metrics.NewTestManager()

	ds := dataset.New(dataset.WithNotifier(notifier))
	registry := analysis.NewRegistry()
	surface := render.NewSurface(registry, 0, metricsManager)
	composer := layout.NewComposer(layout.ComposerParams{
		Store:          st,
		Catalog:        registry,
		Data:           ds,
		Releaser:       surface,
		Notifier:       notifier,
		MetricsManager: metricsManager,
	})

	service := reports.NewService(reports.ServiceParams{
		Dataset:        ds,
		Registry:       registry,
		Surface:        surface,
		Composer:       composer,
		Sessions:       sessions.NewLoader(st, ds),
		Store:          st,
		Notifier:       notifier,
		MetricsManager: metricsManager,
		UserID:         "local",
	})

	return &testEnv{
		service:  service,
		dataset:  ds,
		surface:  surface,
		store:    st,
		notices:  recorder,
		metrics:  metricsManager,
		registry: registry,
	}
}

// anySink accepts every notice.
func anySink(ctrl *gomock.Controller) *MockSink {
	sink := NewMockSink(ctrl)
	sink.EXPECT().Notify(gomock.Any()).AnyTimes()
	return sink
}
