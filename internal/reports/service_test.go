package reports_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2beens/gymhrv/internal/hrv/dataset"
	"github.com/2beens/gymhrv/internal/notify"
	"github.com/2beens/gymhrv/internal/report/analysis"
	"github.com/2beens/gymhrv/internal/store"
)

const rawIntervals = "800\n820\n790\n0\n-5\nabc\n810"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// membersDownStore fails reads of the members collection.
type membersDownStore struct {
	*store.MemoryStore
}

func (s membersDownStore) GetAll(ctx context.Context, collection string) ([]store.Record, error) {
	if collection == store.CollectionMembers {
		return nil, errors.New("members backend down")
	}
	return s.MemoryStore.GetAll(ctx, collection)
}

func TestService_LoadDataset(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := NewMockSink(ctrl)
	env := newTestEnv(t, sink)
	ctx := context.Background()

	gomock.InOrder(
		sink.EXPECT().Notify(severityIs(notify.SeverityInfo)),
		sink.EXPECT().Notify(severityIs(notify.SeveritySuccess)),
	)

	n, err := env.service.LoadDataset(ctx, rawIntervals)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	info := env.service.DatasetInfo()
	assert.Equal(t, 4, info.Count)
	assert.Equal(t, 4, info.Filtered)
	assert.Empty(t, info.Excluded)

	var persisted dataset.State
	require.NoError(t, store.GetJSON(ctx, env.store, store.CollectionDataset, "current", &persisted))
	assert.Len(t, persisted.Intervals, 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.CounterDatasetLoads.WithLabelValues("upload", "ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(env.metrics.GaugeDatasetIntervals))
}

func TestService_LoadDatasetFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := NewMockSink(ctrl)
	env := newTestEnv(t, sink)

	sink.EXPECT().Notify(severityIs(notify.SeverityError))

	_, err := env.service.LoadDataset(context.Background(), "abc\n0\n")
	require.ErrorIs(t, err, dataset.ErrEmptyDataset)
	assert.True(t, env.dataset.Empty())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.CounterDatasetLoads.WithLabelValues("upload", "error")))
}

func TestService_ExclusionsChangeRenderedSummary(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, anySink(ctrl))
	ctx := context.Background()

	_, err := env.service.LoadDataset(ctx, rawIntervals)
	require.NoError(t, err)
	id, err := env.service.Composer().AddAnalysis(ctx, analysis.KindSummary)
	require.NoError(t, err)
	require.NoError(t, env.service.Composer().SetRenderMode(ctx, id, analysis.ModeText))

	first, err := env.service.RenderInstance(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, first.Text, "Count: 4")

	cachedBefore, err := env.surface.Cached(id)
	require.NoError(t, err)

	// unchanged dataset: the stored artifact is served as is
	again, err := env.service.RenderInstance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	cachedAfter, err := env.surface.Cached(id)
	require.NoError(t, err)
	assert.Equal(t, cachedBefore.RenderedAt, cachedAfter.RenderedAt)

	excluded, err := env.service.ToggleExclusion(ctx, 1)
	require.NoError(t, err)
	assert.True(t, excluded)

	third, err := env.service.RenderInstance(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, third.Text, "Count: 3")

	var persisted dataset.State
	require.NoError(t, store.GetJSON(ctx, env.store, store.CollectionDataset, "current", &persisted))
	assert.Equal(t, []int{1}, persisted.Excluded)

	env.service.ResetExclusions(ctx)
	assert.Empty(t, env.service.DatasetInfo().Excluded)
}

func TestService_SetRenderModeRerenders(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, anySink(ctrl))
	ctx := context.Background()

	_, err := env.service.LoadDataset(ctx, rawIntervals)
	require.NoError(t, err)
	id, err := env.service.Composer().AddAnalysis(ctx, analysis.KindPoincare)
	require.NoError(t, err)

	graph, err := env.service.RenderInstance(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, graph.SVG, "<svg")

	table, err := env.service.SetRenderMode(ctx, id, analysis.ModeTable)
	require.NoError(t, err)
	require.NotNil(t, table.Table)
	assert.Empty(t, table.SVG)
	assert.Equal(t, analysis.ModeTable, table.Mode)

	stored, err := env.surface.Artifact(id)
	require.NoError(t, err)
	assert.Equal(t, analysis.ModeTable, stored.Mode)
}

func TestService_RenderPageContainsFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnvWithStore(t, anySink(ctrl), membersDownStore{store.NewMemoryStore()})
	ctx := context.Background()

	_, err := env.service.LoadDataset(ctx, rawIntervals)
	require.NoError(t, err)
	for _, kind := range []analysis.KindID{analysis.KindSummary, analysis.KindMembersList, analysis.KindFinanceSummary} {
		_, err := env.service.Composer().AddAnalysis(ctx, kind)
		require.NoError(t, err)
	}

	rendered, err := env.service.RenderPage(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rendered, 3)

	assert.Equal(t, analysis.KindSummary, rendered[0].Instance.KindID)
	assert.False(t, rendered[0].Artifact.Failed())
	assert.Contains(t, rendered[0].Artifact.SVG, "<svg")

	assert.Equal(t, analysis.KindMembersList, rendered[1].Instance.KindID)
	assert.True(t, rendered[1].Artifact.Failed())
	assert.Contains(t, rendered[1].Artifact.Error, "members backend down")

	assert.True(t, rendered[2].Artifact.NoData)
	assert.Equal(t, "no records", rendered[2].Artifact.Message)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		env.metrics.CounterRenderFailures.WithLabelValues(string(analysis.KindMembersList))))

	_, err = env.service.RenderPage(ctx, 4)
	assert.Error(t, err)
}

func TestService_ClearReportReleasesArtifacts(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, anySink(ctrl))
	ctx := context.Background()

	_, err := env.service.LoadDataset(ctx, rawIntervals)
	require.NoError(t, err)
	_, err = env.service.Composer().AddAnalysis(ctx, analysis.KindRawData)
	require.NoError(t, err)
	_, err = env.service.RenderPage(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, env.surface.Live())

	require.NoError(t, env.service.ClearReport(ctx))
	assert.Equal(t, 0, env.surface.Live())
	assert.Equal(t, 0, env.service.Report().InstanceCount())
	assert.Equal(t, 0.0, testutil.ToFloat64(env.metrics.GaugeLiveArtifacts))
}

func TestService_RestoreAfterRestart(t *testing.T) {
	ctrl := gomock.NewController(t)
	shared := store.NewMemoryStore()
	ctx := context.Background()

	before := newTestEnvWithStore(t, anySink(ctrl), shared)
	_, err := before.service.LoadDataset(ctx, rawIntervals)
	require.NoError(t, err)
	_, err = before.service.ToggleExclusion(ctx, 2)
	require.NoError(t, err)
	_, err = before.service.Composer().AddAnalysis(ctx, analysis.KindHRHistogram)
	require.NoError(t, err)
	_, err = before.service.Composer().AddPage(ctx)
	require.NoError(t, err)
	_, err = before.service.Composer().AddAnalysis(ctx, analysis.KindComprehensiveReport)
	require.NoError(t, err)

	after := newTestEnvWithStore(t, anySink(ctrl), shared)
	require.NoError(t, after.service.Restore(ctx))

	want, got := before.dataset.Snapshot(), after.dataset.Snapshot()
	require.Len(t, got.Intervals, len(want.Intervals))
	for i := range want.Intervals {
		assert.Equal(t, want.Intervals[i].Value, got.Intervals[i].Value)
		assert.Equal(t, want.Intervals[i].OriginalIndex, got.Intervals[i].OriginalIndex)
		assert.True(t, want.Intervals[i].Timestamp.Equal(got.Intervals[i].Timestamp))
	}
	assert.Equal(t, before.service.Report(), after.service.Report())
	assert.Equal(t, []int{2}, after.service.DatasetInfo().Excluded)
}

func TestService_RestoreEmptyStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, anySink(ctrl))

	require.NoError(t, env.service.Restore(context.Background()))
	assert.True(t, env.dataset.Empty())
	assert.Len(t, env.service.Report().Pages, 1)
}

func TestService_Catalog(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, anySink(ctrl))

	catalog := env.service.Catalog()
	require.Len(t, catalog, 12)
	for _, entry := range catalog {
		assert.Equal(t, !entry.NeedsIntervals(), entry.Available, entry.ID)
	}

	_, err := env.service.LoadDataset(context.Background(), rawIntervals)
	require.NoError(t, err)
	for _, entry := range env.service.Catalog() {
		assert.True(t, entry.Available, entry.ID)
	}
}

// gatedStore holds the first put into one collection until released.
type gatedStore struct {
	*store.MemoryStore
	collection string
	entered    chan struct{}
	release    chan struct{}
	once       sync.Once
}

func newGatedStore(collection string) *gatedStore {
	return &gatedStore{
		MemoryStore: store.NewMemoryStore(),
		collection:  collection,
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (s *gatedStore) Put(ctx context.Context, collection string, record store.Record) (string, error) {
	if collection == s.collection {
		s.once.Do(func() {
			close(s.entered)
			<-s.release
		})
	}
	return s.MemoryStore.Put(ctx, collection, record)
}

func TestService_PersistsNewestDataset(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := newGatedStore(store.CollectionDataset)
	env := newTestEnvWithStore(t, anySink(ctrl), st)
	ctx := context.Background()

	firstDone := make(chan error)
	go func() {
		_, err := env.service.LoadDataset(ctx, "800\n900")
		firstDone <- err
	}()
	<-st.entered

	secondDone := make(chan error)
	go func() {
		_, err := env.service.LoadDataset(ctx, "500\n600\n700")
		secondDone <- err
	}()
	require.Eventually(t, func() bool {
		return env.dataset.Len() == 3
	}, 2*time.Second, 5*time.Millisecond)

	close(st.release)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)

	var state dataset.State
	require.NoError(t, store.GetJSON(ctx, st, store.CollectionDataset, "current", &state))
	require.Len(t, state.Intervals, 3)
	assert.Equal(t, 500.0, state.Intervals[0].Value)
}

func TestService_PersistsNewestExclusions(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := newGatedStore(store.CollectionDataset)
	env := newTestEnvWithStore(t, anySink(ctrl), st)
	ctx := context.Background()

	require.NoError(t, env.dataset.Restore(dataset.State{Intervals: []dataset.Interval{
		{Value: 800, OriginalIndex: 0, Timestamp: time.Unix(1700000000, 0)},
		{Value: 810, OriginalIndex: 1, Timestamp: time.Unix(1700000001, 0)},
		{Value: 820, OriginalIndex: 2, Timestamp: time.Unix(1700000002, 0)},
	}}))

	firstDone := make(chan error)
	go func() {
		_, err := env.service.ToggleExclusion(ctx, 0)
		firstDone <- err
	}()
	<-st.entered

	secondDone := make(chan error)
	go func() {
		_, err := env.service.ToggleExclusion(ctx, 2)
		secondDone <- err
	}()
	require.Eventually(t, func() bool {
		return env.dataset.ExcludedCount() == 2
	}, 2*time.Second, 5*time.Millisecond)

	close(st.release)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)

	var state dataset.State
	require.NoError(t, store.GetJSON(ctx, st, store.CollectionDataset, "current", &state))
	assert.Equal(t, []int{0, 2}, state.Excluded)
}

// membersGateStore holds the first read of the members collection.
type membersGateStore struct {
	*store.MemoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *membersGateStore) GetAll(ctx context.Context, collection string) ([]store.Record, error) {
	if collection == store.CollectionMembers {
		s.once.Do(func() {
			close(s.entered)
			<-s.release
		})
	}
	return s.MemoryStore.GetAll(ctx, collection)
}

func TestService_RenderOfRemovedInstanceLeavesNoArtifact(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := &membersGateStore{
		MemoryStore: store.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	env := newTestEnvWithStore(t, anySink(ctrl), st)
	ctx := context.Background()

	_, err := store.PutJSON(ctx, st, store.CollectionMembers, "m1", map[string]any{"firstName": "Ana", "active": true})
	require.NoError(t, err)
	uid, err := env.service.Composer().AddAnalysis(ctx, analysis.KindMembersList)
	require.NoError(t, err)

	done := make(chan error)
	go func() {
		_, err := env.service.RenderInstance(ctx, uid)
		done <- err
	}()
	<-st.entered
	require.NoError(t, env.service.Composer().RemoveAnalysis(ctx, uid))
	close(st.release)

	assert.Error(t, <-done)
	assert.Zero(t, env.surface.Live())
	assert.Zero(t, testutil.ToFloat64(env.metrics.GaugeLiveArtifacts))
}
