package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterRequests            *prometheus.CounterVec
	CounterHandleRequestPanic  prometheus.Counter
	CounterRateLimitedRequests prometheus.Counter
	CounterDatasetLoads        *prometheus.CounterVec
	CounterAnalysesAdded       *prometheus.CounterVec
	CounterAddRejected         *prometheus.CounterVec
	CounterRenderFailures      *prometheus.CounterVec

	// gauges
	GaugeRequests         prometheus.Gauge
	GaugeLifeSignal       prometheus.Gauge
	GaugeLiveArtifacts    prometheus.Gauge
	GaugeDatasetIntervals prometheus.Gauge

	// histograms
	HistogramRequestDuration *prometheus.HistogramVec
	HistRenderDuration       *prometheus.HistogramVec
}

func NewTestManager() *Manager {
	return NewManager("gymhrv", "test_server", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("gymhrv", "test_server", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request",
		Help:      "The total number of incoming requests",
	}, []string{"method", "status"})
	counterHandleRequestPanic := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "handle_request_panic",
		Help:      "The total number of serve request panics",
	})
	counterRateLimitedRequests := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rate_limited_requests",
		Help:      "The total number of rate limited requests",
	})
	counterDatasetLoads := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "dataset_loads",
		Help:      "Interval dataset loads by source and outcome",
	}, []string{"source", "outcome"})
	counterAnalysesAdded := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "analyses_added",
		Help:      "Analyses placed on report pages, by kind",
	}, []string{"kind"})
	counterAddRejected := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "analyses_add_rejected",
		Help:      "Rejected add-analysis attempts, by reason",
	}, []string{"reason"})
	counterRenderFailures := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "render_failures",
		Help:      "Analysis renders that ended with an inline error, by kind",
	}, []string{"kind"})

	gaugeRequests := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "current_requests",
		Help:      "Current number of requests served",
	})
	gaugeLifeSignal := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "life_signal",
		Help:      "Shows whether the service is alive",
	})
	gaugeLiveArtifacts := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "live_render_artifacts",
		Help:      "Render artifacts currently held by the render surface",
	})
	gaugeDatasetIntervals := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "dataset_intervals",
		Help:      "Intervals in the currently loaded dataset",
	})

	histogramRequestDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "Histogram of response time for requests in seconds",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"route", "method", "status_code"})
	histRenderDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "render_duration_seconds",
		Help:      "Duration of a single analysis render in seconds",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"mode"})

	return &Manager{
		CounterRequests:            counterRequests,
		CounterHandleRequestPanic:  counterHandleRequestPanic,
		CounterRateLimitedRequests: counterRateLimitedRequests,
		CounterDatasetLoads:        counterDatasetLoads,
		CounterAnalysesAdded:       counterAnalysesAdded,
		CounterAddRejected:         counterAddRejected,
		CounterRenderFailures:      counterRenderFailures,
		GaugeRequests:              gaugeRequests,
		GaugeLifeSignal:            gaugeLifeSignal,
		GaugeLiveArtifacts:         gaugeLiveArtifacts,
		GaugeDatasetIntervals:      gaugeDatasetIntervals,
		HistogramRequestDuration:   histogramRequestDuration,
		HistRenderDuration:         histRenderDuration,
	}
}
