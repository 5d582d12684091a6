package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/2beens/gymhrv/internal/telemetry/metrics"

	"github.com/go-redis/redis_rate/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestRateLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	limiter := NewMockRequestRateLimiter(ctrl)
	metricsManager := metrics.NewTestManager()

	nextCalls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalls++
	})
	handler := RateLimit(limiter, metricsManager, "dataset-upload", 2)(next)

	gomock.InOrder(
		limiter.EXPECT().
			Allow(gomock.Any(), "dataset-upload", redis_rate.PerMinute(2)).
			Return(&redis_rate.Result{Allowed: 1}, nil),
		limiter.EXPECT().
			Allow(gomock.Any(), "dataset-upload", redis_rate.PerMinute(2)).
			Return(&redis_rate.Result{Allowed: 0, RetryAfter: 30 * time.Second}, nil),
		limiter.EXPECT().
			Allow(gomock.Any(), "dataset-upload", redis_rate.PerMinute(2)).
			Return(nil, errors.New("redis down")),
	)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("POST", "/dataset", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, nextCalls)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("POST", "/dataset", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), "retry after 30")
	assert.Equal(t, 1, nextCalls)
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterRateLimitedRequests))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("POST", "/dataset", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, 1, nextCalls)
}

func TestRateLimit_NilLimiter(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	handler := RateLimit(nil, nil, "dataset-upload", 2)(next)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("POST", "/dataset", nil))
	assert.True(t, called)
}
