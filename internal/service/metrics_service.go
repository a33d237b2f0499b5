package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/clonebot/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
// All methods are safe on a nil receiver so services can run without metrics.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	searchDuration  prometheus.Histogram
	searchResults   prometheus.Histogram
	accessDenied    *prometheus.CounterVec
	tokensIssued    prometheus.Counter
	redemptions     *prometheus.CounterVec
	botUpdates      *prometheus.CounterVec
	runningBots     prometheus.Gauge

	requestCount         uint64
	requestDurationTotal uint64
	searchCount          uint64
	issuedCount          uint64
	redeemedCount        uint64
	expiredCount         uint64
	updateCount          uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	searchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "clonebot_search_duration_seconds",
		Help:    "Time spent scoring the corpus for one query",
		Buckets: prometheus.DefBuckets,
	})

	searchResults := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "clonebot_search_results",
		Help:    "Number of ranked results returned per query",
		Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
	})

	accessDenied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clonebot_access_denied_total",
		Help: "Search requests refused by the access gate",
	}, []string{"reason"})

	tokensIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clonebot_tokens_issued_total",
		Help: "Redemption tokens issued",
	})

	redemptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clonebot_token_redemptions_total",
		Help: "Redemption attempts by outcome",
	}, []string{"outcome"})

	botUpdates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clonebot_updates_total",
		Help: "Telegram updates handled per bot and kind",
	}, []string{"bot", "kind"})

	runningBots := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "clonebot_running_bots",
		Help: "Bot identities currently polling",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, searchDuration, searchResults, accessDenied,
		tokensIssued, redemptions, botUpdates, runningBots, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		searchDuration:  searchDuration,
		searchResults:   searchResults,
		accessDenied:    accessDenied,
		tokensIssued:    tokensIssued,
		redemptions:     redemptions,
		botUpdates:      botUpdates,
		runningBots:     runningBots,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordSearch tracks one ranked query.
func (m *MetricsService) RecordSearch(results int, duration time.Duration) {
	if m == nil {
		return
	}
	m.searchDuration.Observe(duration.Seconds())
	m.searchResults.Observe(float64(results))
	atomic.AddUint64(&m.searchCount, 1)
}

// RecordAccessDenied counts an access gate refusal.
func (m *MetricsService) RecordAccessDenied(reason models.DenyReason) {
	if m == nil {
		return
	}
	m.accessDenied.WithLabelValues(string(reason)).Inc()
}

// RecordTokenIssued counts a stored redemption token.
func (m *MetricsService) RecordTokenIssued() {
	if m == nil {
		return
	}
	m.tokensIssued.Inc()
	atomic.AddUint64(&m.issuedCount, 1)
}

// RecordRedemption counts a redemption attempt.
func (m *MetricsService) RecordRedemption(found bool) {
	if m == nil {
		return
	}
	if found {
		m.redemptions.WithLabelValues("redeemed").Inc()
		atomic.AddUint64(&m.redeemedCount, 1)
		return
	}
	m.redemptions.WithLabelValues("not_found").Inc()
	atomic.AddUint64(&m.expiredCount, 1)
}

// RecordUpdate counts an inbound Telegram update.
func (m *MetricsService) RecordUpdate(bot, kind string) {
	if m == nil {
		return
	}
	m.botUpdates.WithLabelValues(bot, kind).Inc()
	atomic.AddUint64(&m.updateCount, 1)
}

// SetRunningBots reports how many bot identities are polling.
func (m *MetricsService) SetRunningBots(n int) {
	if m == nil {
		return
	}
	m.runningBots.Set(float64(n))
}

// Snapshot returns aggregated counters for the admin API.
func (m *MetricsService) Snapshot() models.MetricsSnapshot {
	if m == nil {
		return models.MetricsSnapshot{GeneratedAt: time.Now().UTC()}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		Searches:                 atomic.LoadUint64(&m.searchCount),
		TokensIssued:             atomic.LoadUint64(&m.issuedCount),
		TokensRedeemed:           atomic.LoadUint64(&m.redeemedCount),
		TokensNotFound:           atomic.LoadUint64(&m.expiredCount),
		Updates:                  atomic.LoadUint64(&m.updateCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
