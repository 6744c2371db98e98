// Package metrics exposes drill engine and HTTP instrumentation as
// Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"drill-service/internal/domain"
)

const namespace = "drill"

// Collector implements app.MetricsRecorder on a dedicated registry.
type Collector struct {
	registry *prometheus.Registry

	attemptsStarted  *prometheus.CounterVec
	responses        *prometheus.CounterVec
	attemptsFinished *prometheus.CounterVec
	scores           *prometheus.HistogramVec
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		attemptsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_started_total",
			Help:      "Drill attempts started.",
		}, []string{"drill_type"}),
		responses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Scenario responses recorded.",
		}, []string{"drill_type", "correct"}),
		attemptsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_finished_total",
			Help:      "Drill attempts that left the in-progress state.",
		}, []string{"drill_type", "outcome"}),
		scores: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_score",
			Help:      "Final score of completed attempts.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}, []string{"drill_type"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time spent serving HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (c *Collector) AttemptStarted(drillType domain.DrillType) {
	c.attemptsStarted.WithLabelValues(string(drillType)).Inc()
}

func (c *Collector) ResponseRecorded(drillType domain.DrillType, correct bool) {
	c.responses.WithLabelValues(string(drillType), strconv.FormatBool(correct)).Inc()
}

func (c *Collector) AttemptFinished(drillType domain.DrillType, outcome domain.EventType, score int) {
	c.attemptsFinished.WithLabelValues(string(drillType), string(outcome)).Inc()
	if outcome == domain.EventAttemptAbandoned {
		return
	}
	c.scores.WithLabelValues(string(drillType)).Observe(float64(score))
}

// ObserveRequest records one served HTTP request.
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
