package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/lifecycle"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

const namespace = "union_claims"

// Collector holds every metric the service exports.
type Collector struct {
	transitions   *prometheus.CounterVec
	slaWarnings   prometheus.Counter
	claimsBySLA   *prometheus.GaugeVec
	sweepDuration prometheus.Histogram
	sweepSkipped  prometheus.Gauge
	outbox        *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// NewCollector registers the metrics on reg. Tests pass a fresh registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Transition requests by outcome and blocking check",
		}, []string{"from", "to", "outcome", "check"}),
		slaWarnings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "sla_warnings_total",
			Help:      "Allowed transitions that carried an SLA warning",
		}),
		claimsBySLA: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sla",
			Name:      "claims",
			Help:      "Open claims by overall SLA status at the last sweep",
		}, []string{"status"}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sla",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of SLA sweeps",
			Buckets:   prometheus.DefBuckets,
		}),
		sweepSkipped: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sla",
			Name:      "skipped_claims",
			Help:      "Claims the last sweep could not assess",
		}),
		outbox: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "messages_total",
			Help:      "Outbox delivery attempts by topic and result",
		}, []string{"topic", "result"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (c *Collector) ObserveTransition(from, to lifecycle.Status, res lifecycle.ValidationResult) {
	outcome, check := "allowed", "none"
	if !res.Allowed {
		outcome, check = "blocked", string(res.BlockedBy)
	}
	c.transitions.WithLabelValues(string(from), string(to), outcome, check).Inc()
	if res.Allowed && res.Metadata != nil && !res.Metadata.SLACompliant {
		c.slaWarnings.Inc()
	}
}

func (c *Collector) ObserveOutbox(topic string, published bool) {
	result := "published"
	if !published {
		result = "failed"
	}
	c.outbox.WithLabelValues(topic, result).Inc()
}

// ObserveSweep records one completed sweep. counts is keyed by overall status.
func (c *Collector) ObserveSweep(counts map[sla.Status]int, skipped int, took time.Duration) {
	for _, status := range []sla.Status{sla.StatusWithinSLA, sla.StatusAtRisk, sla.StatusBreached} {
		c.claimsBySLA.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
	c.sweepSkipped.Set(float64(skipped))
	c.sweepDuration.Observe(took.Seconds())
}

func (c *Collector) ObserveHTTP(method, route string, code int, took time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
