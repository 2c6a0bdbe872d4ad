// Package metrics exposes Prometheus instruments for the service.
//
// All recording methods are safe on a nil *Collector so that services can be
// constructed without metrics in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	messagesRouted   *prometheus.CounterVec
	livePushes       *prometheus.CounterVec
	presenceOnline   prometheus.Gauge
	taskTransitions  *prometheus.CounterVec
	envelopesHandled *prometheus.CounterVec
	idCollisions     prometheus.Counter
	idExhausted      prometheus.Counter
}

// NewCollector registers every instrument on a private registry under namespace.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		messagesRouted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_routed_total",
			Help:      "Messages persisted by the router, by kind and whether any live push happened",
		}, []string{"kind", "delivery"}),
		livePushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_pushes_total",
			Help:      "Frames offered to live connections, by outcome",
		}, []string{"outcome"}),
		presenceOnline: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "presence_online_agents",
			Help:      "Agents with a live connection",
		}),
		taskTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_transitions_total",
			Help:      "Task status transitions, by target status and result",
		}, []string{"to", "result"}),
		envelopesHandled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "federation_envelopes_total",
			Help:      "Inbound federation envelopes, by type and result",
		}, []string{"type", "result"}),
		idCollisions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_collisions_total",
			Help:      "Issued identity candidates that already existed",
		}),
		idExhausted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_retry_exhausted_total",
			Help:      "Issuances that returned a candidate after exhausting the retry budget",
		}),
	}
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) ObserveHTTP(method, path string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// MessageRouted records a persisted message. kind is "direct" or "group".
func (c *Collector) MessageRouted(kind string, live bool) {
	if c == nil {
		return
	}
	delivery := "stored"
	if live {
		delivery = "live"
	}
	c.messagesRouted.WithLabelValues(kind, delivery).Inc()
}

// LivePush records a frame offered to a connection. outcome is "queued" or "dropped".
func (c *Collector) LivePush(outcome string) {
	if c == nil {
		return
	}
	c.livePushes.WithLabelValues(outcome).Inc()
}

func (c *Collector) SetOnline(n int) {
	if c == nil {
		return
	}
	c.presenceOnline.Set(float64(n))
}

func (c *Collector) TaskTransition(to string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.taskTransitions.WithLabelValues(to, result).Inc()
}

func (c *Collector) EnvelopeHandled(typ string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.envelopesHandled.WithLabelValues(typ, result).Inc()
}

func (c *Collector) IdentityCollision() {
	if c == nil {
		return
	}
	c.idCollisions.Inc()
}

func (c *Collector) IdentityExhausted() {
	if c == nil {
		return
	}
	c.idExhausted.Inc()
}
