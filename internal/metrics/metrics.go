// Package metrics holds the process-wide Prometheus collectors for the control
// surface and outbound probe pacing. Run and probe counters live in the
// progress Prometheus sink instead.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "platechecker"

type collectors struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	controls *prometheus.CounterVec
	throttle *prometheus.HistogramVec
}

var (
	registered collectors
	once       sync.Once
)

// Init registers the collectors with the default registry. Repeated calls are no-ops.
func Init() {
	once.Do(func() {
		registered = collectors{
			requests: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Requests served by the control surface.",
			}, []string{"route", "method", "code"}),
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Control surface latency by route.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			}, []string{"route", "method"}),
			controls: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "control_actions_total",
				Help:      "Start and stop requests by outcome.",
			}, []string{"action", "outcome"}),
			throttle: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "throttle_wait_seconds",
				Help:      "Time a probe waited for the outbound request-rate cap.",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 15, 60},
			}, []string{"host"}),
		}
	})
}

// HostLabel reduces rawURL to a lowercase host for use as a label value.
// URLs without a scheme are accepted. It returns "unknown" when no host can be found.
func HostLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err == nil && u.Host == "" && !strings.Contains(rawURL, "://") {
		u, err = url.Parse("//" + rawURL)
	}
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one request served on route.
func ObserveRequest(route, method string, code int, elapsed time.Duration) {
	Init()
	registered.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	registered.latency.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// ObserveControl counts a start or stop request with its outcome.
func ObserveControl(action, outcome string) {
	Init()
	registered.controls.WithLabelValues(action, outcome).Inc()
}

// ObserveThrottle records how long a probe to host waited for the rate cap.
func ObserveThrottle(host string, waited time.Duration) {
	Init()
	registered.throttle.WithLabelValues(host).Observe(waited.Seconds())
}
