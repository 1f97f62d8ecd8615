// Package metrics exposes login and connectivity metrics for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/use-agent/wlanlogin/models"
)

// Metrics holds the collectors of one process on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	attemptsTotal  *prometheus.CounterVec
	probesTotal    *prometheus.CounterVec
	scriptFailures prometheus.Counter
	redirectsTotal prometheus.Counter
	loginDuration  *prometheus.HistogramVec
	online         prometheus.Gauge
	lastSuccess    prometheus.Gauge
}

// Outcome labels of wlanlogin_attempts_total.
const (
	OutcomeAuthenticated    = "authenticated"
	OutcomeNotAuthenticated = "not_authenticated"
	OutcomeError            = "error"
)

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wlanlogin_attempts_total",
			Help: "Login attempts by outcome and trigger",
		},
		[]string{"outcome", "trigger"},
	)
	m.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wlanlogin_probes_total",
			Help: "Connectivity probes by result",
		},
		[]string{"result"},
	)
	m.scriptFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wlanlogin_script_failures_total",
		Help: "Portal scripts that failed to load or run",
	})
	m.redirectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wlanlogin_redirects_total",
		Help: "Meta refresh hops followed",
	})
	m.loginDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wlanlogin_login_duration_seconds",
			Help:    "Duration of login attempts",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"outcome"},
	)
	m.online = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wlanlogin_online",
		Help: "1 when the last probe found the network online",
	})
	m.lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wlanlogin_last_success_timestamp_seconds",
		Help: "Unix time of the last authenticated attempt",
	})

	m.registry.MustRegister(
		m.attemptsTotal,
		m.probesTotal,
		m.scriptFailures,
		m.redirectsTotal,
		m.loginDuration,
		m.online,
		m.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveAttempt records one finished login attempt. out is nil when the
// attempt failed with an error.
func (m *Metrics) ObserveAttempt(trigger string, out *models.LoginOutcome, took time.Duration) {
	outcome := OutcomeError
	switch {
	case out == nil:
	case out.Authenticated:
		outcome = OutcomeAuthenticated
		m.lastSuccess.SetToCurrentTime()
	default:
		outcome = OutcomeNotAuthenticated
	}
	m.attemptsTotal.WithLabelValues(outcome, trigger).Inc()
	m.loginDuration.WithLabelValues(outcome).Observe(took.Seconds())
	if out != nil {
		m.scriptFailures.Add(float64(len(out.Settle.ScriptFailures)))
		m.redirectsTotal.Add(float64(len(out.Settle.Redirects)))
	}
}

// ObserveProbe records a connectivity probe.
func (m *Metrics) ObserveProbe(online bool) {
	result := "offline"
	if online {
		result = "online"
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
	m.probesTotal.WithLabelValues(result).Inc()
}
