package metrics

import "github.com/prometheus/client_golang/prometheus"

// SiteMetrics exposes counters/histograms for the form, relay and proxy flows.
type SiteMetrics struct {
	submissionsTotal *prometheus.CounterVec
	deliveriesTotal  *prometheus.CounterVec
	rateLimitTotal   *prometheus.CounterVec
	proxyTotal       *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	csrfIssued       prometheus.Counter
}

// NewSiteMetrics registers the collectors on reg (default registerer when nil).
func NewSiteMetrics(reg prometheus.Registerer) *SiteMetrics {
	m := &SiteMetrics{
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ridgeline",
			Subsystem: "forms",
			Name:      "submissions_total",
			Help:      "Form submissions by form and outcome",
		}, []string{"form", "outcome"}),
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ridgeline",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Downstream notification attempts by provider and status",
		}, []string{"provider", "status"}),
		rateLimitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ridgeline",
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limiter decisions by scope and result",
		}, []string{"scope", "result"}),
		proxyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ridgeline",
			Subsystem: "identity_proxy",
			Name:      "requests_total",
			Help:      "Identity proxy requests by method and status class",
		}, []string{"method", "status"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ridgeline",
			Subsystem: "upstream",
			Name:      "latency_seconds",
			Help:      "Latency of outbound notification and identity proxy calls by target",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"}),
		csrfIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ridgeline",
			Subsystem: "csrf",
			Name:      "tokens_issued_total",
			Help:      "CSRF tokens issued",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.submissionsTotal, m.deliveriesTotal, m.rateLimitTotal, m.proxyTotal, m.upstreamLatency, m.csrfIssued)
	return m
}

func (m *SiteMetrics) ObserveSubmission(form, outcome string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(form, outcome).Inc()
}

func (m *SiteMetrics) ObserveDelivery(provider string, ok bool) {
	if m == nil {
		return
	}
	status := "failed"
	if ok {
		status = "delivered"
	}
	m.deliveriesTotal.WithLabelValues(provider, status).Inc()
}

func (m *SiteMetrics) ObserveRateLimit(scope string, allowed bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if allowed {
		result = "allowed"
	}
	m.rateLimitTotal.WithLabelValues(scope, result).Inc()
}

func (m *SiteMetrics) ObserveProxy(method string, status int) {
	if m == nil {
		return
	}
	m.proxyTotal.WithLabelValues(method, statusClass(status)).Inc()
}

func (m *SiteMetrics) ObserveUpstreamLatency(target string, seconds float64) {
	if m == nil {
		return
	}
	m.upstreamLatency.WithLabelValues(target).Observe(seconds)
}

func (m *SiteMetrics) ObserveCSRFIssued() {
	if m == nil {
		return
	}
	m.csrfIssued.Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
