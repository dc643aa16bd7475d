package appointment

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes gateway counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	cacheLookups   *prometheus.CounterVec
	transportCalls *prometheus.CounterVec
	serviceErrors  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointment_gateway",
			Name:      "cache_lookups_total",
			Help:      "List cache lookups by result",
		}, []string{"result"}),
		transportCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointment_gateway",
			Name:      "transport_calls_total",
			Help:      "Calls made to the clinic API",
		}, []string{"operation", "outcome"}),
		serviceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointment_gateway",
			Name:      "service_errors_total",
			Help:      "Service errors returned to callers",
		}, []string{"operation", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.cacheLookups, m.transportCalls, m.serviceErrors)
	return m
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveTransport(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.transportCalls.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveError(operation string, se *ServiceError) {
	if m == nil || se == nil {
		return
	}
	m.serviceErrors.WithLabelValues(operation, statusLabel(se.StatusCode)).Inc()
}

func statusLabel(code int) string {
	switch {
	case code == StatusNetworkError:
		return "network"
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "other"
	}
}
