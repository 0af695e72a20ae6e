package api

import (
	"errors"
	"net/http"

	"github.com/andrebq/latchkey/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type (
	Metrics struct {
		outcomes   *prometheus.CounterVec
		rejections *prometheus.CounterVec
	}
)

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "latchkey",
			Name:      "auth_outcomes_total",
			Help:      "Authentication outcomes by resulting state",
		}, []string{"state"}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "latchkey",
			Name:      "token_rejections_total",
			Help:      "Rejected credentials by reason",
		}, []string{"reason"}),
	}
}

// MetricsHandler exposes the metrics gathered by reg.
func MetricsHandler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(out auth.Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(out.State.String()).Inc()
	if out.Cause != nil {
		m.rejections.WithLabelValues(reasonOf(out.Cause)).Inc()
	}
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, auth.UserNotFound{}):
		return "user_not_found"
	case errors.Is(err, auth.BadCredentials{}):
		return "bad_credentials"
	case errors.Is(err, auth.UnknownSeries{}):
		return "unknown_series"
	case errors.Is(err, auth.TokenExpired{}):
		return "token_expired"
	case errors.Is(err, auth.TokenReuseDetected{}):
		return "token_reuse"
	case errors.Is(err, auth.SessionExpired{}):
		return "session_expired"
	}
	return "other"
}
