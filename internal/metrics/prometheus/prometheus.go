// Package prometheus is the promauto-backed implementation of
// internal/metrics.Metrics.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter
	registrations       *prometheus.CounterVec
	auth                *prometheus.CounterVec
	tokens              *prometheus.CounterVec
}

// New builds a Metrics implementation registered against reg. Pass
// prometheus.NewRegistry() (or prometheus.DefaultRegisterer's registry) from
// the caller that owns the /metrics endpoint.
func New(reg *prometheus.Registry) *metrics {
	return &metrics{
		connectionsAccepted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "schnorrauth_connections_accepted_total",
			Help: "Total TCP connections accepted.",
		}),
		connectionsClosed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "schnorrauth_connections_closed_total",
			Help: "Total connections closed.",
		}),
		registrations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "schnorrauth_registrations_total",
			Help: "REGISTER attempts by outcome.",
		}, []string{"outcome"}),
		auth: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "schnorrauth_auth_attempts_total",
			Help: "Challenge-response authentication attempts by outcome.",
		}, []string{"outcome"}),
		tokens: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "schnorrauth_pairing_tokens_total",
			Help: "Pairing token lifecycle events.",
		}, []string{"event"}),
	}
}

func (m *metrics) ConnectionAccepted()    { m.connectionsAccepted.Inc() }
func (m *metrics) ConnectionClosed()      { m.connectionsClosed.Inc() }
func (m *metrics) RegistrationSucceeded() { m.registrations.WithLabelValues("success").Inc() }
func (m *metrics) RegistrationRejected()  { m.registrations.WithLabelValues("rejected").Inc() }
func (m *metrics) AuthSucceeded()         { m.auth.WithLabelValues("success").Inc() }
func (m *metrics) AuthRejected()          { m.auth.WithLabelValues("rejected").Inc() }
func (m *metrics) TokenMinted()           { m.tokens.WithLabelValues("minted").Inc() }
func (m *metrics) TokenConfirmed()        { m.tokens.WithLabelValues("confirmed").Inc() }
func (m *metrics) TokenExpired()          { m.tokens.WithLabelValues("expired").Inc() }
func (m *metrics) TokenAssocFailed()      { m.tokens.WithLabelValues("assoc_failed").Inc() }
