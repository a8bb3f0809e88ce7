// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package auth

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels recorded by Metrics.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeThrottled = "throttled"
	OutcomeInvalid   = "invalid"
)

// Metrics holds counters for authentication flows. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Logins          *prometheus.CounterVec
	Registrations   *prometheus.CounterVec
	PasswordResets  *prometheus.CounterVec
	TokensRevoked   prometheus.Counter
	TokensIssued    prometheus.Counter
	ResetsRequested *prometheus.CounterVec
}

// NewMetrics creates and registers authentication metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_logins_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_registrations_total",
				Help: "Total number of registration attempts by outcome",
			},
			[]string{"outcome"},
		),
		PasswordResets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_password_resets_total",
				Help: "Total number of password reset completions by outcome",
			},
			[]string{"outcome"},
		),
		ResetsRequested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_reset_requests_total",
				Help: "Total number of password reset link requests by outcome",
			},
			[]string{"outcome"},
		),
		TokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tollgate_tokens_issued_total",
			Help: "Total number of bearer tokens issued",
		}),
		TokensRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tollgate_tokens_revoked_total",
			Help: "Total number of bearer tokens revoked",
		}),
	}

	reg.MustRegister(m.Logins, m.Registrations, m.PasswordResets, m.ResetsRequested, m.TokensIssued, m.TokensRevoked)
	return m
}

func (m *Metrics) login(outcome string) {
	if m != nil {
		m.Logins.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) registration(outcome string) {
	if m != nil {
		m.Registrations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) passwordReset(outcome string) {
	if m != nil {
		m.PasswordResets.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) resetRequested(outcome string) {
	if m != nil {
		m.ResetsRequested.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) tokensIssued(n int) {
	if m != nil {
		m.TokensIssued.Add(float64(n))
	}
}

func (m *Metrics) tokensRevoked(n int64) {
	if m != nil && n > 0 {
		m.TokensRevoked.Add(float64(n))
	}
}
