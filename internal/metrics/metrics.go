// Package metrics exposes prometheus counters for the attendance engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Verifications counts kiosk verification attempts by outcome:
	// time_in, time_out, not_recognized, not_live, rejected, error.
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classattend_verifications_total",
		Help: "Kiosk verification attempts by outcome.",
	}, []string{"outcome"})

	// Enrollments counts enrollment jobs by result: enrolled, duplicate,
	// failed.
	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classattend_enrollments_total",
		Help: "Enrollment jobs by result.",
	}, []string{"result"})

	// ExcuseDecisions counts excuse resolutions by decision.
	ExcuseDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classattend_excuse_decisions_total",
		Help: "Excuse resolutions by decision.",
	}, []string{"decision"})
)
