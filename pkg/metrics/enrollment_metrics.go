// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	metricsNamespace = "virtjoiner"

	resultLabel = "result"
)

// Metric result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultTimeout = "timeout"
)

var (
	enrollmentMetricsOnce sync.Once
	enrollmentMetrics     *EnrollmentMetrics
)

// EnrollmentMetrics counts the terminal outcomes of the enrollment
// lifecycle.
type EnrollmentMetrics struct {
	enrollments   *prometheus.CounterVec
	keytabWaits   *prometheus.CounterVec
	hostDeletions *prometheus.CounterVec
}

// NewEnrollmentMetrics initializes a singleton and registers the defined
// metrics with the controller-runtime registry.
func NewEnrollmentMetrics() *EnrollmentMetrics {
	enrollmentMetricsOnce.Do(func() {
		enrollmentMetrics = &EnrollmentMetrics{
			enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "enrollments_total",
				Help:      "Admission-time IPA host pre-creations by result",
			}, []string{resultLabel}),
			keytabWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "keytab_waits_total",
				Help:      "Keytab watcher terminations by result",
			}, []string{resultLabel}),
			hostDeletions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "host_deletions_total",
				Help:      "IPA host deletions during VM teardown by result",
			}, []string{resultLabel}),
		}
		metrics.Registry.MustRegister(
			enrollmentMetrics.enrollments,
			enrollmentMetrics.keytabWaits,
			enrollmentMetrics.hostDeletions,
		)
	})
	return enrollmentMetrics
}

// RecordEnrollment counts one admission-time enrollment attempt.
func (m *EnrollmentMetrics) RecordEnrollment(result string) {
	m.enrollments.WithLabelValues(result).Inc()
}

// RecordKeytabWait counts one keytab watcher termination.
func (m *EnrollmentMetrics) RecordKeytabWait(result string) {
	m.keytabWaits.WithLabelValues(result).Inc()
}

// RecordHostDeletion counts one host deletion attempt.
func (m *EnrollmentMetrics) RecordHostDeletion(result string) {
	m.hostDeletions.WithLabelValues(result).Inc()
}
