package importer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "student_import_rows_total",
		Help: "Uploaded rows by validation outcome.",
	}, []string{"outcome"})

	studentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "student_import_students_total",
		Help: "Validated students by commit outcome.",
	}, []string{"outcome"})

	commitFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "student_import_commit_failures_total",
		Help: "Failed group writes by classified category.",
	}, []string{"category"})

	groupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "student_import_group_duration_seconds",
		Help:    "Time spent on one group: existence check plus atomic write.",
		Buckets: prometheus.DefBuckets,
	})
)

func observeValidation(report *ValidationReport) {
	rowsTotal.WithLabelValues("valid").Add(float64(report.ValidCount))
	rowsTotal.WithLabelValues("invalid").Add(float64(report.InvalidCount))
}
