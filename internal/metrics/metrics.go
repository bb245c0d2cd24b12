package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Domain collectors, registered on the default registry served at /metrics.
var (
	Registrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faceattend_registrations_total",
		Help: "Face registrations and re-registrations.",
	})

	MatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faceattend_match_attempts_total",
		Help: "Attendance match attempts by outcome.",
	}, []string{"result"})

	MatchDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "faceattend_match_distance",
		Help:    "Nearest-neighbor distance per match attempt.",
		Buckets: prometheus.LinearBuckets(0, 0.1, 12),
	})

	GeofenceRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faceattend_geofence_rejections_total",
		Help: "Mobile attendance attempts rejected by the geofence.",
	})

	ImportedStudents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faceattend_imported_students_total",
		Help: "Students whose embeddings were written by the batch importer.",
	})
)
