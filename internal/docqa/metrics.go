package docqa

import (
	"time"

	"github.com/askpaper/askpaper/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "askpaper"

var (
	documentQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "docqa",
			Name:      "queue_documents",
			Help:      "Number of documents in the indexing queue by status",
		},
		[]string{"status"},
	)

	documentsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "docqa",
			Name:      "documents_indexed_total",
			Help:      "Total document indexing attempts",
		},
		[]string{"status"},
	)

	indexDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "docqa",
			Name:      "index_duration_seconds",
			Help:      "Time to chunk and index a document",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	queriesAnswered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "docqa",
			Name:      "queries_total",
			Help:      "Total question-answering requests",
		},
		[]string{"status"},
	)
)

// recordDocumentIndexed records the outcome of an indexing attempt.
func recordDocumentIndexed(status string, duration time.Duration) {
	documentsIndexed.WithLabelValues(status).Inc()
	if status == "success" {
		indexDuration.Observe(duration.Seconds())
	}
}

// RecordQuery records the outcome of a question-answering request.
func RecordQuery(status string) {
	queriesAnswered.WithLabelValues(status).Inc()
}

// RecordQueueStats updates indexing queue size metrics.
func RecordQueueStats(stats map[domain.DocumentStatus]int) {
	for _, status := range []domain.DocumentStatus{
		domain.DocumentStatusPending,
		domain.DocumentStatusIndexing,
		domain.DocumentStatusIndexed,
		domain.DocumentStatusFailed,
	} {
		documentQueueSize.WithLabelValues(string(status)).Set(float64(stats[status]))
	}
}
