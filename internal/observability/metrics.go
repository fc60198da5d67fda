package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	questionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_questions_total",
			Help: "Total number of questions asked.",
		},
	)
	verdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_verdicts_total",
			Help: "Final pipeline verdicts by kind.",
		},
		[]string{"kind"},
	)
	generationAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_generation_attempts_total",
			Help: "Total number of SQL generation attempts, including retries.",
		},
	)
	retrievedDocuments = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_retrieved_documents",
			Help:    "Number of schema documents selected per question.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)
	askLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_ask_latency_ms",
			Help:    "End-to-end question latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
	)
	indexedDocumentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_indexed_documents_total",
			Help: "Total number of schema documents embedded and stored.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		questionsTotal,
		verdictsTotal,
		generationAttemptsTotal,
		retrievedDocuments,
		askLatencyMs,
		indexedDocumentsTotal,
	)
}

// ObserveAsk records one completed question with its final verdict kind
func ObserveAsk(verdictKind string, retrieved, attempts int, elapsed time.Duration) {
	questionsTotal.Inc()
	verdictsTotal.WithLabelValues(verdictKind).Inc()
	retrievedDocuments.Observe(float64(retrieved))

	if attempts > 0 {
		generationAttemptsTotal.Add(float64(attempts))
	}

	askLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

// ObserveIndex records one store rebuild
func ObserveIndex(documents int) {
	if documents > 0 {
		indexedDocumentsTotal.Add(float64(documents))
	}
}
