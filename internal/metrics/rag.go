package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval and generation Prometheus metrics.
var (
	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Name:      "generation_requests_total",
			Help:      "Total number of text generation requests",
		},
		[]string{"provider", "model", "status"},
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Name:      "generation_request_duration_seconds",
			Help:      "Text generation request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	RetrievalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Name:      "retrieval_requests_total",
			Help:      "Total retrieval requests by outcome",
		},
		[]string{"outcome"}, // "answered" / "refused" / "error"
	)

	RetrievalHitsPerQuery = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Name:      "retrieval_hits_per_query",
			Help:      "Number of chunks above the similarity threshold per query",
			Buckets:   []float64{0, 1, 2, 3, 4, 6, 8, 12, 16},
		},
	)

	IngestDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Name:      "ingest_documents_total",
			Help:      "Total documents processed by ingestion",
		},
		[]string{"status"}, // "succeeded" / "failed" / "skipped"
	)

	IndexEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragd",
			Name:      "index_entries",
			Help:      "Live entries in the active vector index generation",
		},
	)
)

var ragMetricsRegistered bool

// RegisterRAGMetrics registers retrieval and generation metrics. Must be called once from main.
func RegisterRAGMetrics() {
	if ragMetricsRegistered {
		return
	}
	prometheus.MustRegister(GenerationRequestsTotal)
	prometheus.MustRegister(GenerationRequestDuration)
	prometheus.MustRegister(RetrievalRequestsTotal)
	prometheus.MustRegister(RetrievalHitsPerQuery)
	prometheus.MustRegister(IngestDocumentsTotal)
	prometheus.MustRegister(IndexEntries)
	ragMetricsRegistered = true
}
