package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	InsightDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexybrain_insight_duration_seconds",
			Help:    "End-to-end insight generation duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"capability"},
	)

	InsightTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexybrain_insight_total",
			Help: "Total insight runs that reached generation",
		},
		[]string{"capability", "status"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexybrain_cache_hits_total",
			Help: "Total insight cache hits",
		},
		[]string{"capability"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexybrain_cache_misses_total",
			Help: "Total insight cache misses",
		},
		[]string{"capability"},
	)

	QuotaDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexybrain_quota_denials_total",
			Help: "Total requests denied by the quota ledger",
		},
		[]string{"quota_key"},
	)

	CostCapTrips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lexybrain_cost_cap_trips_total",
			Help: "Total requests denied by the daily cost cap",
		},
	)

	ModelTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexybrain_model_tokens_used",
			Help: "Total model tokens used",
		},
		[]string{"model", "type"},
	)

	ModelCostCents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexybrain_model_cost_cents",
			Help: "Estimated model API cost in cents",
		},
		[]string{"model"},
	)

	RetrievalResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lexybrain_retrieval_results_count",
			Help:    "Number of corpus chunks returned per retrieval",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
		},
	)

	CorpusChunksIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lexybrain_corpus_chunks_ingested_total",
			Help: "Total corpus chunks ingested",
		},
	)

	RateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexybrain_ratelimit_rejections_total",
			Help: "Total requests rejected by the rate limiter",
		},
		[]string{"route"},
	)
)

func Init() {
	prometheus.MustRegister(InsightDuration)
	prometheus.MustRegister(InsightTotal)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(QuotaDenials)
	prometheus.MustRegister(CostCapTrips)
	prometheus.MustRegister(ModelTokensUsed)
	prometheus.MustRegister(ModelCostCents)
	prometheus.MustRegister(RetrievalResultsCount)
	prometheus.MustRegister(CorpusChunksIngested)
	prometheus.MustRegister(RateLimitRejections)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
