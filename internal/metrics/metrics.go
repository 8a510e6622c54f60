package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "printmanager",
			Name:      "classifications_total",
			Help:      "Ink coverage classifications by result (ok, fallback, tool_not_found, parse_error, ...)",
		},
		[]string{"result"},
	)

	toolLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "printmanager",
			Name:      "inkcov_duration_seconds",
			Help:      "Duration of ink coverage tool runs",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	pagesClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "printmanager",
			Name:      "pages_classified_total",
			Help:      "Pages classified by ink class (color, mono)",
		},
		[]string{"ink"},
	)

	enrichRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "printmanager",
			Name:      "enrich_requests_total",
			Help:      "Color enrichment requests by outcome (started, in_flight, unavailable, store_hit)",
		},
		[]string{"outcome"},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "printmanager",
			Name:      "cache_entries",
			Help:      "Documents held in the metadata cache",
		},
	)

	inflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "printmanager",
			Name:      "classifications_in_flight",
			Help:      "Documents currently being classified",
		},
	)

	quotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "printmanager",
			Name:      "quotes_total",
			Help:      "Price quotes computed, labeled by whether any document used the all-mono assumption",
		},
		[]string{"assumed"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(classifications, toolLatency, pagesClassified, enrichRequests, cacheEntries, inflight, quotes)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveClassification(result string, dur time.Duration) {
	classifications.WithLabelValues(result).Inc()
	if dur > 0 {
		toolLatency.Observe(dur.Seconds())
	}
}

func AddPages(color, mono int) {
	pagesClassified.WithLabelValues("color").Add(float64(color))
	pagesClassified.WithLabelValues("mono").Add(float64(mono))
}

func IncEnrich(outcome string) { enrichRequests.WithLabelValues(outcome).Inc() }
func SetCacheEntries(n int) { cacheEntries.Set(float64(n)) }
func SetInflight(n int) { inflight.Set(float64(n)) }
func IncQuote(assumed bool) { quotes.WithLabelValues(boolToStr(assumed)).Inc() }

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
