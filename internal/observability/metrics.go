// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Discovery metrics
	CandidatesProbed   prometheus.Counter
	CandidatesResolved *prometheus.CounterVec
	HoldingsScans      *prometheus.CounterVec
	HoldingsScanTime   prometheus.Histogram
	HoldingsTokens     prometheus.Histogram

	// Market metrics
	AssetFetches   *prometheus.CounterVec
	AssetFetchTime prometheus.Histogram
	AssetsRendered prometheus.Counter

	// Share metrics
	ShareDialogsOpened prometheus.Counter
	ShareMints         *prometheus.CounterVec

	// Chain metrics
	RPCReadLatency *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "datatoken_market"
	}

	return &Metrics{
		CandidatesProbed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "candidates_probed_total",
			Help:      "Total number of candidate addresses probed",
		}),
		CandidatesResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "candidates_resolved_total",
			Help:      "Total number of candidate resolutions by outcome",
		}, []string{"outcome"}),
		HoldingsScans: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "holdings_scans_total",
			Help:      "Total number of wallet holdings scans by status",
		}, []string{"status"}),
		HoldingsScanTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "holdings_scan_duration_seconds",
			Help:      "Wallet holdings scan duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		HoldingsTokens: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "holdings_tokens_found",
			Help:      "Number of tokens found per holdings scan",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),

		AssetFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "asset_fetches_total",
			Help:      "Total number of asset index fetches by status",
		}, []string{"status"}),
		AssetFetchTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "asset_fetch_duration_seconds",
			Help:      "Asset index fetch duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		AssetsRendered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "assets_rendered_total",
			Help:      "Total number of asset cards rendered",
		}),

		ShareDialogsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "share",
			Name:      "dialogs_opened_total",
			Help:      "Total number of share dialogs opened",
		}),
		ShareMints: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "share",
			Name:      "mints_total",
			Help:      "Total number of share mint attempts by status",
		}, []string{"status"}),

		RPCReadLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_read_latency_seconds",
			Help:      "Chain read call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCandidateProbed increments the probed candidates counter.
func RecordCandidateProbed() {
	DefaultMetrics.CandidatesProbed.Inc()
}

// RecordCandidateResolved records a resolution outcome
// ("direct", "factory" or "none").
func RecordCandidateResolved(outcome string) {
	DefaultMetrics.CandidatesResolved.WithLabelValues(outcome).Inc()
}

// RecordHoldingsScan records a completed holdings scan.
func RecordHoldingsScan(status string, seconds float64, tokens int) {
	DefaultMetrics.HoldingsScans.WithLabelValues(status).Inc()
	DefaultMetrics.HoldingsScanTime.Observe(seconds)
	if status == "ok" {
		DefaultMetrics.HoldingsTokens.Observe(float64(tokens))
	}
}

// RecordAssetFetch records an asset index fetch.
func RecordAssetFetch(status string, seconds float64) {
	DefaultMetrics.AssetFetches.WithLabelValues(status).Inc()
	DefaultMetrics.AssetFetchTime.Observe(seconds)
}

// RecordAssetsRendered adds to the rendered asset cards counter.
func RecordAssetsRendered(n int) {
	DefaultMetrics.AssetsRendered.Add(float64(n))
}

// RecordShareDialogOpened increments the opened share dialogs counter.
func RecordShareDialogOpened() {
	DefaultMetrics.ShareDialogsOpened.Inc()
}

// RecordShareMint records a share mint attempt ("success" or "error").
func RecordShareMint(status string) {
	DefaultMetrics.ShareMints.WithLabelValues(status).Inc()
}

// RecordRPCReadLatency records a chain read call latency.
func RecordRPCReadLatency(method string, seconds float64) {
	DefaultMetrics.RPCReadLatency.WithLabelValues(method).Observe(seconds)
}
