// Package metrics はPrometheus形式のスキャン計測を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はスキャン関連のメトリクス一式。
type Collector struct {
	registry *prometheus.Registry

	scansStarted  prometheus.Counter
	scansFinished *prometheus.CounterVec
	scanDuration  prometheus.Histogram
	phaseFailures *prometheus.CounterVec
	entriesSaved  *prometheus.CounterVec
	conflictPairs prometheus.Gauge
}

// NewCollector は専用レジストリ付きのCollectorを生成する。
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		scansStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "calscan_scans_started_total",
			Help: "開始されたスキャンの総数",
		}),
		scansFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "calscan_scans_finished_total",
			Help: "終了したスキャンの総数（終了状態別）",
		}, []string{"status"}),
		scanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "calscan_scan_duration_seconds",
			Help:    "スキャン全体の所要時間",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		phaseFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "calscan_phase_failures_total",
			Help: "フェーズ失敗の総数（フェーズ別）",
		}, []string{"phase"}),
		entriesSaved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "calscan_entries_saved_total",
			Help: "保存されたエントリの総数（ソース種別別）",
		}, []string{"source"}),
		conflictPairs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "calscan_conflict_pairs",
			Help: "直近の競合解析で検出された競合ペア数",
		}),
	}
}

// ScanStarted はスキャン開始を記録する。
func (c *Collector) ScanStarted() {
	c.scansStarted.Inc()
}

// ScanFinished はスキャン終了と所要時間を記録する。
func (c *Collector) ScanFinished(status string, seconds float64) {
	c.scansFinished.WithLabelValues(status).Inc()
	c.scanDuration.Observe(seconds)
}

// PhaseFailure はフェーズ失敗を記録する。
func (c *Collector) PhaseFailure(phase string) {
	c.phaseFailures.WithLabelValues(phase).Inc()
}

// EntrySaved はエントリ保存を記録する。
func (c *Collector) EntrySaved(source string) {
	c.entriesSaved.WithLabelValues(source).Inc()
}

// ConflictPairs は直近の競合解析の結果を記録する。
func (c *Collector) ConflictPairs(count int) {
	c.conflictPairs.Set(float64(count))
}

// Handler はメトリクス公開用のHTTPハンドラを返す。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
