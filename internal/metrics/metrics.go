// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AuthCollector は認証フローのメトリクス収集インターフェース。
// ハンドラーやワーカーから利用する。
type AuthCollector interface {
	RecordLoginOutcome(outcome string)
	RecordProviderStatus(endpoint string, statusCode int)
	RecordProviderLatency(duration time.Duration)
	RecordSessionsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginOutcomes   *prometheus.CounterVec
	providerStatus  *prometheus.CounterVec
	providerLatency prometheus.Histogram
	sessionsPurged  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildgate_login_total",
			Help: "ログイン試行の結果別の合計数",
		}, []string{"outcome"}),
		providerStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildgate_provider_status_total",
			Help: "Discord APIのエンドポイント・ステータスコード別レスポンス数",
		}, []string{"endpoint", "status_code"}),
		providerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "guildgate_provider_latency_seconds",
			Help:    "Discord API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guildgate_sessions_purged_total",
			Help: "削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.loginOutcomes,
		c.providerStatus,
		c.providerLatency,
		c.sessionsPurged,
	)

	return c
}

// RecordLoginOutcome はログイン試行の結果を記録する。
func (c *Collector) RecordLoginOutcome(outcome string) {
	c.loginOutcomes.WithLabelValues(outcome).Inc()
}

// RecordProviderStatus はDiscord APIのレスポンスステータスを記録する。
func (c *Collector) RecordProviderStatus(endpoint string, statusCode int) {
	c.providerStatus.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
}

// RecordProviderLatency はDiscord API呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(duration time.Duration) {
	c.providerLatency.Observe(duration.Seconds())
}

// RecordSessionsPurged は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ AuthCollector = (*Collector)(nil)
