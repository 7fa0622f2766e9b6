// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 配信オーケストレーターやワーカーから利用する。
type MetricsCollector interface {
	RecordDeliveryResult(kind string, success bool)
	RecordWebhookLatency(duration time.Duration)
	RecordEmailBatchSize(size int)
	RecordEntryPublished()
	RecordNotificationCreated()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	deliveryResults      *prometheus.CounterVec
	webhookLatency       prometheus.Histogram
	emailBatchSize       prometheus.Histogram
	entriesPublished     prometheus.Counter
	notificationsCreated prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		deliveryResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notehub_delivery_results_total",
			Help: "宛先種別・成否別の配信結果の合計数",
		}, []string{"kind", "outcome"}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "notehub_webhook_latency_seconds",
			Help:    "Webhook配信のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		emailBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "notehub_email_batch_size",
			Help:    "1エントリあたりのメール同報宛先数",
			Buckets: []float64{1, 2, 5, 10, 20, 50},
		}),
		entriesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notehub_entries_published_total",
			Help: "公開されたエントリの合計数",
		}),
		notificationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notehub_notifications_created_total",
			Help: "作成されたアプリ内通知の合計数",
		}),
	}

	reg.MustRegister(
		c.deliveryResults,
		c.webhookLatency,
		c.emailBatchSize,
		c.entriesPublished,
		c.notificationsCreated,
	)

	return c
}

// RecordDeliveryResult は宛先1件分の配信結果を記録する。
func (c *Collector) RecordDeliveryResult(kind string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.deliveryResults.WithLabelValues(kind, outcome).Inc()
}

// RecordWebhookLatency はWebhook配信のレイテンシを記録する。
func (c *Collector) RecordWebhookLatency(duration time.Duration) {
	c.webhookLatency.Observe(duration.Seconds())
}

// RecordEmailBatchSize は同報メールの宛先数を記録する。
func (c *Collector) RecordEmailBatchSize(size int) {
	c.emailBatchSize.Observe(float64(size))
}

// RecordEntryPublished はエントリの公開を記録する。
func (c *Collector) RecordEntryPublished() {
	c.entriesPublished.Inc()
}

// RecordNotificationCreated はアプリ内通知の作成を記録する。
func (c *Collector) RecordNotificationCreated() {
	c.notificationsCreated.Inc()
}

// RegisterPendingGauge はステージング中エントリ数のゲージを登録する。
// 値はスクレイプのたびにcountFnで取得する。
func RegisterPendingGauge(reg prometheus.Registerer, countFn func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "notehub_staged_pending",
		Help: "ステージング中のエントリ数",
	}, func() float64 {
		return float64(countFn())
	}))
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
