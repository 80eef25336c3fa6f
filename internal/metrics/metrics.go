// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// プロフィール照合の結果区分
const (
	ReconcileExisting = "existing"
	ReconcileCreated  = "created"
	ReconcileRace     = "race"
	ReconcileFailed   = "failed"
)

// スケジュール保存の結果区分
const (
	ScheduleInsert = "insert"
	ScheduleUpdate = "update"
	ScheduleFailed = "failed"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordReconcile(outcome string)
	RecordScheduleSave(outcome string)
	RecordChatRelay(success bool, duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	reconcile    *prometheus.CounterVec
	scheduleSave *prometheus.CounterVec
	chatRelay    *prometheus.CounterVec
	chatLatency  prometheus.Histogram
	httpStatus   *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		reconcile: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bitesync_profile_reconcile_total",
			Help: "プロフィール照合の結果別件数",
		}, []string{"outcome"}),
		scheduleSave: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bitesync_schedule_save_total",
			Help: "スケジュール保存の結果別件数",
		}, []string{"outcome"}),
		chatRelay: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bitesync_chat_relay_total",
			Help: "チャット中継の結果別件数",
		}, []string{"result"}),
		chatLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bitesync_chat_relay_latency_seconds",
			Help:    "LLM呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bitesync_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.reconcile,
		c.scheduleSave,
		c.chatRelay,
		c.chatLatency,
		c.httpStatus,
	)

	return c
}

// RecordReconcile はプロフィール照合の結果を記録する。
func (c *Collector) RecordReconcile(outcome string) {
	c.reconcile.WithLabelValues(outcome).Inc()
}

// RecordScheduleSave はスケジュール保存の結果を記録する。
func (c *Collector) RecordScheduleSave(outcome string) {
	c.scheduleSave.WithLabelValues(outcome).Inc()
}

// RecordChatRelay はチャット中継の結果とレイテンシを記録する。
func (c *Collector) RecordChatRelay(success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.chatRelay.WithLabelValues(result).Inc()
	c.chatLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordReconcile(string) {}
func (Nop) RecordScheduleSave(string) {}
func (Nop) RecordChatRelay(bool, time.Duration) {}
func (Nop) RecordHTTPStatus(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 一部のコレクタが失敗しても、取得できたメトリクスは返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
