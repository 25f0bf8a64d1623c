// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 通話サービスとシグナリングブローカーから利用する。
type MetricsCollector interface {
	RecordCallStarted()
	RecordCallTerminated(status string)
	RecordAdmissionRejected(reason string)
	RecordFeeBypass()
	RecordSettlementFailure()
	RecordReconciliationWarning()
	RecordSignalingRelayed(event string)
	RecordSignalingDropped(event string)
	ConnectionOpened()
	ConnectionClosed()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	callsStarted           prometheus.Counter
	callsTerminated        *prometheus.CounterVec
	admissionsRejected     *prometheus.CounterVec
	feeBypasses            prometheus.Counter
	settlementFailures     prometheus.Counter
	reconciliationWarnings prometheus.Counter
	signalingRelayed       *prometheus.CounterVec
	signalingDropped       *prometheus.CounterVec
	activeConnections      prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		callsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitlink_calls_started_total",
			Help: "開始された通話セッションの合計数",
		}),
		callsTerminated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitlink_calls_terminated_total",
			Help: "終端状態に達した通話セッションの数（status別）",
		}, []string{"status"}),
		admissionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitlink_admissions_rejected_total",
			Help: "拒否された通話開始リクエストの数（reason別）",
		}, []string{"reason"}),
		feeBypasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitlink_fee_bypasses_total",
			Help: "24時間ウィンドウ内の支払い済み判定で料金免除された通話の数",
		}),
		settlementFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitlink_settlement_failures_total",
			Help: "ストア書き込みエラーによる決済失敗の数",
		}),
		reconciliationWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitlink_reconciliation_warnings_total",
			Help: "発信者の引き落とし後に受信者への加算が失敗した数（要オペレータ対応）",
		}),
		signalingRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitlink_signaling_relayed_total",
			Help: "転送されたシグナリングイベントの数（event別）",
		}, []string{"event"}),
		signalingDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitlink_signaling_dropped_total",
			Help: "宛先不在により破棄されたシグナリングイベントの数（event別）",
		}, []string{"event"}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fitlink_active_connections",
			Help: "現在開いているシグナリング接続の数",
		}),
	}

	reg.MustRegister(
		c.callsStarted,
		c.callsTerminated,
		c.admissionsRejected,
		c.feeBypasses,
		c.settlementFailures,
		c.reconciliationWarnings,
		c.signalingRelayed,
		c.signalingDropped,
		c.activeConnections,
	)

	return c
}

// RecordCallStarted は通話開始を記録する。
func (c *Collector) RecordCallStarted() {
	c.callsStarted.Inc()
}

// RecordCallTerminated は通話の終端遷移を記録する。
func (c *Collector) RecordCallTerminated(status string) {
	c.callsTerminated.WithLabelValues(status).Inc()
}

// RecordAdmissionRejected は通話開始の拒否を記録する。
func (c *Collector) RecordAdmissionRejected(reason string) {
	c.admissionsRejected.WithLabelValues(reason).Inc()
}

// RecordFeeBypass は料金免除による通話開始を記録する。
func (c *Collector) RecordFeeBypass() {
	c.feeBypasses.Inc()
}

// RecordSettlementFailure は決済失敗を記録する。
func (c *Collector) RecordSettlementFailure() {
	c.settlementFailures.Inc()
}

// RecordReconciliationWarning は受信者加算失敗を記録する。
func (c *Collector) RecordReconciliationWarning() {
	c.reconciliationWarnings.Inc()
}

// RecordSignalingRelayed はシグナリングイベントの転送成功を記録する。
func (c *Collector) RecordSignalingRelayed(event string) {
	c.signalingRelayed.WithLabelValues(event).Inc()
}

// RecordSignalingDropped は宛先不在によるイベント破棄を記録する。
func (c *Collector) RecordSignalingDropped(event string) {
	c.signalingDropped.WithLabelValues(event).Inc()
}

// ConnectionOpened はシグナリング接続の開設を記録する。
func (c *Collector) ConnectionOpened() {
	c.activeConnections.Inc()
}

// ConnectionClosed はシグナリング接続のクローズを記録する。
func (c *Collector) ConnectionClosed() {
	c.activeConnections.Dec()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
