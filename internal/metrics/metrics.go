// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーとミドルウェアから利用する。
type MetricsCollector interface {
	RecordRegistration(method string)
	RecordLogin(method string)
	RecordLoginFailure(code string)
	RecordCompanyProvisioned()
	RecordProvisioningFailure(code string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations  *prometheus.CounterVec
	logins         *prometheus.CounterVec
	loginFailures  *prometheus.CounterVec
	provisioned    prometheus.Counter
	provisionFail  *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "negocio_registrations_total",
			Help: "アカウント登録成功の合計数（認証方式別）",
		}, []string{"method"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "negocio_logins_total",
			Help: "セッション交換成功の合計数（認証方式別）",
		}, []string{"method"}),
		loginFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "negocio_login_failures_total",
			Help: "セッション交換失敗の合計数（エラーコード別）",
		}, []string{"code"}),
		provisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "negocio_companies_provisioned_total",
			Help: "企業プロビジョニング成功の合計数",
		}),
		provisionFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "negocio_provisioning_failures_total",
			Help: "企業プロビジョニング失敗の合計数（エラーコード別）",
		}, []string{"code"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "negocio_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "negocio_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.registrations,
		c.logins,
		c.loginFailures,
		c.provisioned,
		c.provisionFail,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordRegistration は登録成功を記録する。methodは"password"または"federated"。
func (c *Collector) RecordRegistration(method string) {
	c.registrations.WithLabelValues(method).Inc()
}

// RecordLogin はセッション交換成功を記録する。
func (c *Collector) RecordLogin(method string) {
	c.logins.WithLabelValues(method).Inc()
}

// RecordLoginFailure はセッション交換失敗を記録する。
func (c *Collector) RecordLoginFailure(code string) {
	c.loginFailures.WithLabelValues(code).Inc()
}

// RecordCompanyProvisioned は企業プロビジョニング成功を記録する。
func (c *Collector) RecordCompanyProvisioned() {
	c.provisioned.Inc()
}

// RecordProvisioningFailure は企業プロビジョニング失敗を記録する。
func (c *Collector) RecordProvisioningFailure(code string) {
	c.provisionFail.WithLabelValues(code).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
