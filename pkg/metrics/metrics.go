// Package metrics はPrometheus形式のメトリクス収集と公開を提供する。
//
// サービスごとに独立したレジストリを持つため、同一プロセス内で
// 複数のサーバーを生成しても登録が衝突しない。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// namespace はメトリクス名の接頭辞。
const namespace = "rentit"

// Registry はサービス単位のメトリクスレジストリ。
type Registry struct {
	// reg はPrometheusのレジストリ。
	reg *prometheus.Registry
	// service はサブシステム名として使うサービス名。
	service string
	// requests はHTTPリクエスト数。
	requests *prometheus.CounterVec
	// latency はHTTPリクエストの処理時間（ミリ秒）。
	latency *prometheus.HistogramVec
}

// New はサービス用のメトリクスレジストリを生成する。
// HTTPリクエスト数・処理時間とGoランタイムのメトリクスを登録する。
func New(service string) *Registry {
	reg := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"method", "route"})

	reg.MustRegister(
		requests,
		latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{
		reg:      reg,
		service:  service,
		requests: requests,
		latency:  latency,
	}
}

// NewCounterVec はサービス名を接頭辞に持つカウンタを登録して返す。
func (r *Registry) NewCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: r.service,
		Name:      name,
		Help:      help,
	}, labels)
	r.reg.MustRegister(c)
	return c
}

// NewCounter はラベルを持たないカウンタを登録して返す。
func (r *Registry) NewCounter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: r.service,
		Name:      name,
		Help:      help,
	})
	r.reg.MustRegister(c)
	return c
}

// Gatherer は登録済みメトリクスの収集元を返す。
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler はメトリクスを公開するHTTPハンドラを返す。
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Middleware はリクエスト数と処理時間を記録するGinミドルウェアを返す。
// ルートはgin上の登録パス（例: /deleteproductfromcart/:cartId）で集計する。
func (r *Registry) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := float64(time.Since(start).Microseconds()) / 1000
		r.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		r.latency.WithLabelValues(c.Request.Method, route).Observe(elapsed)
	}
}
