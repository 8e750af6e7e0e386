package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/rentit/pkg/httpclient"
	"github.com/nao1215/rentit/pkg/httpserver"
	"github.com/nao1215/rentit/pkg/metrics"
	"github.com/nao1215/rentit/pkg/middleware"
)

// serviceName はログとメトリクスに使うサービス名。
const serviceName = "gateway"

// upstreamHealthTimeout は転送先のヘルスチェック1回あたりのタイムアウト。
const upstreamHealthTimeout = 3 * time.Second

// hopHeaders は転送先のレスポンスからクライアントへ返さないヘッダー。
var hopHeaders = map[string]struct{}{
	"Connection":        {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},
	"Upgrade":           {},
	"Content-Length":    {},
	// CORSはGateway自身が付与する
	"Access-Control-Allow-Origin":      {},
	"Access-Control-Allow-Credentials": {},
	"Access-Control-Allow-Headers":     {},
	"Access-Control-Allow-Methods":     {},
	"Access-Control-Expose-Headers":    {},
	"Vary":                             {},
	"X-Request-Id":                     {},
}

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// routes はパスと転送先の対応表。
	routes *RouteTable
	// upstreams は転送先サービス名ごとのHTTPクライアント。
	upstreams map[string]*httpclient.Client
	// metrics はサービスのメトリクス。
	metrics *metrics.Registry
	// forwarded は転送先・ステータス別の転送数。
	forwarded *prometheus.CounterVec
	// logger はサービスのロガー。
	logger zerolog.Logger
}

// NewServer は新しいGatewayサーバーを生成する。
// upstreamsにはルートテーブルが参照する全ての転送先のベースURLが必要。
func NewServer(cfg Config, routes *RouteTable, upstreams map[string]string, logger zerolog.Logger) (*Server, error) {
	clients := make(map[string]*httpclient.Client, len(upstreams))
	for _, target := range routes.Targets() {
		url, ok := upstreams[target]
		if !ok || url == "" {
			return nil, fmt.Errorf("転送先 %s のURLが設定されていません", target)
		}
		clients[target] = httpclient.New(url, cfg.UpstreamTimeout)
	}

	reg := metrics.New(serviceName)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(reg.Middleware())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	s := &Server{
		router:    router,
		port:      cfg.Port,
		routes:    routes,
		upstreams: clients,
		metrics:   reg,
		forwarded: reg.NewCounterVec("upstream_requests_total", "Total number of requests forwarded to upstream services.", "target", "status"),
		logger:    logger,
	}
	s.setupRoutes()
	return s, nil
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxが終了するまでブロックする。
func (s *Server) Run(ctx context.Context) error {
	return httpserver.Serve(ctx, fmt.Sprintf(":%s", s.port), s.router, s.logger)
}

// setupRoutes はGateway自身のエンドポイントと転送処理を設定する。
func (s *Server) setupRoutes() {
	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	})
	// 転送先のヘルスチェック
	s.router.GET("/health/upstreams", s.handleUpstreamHealth())
	// メトリクス
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// それ以外は全てルートテーブルに従って転送する
	s.router.NoRoute(s.handleForward())
}

// handleForward はルートテーブルで転送先を決めてリクエストを中継するハンドラを返す。
// 一致する規則が無い場合は404、転送先と通信できない場合は502を返す。
func (s *Server) handleForward() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		rule, ok := s.routes.Match(path)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "ルートが見つかりません"})
			return
		}
		client := s.upstreams[rule.Target]

		header := c.Request.Header.Clone()
		header.Set(middleware.HeaderRequestID, middleware.GetRequestID(c))

		// 照合はデコード済みのパス、転送はエスケープされたままのパスで行う
		pathAndQuery := c.Request.URL.EscapedPath()
		if c.Request.URL.RawQuery != "" {
			pathAndQuery += "?" + c.Request.URL.RawQuery
		}

		resp, err := client.Forward(c.Request.Context(), c.Request.Method, pathAndQuery, header, c.Request.Body)
		if err != nil {
			s.forwarded.WithLabelValues(rule.Target, "error").Inc()
			s.logger.Error().Err(err).
				Str("target", rule.Target).
				Str("path", path).
				Str("request_id", middleware.GetRequestID(c)).
				Msg("転送先との通信に失敗しました")
			c.JSON(http.StatusBadGateway, gin.H{"error": "内部サービスとの通信に失敗しました"})
			return
		}
		defer resp.Body.Close()

		s.forwarded.WithLabelValues(rule.Target, strconv.Itoa(resp.StatusCode)).Inc()
		for k, vs := range resp.Header {
			if _, skip := hopHeaders[http.CanonicalHeaderKey(k)]; skip {
				continue
			}
			for _, v := range vs {
				c.Writer.Header().Add(k, v)
			}
		}
		c.Status(resp.StatusCode)
		if _, err := io.Copy(c.Writer, resp.Body); err != nil {
			s.logger.Warn().Err(err).Str("target", rule.Target).Msg("レスポンスの中継が途中で失敗しました")
		}
	}
}

// upstreamStatus は転送先1件のヘルスチェック結果。
type upstreamStatus struct {
	// Target は転送先サービス名。
	Target string `json:"target"`
	// URL は転送先のベースURL。
	URL string `json:"url"`
	// Status は ok または unavailable。
	Status string `json:"status"`
	// Error は失敗理由。
	Error string `json:"error,omitempty"`
}

// handleUpstreamHealth は全ての転送先の /health を並行に確認するハンドラを返す。
// 1つでも応答しない転送先があれば503を返す。
func (s *Server) handleUpstreamHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			mu       sync.Mutex
			statuses []upstreamStatus
		)
		g, ctx := errgroup.WithContext(c.Request.Context())
		for target, client := range s.upstreams {
			g.Go(func() error {
				checkCtx, cancel := context.WithTimeout(ctx, upstreamHealthTimeout)
				defer cancel()

				st := upstreamStatus{Target: target, URL: client.BaseURL(), Status: "ok"}
				if err := client.Health(checkCtx); err != nil {
					st.Status = "unavailable"
					st.Error = err.Error()
				}
				mu.Lock()
				statuses = append(statuses, st)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		sort.Slice(statuses, func(i, j int) bool { return statuses[i].Target < statuses[j].Target })
		code := http.StatusOK
		for _, st := range statuses {
			if st.Status != "ok" {
				code = http.StatusServiceUnavailable
				break
			}
		}
		c.JSON(code, gin.H{"service": serviceName, "upstreams": statuses})
	}
}
