package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/rentit/pkg/logging"
	"github.com/nao1215/rentit/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestServerWithBackend はモックバックエンドを転送先に持つテスト用Gatewayサーバーを生成する。
// 全ての転送先が同じバックエンドを指す。
func newTestServerWithBackend(t *testing.T, backendHandler http.HandlerFunc) *Server {
	t.Helper()

	backend := httptest.NewServer(backendHandler)
	t.Cleanup(backend.Close)

	table := mustRouteTable(t, DefaultRules())
	upstreams := make(map[string]string)
	for _, target := range table.Targets() {
		upstreams[target] = backend.URL
	}

	s, err := NewServer(Config{Port: "0", AllowedOrigins: []string{"http://localhost:3000"}}, table, upstreams, logging.Nop())
	if err != nil {
		t.Fatalf("サーバーの生成に失敗: %v", err)
	}
	return s
}

// doRequest はテスト用のHTTPリクエストを実行し、レスポンスを返すヘルパー関数。
func doRequest(s *Server, method, path string, body io.Reader, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// recordedRequest は転送先が受け取ったリクエストの記録。
type recordedRequest struct {
	method      string
	path        string
	escapedPath string
	query       string
	header      http.Header
	body        string
}

// requestRecorder はモックバックエンドが受け取ったリクエストを保持する。
type requestRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (r *requestRecorder) record(req *http.Request) {
	b, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, recordedRequest{
		method:      req.Method,
		path:        req.URL.Path,
		escapedPath: req.URL.EscapedPath(),
		query:       req.URL.RawQuery,
		header:      req.Header.Clone(),
		body:        string(b),
	})
}

func (r *requestRecorder) last() recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.requests) == 0 {
		return recordedRequest{header: http.Header{}}
	}
	return r.requests[len(r.requests)-1]
}

func (r *requestRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	t.Run("転送先のURLが不足している場合はエラー", func(t *testing.T) {
		t.Parallel()
		table := mustRouteTable(t, DefaultRules())
		_, err := NewServer(Config{Port: "0"}, table, map[string]string{TargetAuth: "http://localhost:1"}, logging.Nop())
		if err == nil {
			t.Fatal("エラーが返されませんでした")
		}
	})
}

func TestServer_Forward(t *testing.T) {
	t.Parallel()

	t.Run("パス・クエリ・ヘッダー・本文をそのまま転送する", func(t *testing.T) {
		t.Parallel()

		rec := &requestRecorder{}
		s := newTestServerWithBackend(t, func(w http.ResponseWriter, r *http.Request) {
			rec.record(r)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Upstream", "customer")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"success":true}`))
		})

		header := http.Header{}
		header.Set("Authorization", "Bearer token-abc")
		header.Set("Content-Type", "application/json")
		header.Set(middleware.HeaderRequestID, "req-gw-1")
		w := doRequest(s, http.MethodPost, "/order/place?cartId=1&startDate=2026-02-01", strings.NewReader(`{"x":1}`), header)

		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201", w.Code)
		}
		if w.Body.String() != `{"success":true}` {
			t.Errorf("body = %s", w.Body.String())
		}
		if w.Header().Get("X-Upstream") != "customer" {
			t.Errorf("X-Upstream = %q", w.Header().Get("X-Upstream"))
		}
		if w.Header().Get(middleware.HeaderRequestID) != "req-gw-1" {
			t.Errorf("X-Request-ID = %q, want req-gw-1", w.Header().Get(middleware.HeaderRequestID))
		}
		got := rec.last()
		if got.method != http.MethodPost || got.path != "/order/place" || got.query != "cartId=1&startDate=2026-02-01" {
			t.Errorf("method = %s, path = %s, query = %s", got.method, got.path, got.query)
		}
		if got.header.Get("Authorization") != "Bearer token-abc" {
			t.Errorf("Authorization = %q", got.header.Get("Authorization"))
		}
		if got.header.Get(middleware.HeaderRequestID) != "req-gw-1" {
			t.Errorf("転送先の X-Request-ID = %q, want req-gw-1", got.header.Get(middleware.HeaderRequestID))
		}
		if got.body != `{"x":1}` {
			t.Errorf("転送先の本文 = %q", got.body)
		}
	})

	t.Run("エスケープされたパスをデコードせずに転送する", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name        string
			target      string
			escapedPath string
			query       string
		}{
			{name: "スラッシュ", target: "/order/a%2Fb", escapedPath: "/order/a%2Fb"},
			{name: "疑問符", target: "/order/a%3Fb?x=1", escapedPath: "/order/a%3Fb", query: "x=1"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				rec := &requestRecorder{}
				s := newTestServerWithBackend(t, func(w http.ResponseWriter, r *http.Request) {
					rec.record(r)
					w.WriteHeader(http.StatusOK)
				})

				w := doRequest(s, http.MethodGet, tt.target, nil, nil)
				if w.Code != http.StatusOK {
					t.Fatalf("status = %d, want 200", w.Code)
				}
				got := rec.last()
				if got.escapedPath != tt.escapedPath || got.query != tt.query {
					t.Errorf("転送先のパス = %s, クエリ = %q, want %s, %q", got.escapedPath, got.query, tt.escapedPath, tt.query)
				}
			})
		}
	})

	t.Run("リクエストIDが無い場合は生成して転送する", func(t *testing.T) {
		t.Parallel()

		rec := &requestRecorder{}
		s := newTestServerWithBackend(t, func(w http.ResponseWriter, r *http.Request) {
			rec.record(r)
			w.WriteHeader(http.StatusOK)
		})

		w := doRequest(s, http.MethodGet, "/getallproducts", nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		gotRequestID := rec.last().header.Get(middleware.HeaderRequestID)
		if gotRequestID == "" || gotRequestID != w.Header().Get(middleware.HeaderRequestID) {
			t.Errorf("転送先の X-Request-ID = %q, レスポンス = %q", gotRequestID, w.Header().Get(middleware.HeaderRequestID))
		}
	})

	t.Run("転送先のエラーステータスをそのまま返す", func(t *testing.T) {
		t.Parallel()

		s := newTestServerWithBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		w := doRequest(s, http.MethodGet, "/getallcartproducts", nil, nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
		if w.Body.Len() != 0 {
			t.Errorf("body = %q, want empty", w.Body.String())
		}
	})

	t.Run("一致する規則が無い場合は転送せずに404", func(t *testing.T) {
		t.Parallel()

		rec := &requestRecorder{}
		s := newTestServerWithBackend(t, func(w http.ResponseWriter, r *http.Request) {
			rec.record(r)
			w.WriteHeader(http.StatusOK)
		})

		w := doRequest(s, http.MethodGet, "/no/such/route", nil, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
		if rec.count() != 0 {
			t.Error("転送先が呼び出されました")
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["error"] == "" {
			t.Errorf("body = %s", w.Body.String())
		}
	})

	t.Run("転送先に接続できない場合は502", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.NotFoundHandler())
		url := backend.URL
		backend.Close()

		table := mustRouteTable(t, []Rule{{Pattern: "/order/**", Target: TargetCustomer}})
		s, err := NewServer(Config{Port: "0"}, table, map[string]string{TargetCustomer: url}, logging.Nop())
		if err != nil {
			t.Fatalf("サーバーの生成に失敗: %v", err)
		}

		w := doRequest(s, http.MethodGet, "/order/mine", nil, nil)
		if w.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", w.Code)
		}
	})
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	t.Run("Gateway自身のヘルスチェック", func(t *testing.T) {
		t.Parallel()
		s := newTestServerWithBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		w := doRequest(s, http.MethodGet, "/health", nil, nil)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("全ての転送先が正常なら200", func(t *testing.T) {
		t.Parallel()
		s := newTestServerWithBackend(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/health" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})

		w := doRequest(s, http.MethodGet, "/health/upstreams", nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200, body = %s", w.Code, w.Body.String())
		}
		var body struct {
			Upstreams []upstreamStatus `json:"upstreams"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスの解析に失敗: %v", err)
		}
		if len(body.Upstreams) != 5 {
			t.Errorf("len(upstreams) = %d, want 5", len(body.Upstreams))
		}
	})

	t.Run("応答しない転送先があれば503", func(t *testing.T) {
		t.Parallel()
		s := newTestServerWithBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		w := doRequest(s, http.MethodGet, "/health/upstreams", nil, nil)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
		if !strings.Contains(w.Body.String(), `"unavailable"`) {
			t.Errorf("body = %s", w.Body.String())
		}
	})

	t.Run("メトリクスに転送数が含まれる", func(t *testing.T) {
		t.Parallel()
		s := newTestServerWithBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		_ = doRequest(s, http.MethodGet, "/getallproducts", nil, nil)

		w := doRequest(s, http.MethodGet, "/metrics", nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if !strings.Contains(w.Body.String(), `rentit_gateway_upstream_requests_total{status="200",target="customer"} 1`) {
			t.Errorf("転送数のメトリクスがありません")
		}
	})
}
