package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// TestMiddleware はHTTPメトリクスの記録を検証する。
func TestMiddleware(t *testing.T) {
	t.Parallel()

	reg := New("customer")
	router := gin.New()
	router.Use(reg.Middleware())
	router.DELETE("/deleteproductfromcart/:cartId", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	router.GET("/metrics", gin.WrapH(reg.Handler()))

	for _, id := range []string{"1", "2"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/deleteproductfromcart/"+id, nil))
	}

	got := testutil.ToFloat64(reg.requests.WithLabelValues(http.MethodDelete, "/deleteproductfromcart/:cartId", "204"))
	if got != 2 {
		t.Errorf("リクエスト数 = %v, want 2", got)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "rentit_customer_http_requests_total") {
		t.Errorf("公開メトリクスにリクエスト数が含まれない")
	}
}

// TestNewCounterVec は独立したレジストリで同名カウンタを登録できることを検証する。
func TestNewCounterVec(t *testing.T) {
	t.Parallel()

	a := New("customer").NewCounterVec("orders_placed_total", "Orders placed.")
	b := New("customer").NewCounterVec("orders_placed_total", "Orders placed.")

	a.WithLabelValues().Inc()
	if got := testutil.ToFloat64(a.WithLabelValues()); got != 1 {
		t.Errorf("a = %v, want 1", got)
	}
	if got := testutil.ToFloat64(b.WithLabelValues()); got != 0 {
		t.Errorf("b = %v, want 0", got)
	}
}
