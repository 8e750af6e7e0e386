package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nao1215/rentit/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSecret はテスト用のJWTシークレット。
const testSecret = "test-secret-key-for-unit-tests"

// newTestTokens はテスト用のTokenServiceを生成する。
func newTestTokens(t *testing.T, opts ...auth.Option) *auth.TokenService {
	t.Helper()

	tokens, err := auth.NewTokenService(auth.Config{Secret: testSecret}, opts...)
	if err != nil {
		t.Fatalf("TokenServiceの生成に失敗: %v", err)
	}
	return tokens
}

// newIdentityRouter はIdentityとRequireRoleを適用したテスト用ルーターを生成する。
// ハンドラはPrincipalをヘッダーに書き出す。
func newIdentityRouter(tokens *auth.TokenService) *gin.Engine {
	router := gin.New()
	router.Use(Identity(IdentityConfig{
		Tokens:      tokens,
		PublicPaths: []string{"/health", "/states"},
		Logger:      zerolog.Nop(),
	}))

	echo := func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if ok {
			ctxP, ctxOK := auth.PrincipalFrom(c.Request.Context())
			if !ctxOK || ctxP != p {
				c.Status(http.StatusInternalServerError)
				return
			}
			c.Header("X-Test-Role", p.Role.String())
		}
		c.Status(http.StatusOK)
	}

	router.GET("/health", echo)
	router.GET("/states/list", echo)
	router.GET("/getallcartproducts", echo)
	router.OPTIONS("/order/place", echo)
	router.POST("/order/place", RequireRole(auth.RoleCustomer), echo)
	return router
}

// TestIdentity は識別ミドルウェアの状態遷移を検証する。
func TestIdentity(t *testing.T) {
	t.Parallel()

	tokens := newTestTokens(t)
	customerToken, err := tokens.Issue(7, auth.RoleCustomer)
	if err != nil {
		t.Fatalf("トークンの発行に失敗: %v", err)
	}
	ownerToken, err := tokens.Issue(8, auth.RoleOwner)
	if err != nil {
		t.Fatalf("トークンの発行に失敗: %v", err)
	}
	expired := newTestTokens(t, auth.WithClock(func() time.Time {
		return time.Now().Add(-48 * time.Hour)
	}))
	expiredToken, err := expired.Issue(7, auth.RoleCustomer)
	if err != nil {
		t.Fatalf("トークンの発行に失敗: %v", err)
	}
	foreign, err := auth.NewTokenService(auth.Config{Secret: "another-secret"})
	if err != nil {
		t.Fatalf("TokenServiceの生成に失敗: %v", err)
	}
	foreignToken, err := foreign.Issue(7, auth.RoleCustomer)
	if err != nil {
		t.Fatalf("トークンの発行に失敗: %v", err)
	}

	tests := []struct {
		name       string
		method     string
		path       string
		authHeader string
		wantStatus int
		wantRole   string
	}{
		{
			name:       "OPTIONSはトークンなしで通過すること",
			method:     http.MethodOptions,
			path:       "/order/place",
			wantStatus: http.StatusOK,
		},
		{
			name:       "公開パスはトークンなしで通過すること",
			method:     http.MethodGet,
			path:       "/health",
			wantStatus: http.StatusOK,
		},
		{
			name:       "公開パスはプレフィックスで一致すること",
			method:     http.MethodGet,
			path:       "/states/list",
			wantStatus: http.StatusOK,
		},
		{
			name:       "Authorizationヘッダーが無い場合は401",
			method:     http.MethodGet,
			path:       "/getallcartproducts",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Bearer形式でない場合は401",
			method:     http.MethodGet,
			path:       "/getallcartproducts",
			authHeader: "Basic dXNlcjpwYXNz",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Bearerの後が空の場合は401",
			method:     http.MethodGet,
			path:       "/getallcartproducts",
			authHeader: "Bearer ",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "期限切れトークンは401",
			method:     http.MethodGet,
			path:       "/getallcartproducts",
			authHeader: "Bearer " + expiredToken,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "別の鍵で署名されたトークンは401",
			method:     http.MethodGet,
			path:       "/getallcartproducts",
			authHeader: "Bearer " + foreignToken,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "有効なトークンでPrincipalが設定されること",
			method:     http.MethodGet,
			path:       "/getallcartproducts",
			authHeader: "Bearer " + ownerToken,
			wantStatus: http.StatusOK,
			wantRole:   "OWNER",
		},
		{
			name:       "ロールが一致しない場合は403",
			method:     http.MethodPost,
			path:       "/order/place",
			authHeader: "Bearer " + ownerToken,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "ロールが一致する場合は通過すること",
			method:     http.MethodPost,
			path:       "/order/place",
			authHeader: "Bearer " + customerToken,
			wantStatus: http.StatusOK,
			wantRole:   "CUSTOMER",
		},
	}

	router := newIdentityRouter(tokens)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Errorf("ステータスコード = %d, want %d", w.Code, tc.wantStatus)
			}
			if got := w.Header().Get("X-Test-Role"); got != tc.wantRole {
				t.Errorf("ロール = %q, want %q", got, tc.wantRole)
			}
			if tc.wantStatus == http.StatusUnauthorized || tc.wantStatus == http.StatusForbidden {
				if w.Body.Len() != 0 {
					t.Errorf("拒否時の本文が空ではない: %q", w.Body.String())
				}
			}
		})
	}
}

// TestRequireRole_WithoutIdentity はIdentityを経由しない場合に401となることを検証する。
func TestRequireRole_WithoutIdentity(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.GET("/api/all", RequireRole(auth.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/all", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
