package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nao1215/rentit/pkg/auth"
)

// contextKeyPrincipal はGinコンテキストにPrincipalを格納するためのキー。
const contextKeyPrincipal = "principal"

// bearerPrefix はAuthorizationヘッダーのスキーム。
const bearerPrefix = "Bearer "

// IdentityConfig は識別ミドルウェアの設定。
type IdentityConfig struct {
	// Tokens はトークンを検証するサービス。
	Tokens *auth.TokenService
	// PublicPaths は匿名アクセスを許可するパスのプレフィックス。
	PublicPaths []string
	// Logger は認証失敗を記録するロガー。
	Logger zerolog.Logger
}

// Identity はBearerトークンを検証し、利用者をリクエストに紐付けるGinミドルウェアを返す。
//
// OPTIONSリクエストと公開パスはトークンを解析せずに通す。
// トークンが無い、または検証に失敗した場合は本文なしで401を返し、後続のハンドラは実行しない。
// 成功した場合はPrincipalをリクエストのコンテキストとGinコンテキストの両方に設定する。
func Identity(cfg IdentityConfig) gin.HandlerFunc {
	public := make([]string, 0, len(cfg.PublicPaths))
	for _, p := range cfg.PublicPaths {
		if p = strings.TrimSpace(p); p != "" {
			public = append(public, p)
		}
	}

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		path := c.Request.URL.Path
		if isPublicPath(path, public) {
			c.Next()
			return
		}

		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			cfg.Logger.Debug().Str("path", path).Msg("Bearerトークンがありません")
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		principal, err := cfg.Tokens.Verify(tokenString)
		if err != nil {
			cfg.Logger.Info().Err(err).Str("path", path).Msg("トークンの検証に失敗しました")
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), principal))
		c.Set(contextKeyPrincipal, principal)
		c.Next()
	}
}

// RequireRole は利用者が指定ロールのいずれかを持つことを要求するGinミドルウェアを返す。
// Identity の後に適用する。ロールが一致しない場合は本文なしで403を返す。
func RequireRole(roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		if !principal.HasRole(roles...) {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}

// GetPrincipal はGinコンテキストから認証済みの利用者を取得する。
// Identity ミドルウェアが事前に適用されている必要がある。
func GetPrincipal(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(contextKeyPrincipal)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}

// bearerToken はAuthorizationヘッダーからトークン部分を取り出す。
func bearerToken(header string) (string, bool) {
	token, found := strings.CutPrefix(header, bearerPrefix)
	if !found {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// isPublicPath はパスが公開パスのプレフィックスに一致するかを返す。
func isPublicPath(path string, public []string) bool {
	for _, p := range public {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
