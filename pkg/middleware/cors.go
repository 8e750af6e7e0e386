package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// corsAllowHeaders はクライアントが送信できるリクエストヘッダー。
var corsAllowHeaders = strings.Join([]string{"Authorization", "Content-Type", HeaderRequestID}, ", ")

// corsAllowMethods はクロスオリジンで許可するメソッド。
var corsAllowMethods = strings.Join([]string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
}, ", ")

// CORS は許可したオリジンからのクロスオリジンリクエストにCORSヘッダーを付与するGinミドルウェアを返す。
// allowedOrigins に "*" を含めると全てのオリジンを許可する。その場合は資格情報付きの要求を許可しない。
// プリフライト（OPTIONS）はオリジンに関わらず204で終了する。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	anyOrigin := false
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			anyOrigin = true
			continue
		}
		origins[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			_, listed := origins[origin]
			switch {
			case listed:
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Vary", "Origin")
			case anyOrigin:
				c.Header("Access-Control-Allow-Origin", "*")
			}
			if listed || anyOrigin {
				c.Header("Access-Control-Allow-Methods", corsAllowMethods)
				c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
				c.Header("Access-Control-Expose-Headers", HeaderRequestID)
				c.Header("Access-Control-Max-Age", "86400")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
