package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ctxKeyAdmin holds the authenticated admin principal.
const ctxKeyAdmin = "admin.principal"

// AdminAuth guards the admin API with a static bearer token.
//
// Requests must send "Authorization: Bearer <token>". An empty configured
// token locks the API entirely (403) so a misconfigured deployment never
// exposes reminders unauthenticated.
func AdminAuth(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		if len(want) == 0 {
			abortAuth(c, http.StatusForbidden, "forbidden", "admin API disabled")
			return
		}
		h := c.GetHeader("Authorization")
		got, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
			c.Header("WWW-Authenticate", `Bearer realm="admin"`)
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		c.Set(ctxKeyAdmin, "admin")
		c.Next()
	}
}

func abortAuth(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
