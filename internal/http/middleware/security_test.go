package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		expose string
		want   string
	}{
		{"adds expose header", "", "X-Request-ID"},
		{"appends to existing", "Foo", "Foo, X-Request-ID"},
		{"no duplicate", "X-Request-ID, Foo", "X-Request-ID, Foo"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(func(c *gin.Context) {
				c.Header("X-Request-ID", "rid-1")
				if tc.expose != "" {
					c.Header("Access-Control-Expose-Headers", tc.expose)
				}
				c.Next()
			})
			r.Use(SecurityHeaders())
			r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

			h := w.Header()
			if h.Get("X-Content-Type-Options") != "nosniff" ||
				h.Get("X-Frame-Options") != "DENY" ||
				h.Get("Referrer-Policy") != "no-referrer" ||
				h.Get("Cache-Control") != "no-store" {
				t.Fatalf("baseline headers missing: %#v", h)
			}
			if got := h.Get("Access-Control-Expose-Headers"); got != tc.want {
				t.Fatalf("expose=%q want %q", got, tc.want)
			}
		})
	}
}

func TestSecurityHeaders_NoRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if got := w.Header().Get("Access-Control-Expose-Headers"); got != "" {
		t.Fatalf("unexpected expose header %q", got)
	}
}
