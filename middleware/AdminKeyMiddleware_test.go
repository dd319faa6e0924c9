package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"git.sr.ht/~aondrejcak/payrecon/kernel"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newEngine(keyHash string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TracerMiddleware(kernel.TestDiagnostic()))
	r.Use(AdminKeyMiddleware(keyHash))
	r.POST("/echo", func(c *gin.Context) {
		body, _ := c.GetRawData()
		c.String(http.StatusOK, string(body))
	})
	return r
}

func TestAdminKeyMiddleware(t *testing.T) {
	hash := kernel.Sha512("key-1")

	tests := []struct {
		name    string
		keyHash string
		header  string
		want    int
	}{
		{"valid key", hash, "key-1", http.StatusOK},
		{"uppercase stored digest", strings.ToUpper(hash), "key-1", http.StatusOK},
		{"missing header", hash, "", http.StatusUnauthorized},
		{"wrong key", hash, "key-2", http.StatusUnauthorized},
		{"no key configured", "", "key-1", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("ping"))
			if tt.header != "" {
				req.Header.Set("X-Api-Key", tt.header)
			}
			w := httptest.NewRecorder()
			newEngine(tt.keyHash).ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "ping", w.Body.String(), "body must survive the tracer")
			} else {
				assert.Contains(t, w.Body.String(), "unauthorized")
				assert.Contains(t, w.Body.String(), "traceId")
			}
		})
	}
}
