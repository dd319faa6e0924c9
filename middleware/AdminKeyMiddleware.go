package middleware

import (
	"git.sr.ht/~aondrejcak/payrecon/kernel"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// AdminKeyMiddleware admits requests whose X-Api-Key hashes to keyHash. With
// no key configured every request is refused.
func AdminKeyMiddleware(keyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())

		if keyHash == "" {
			kernel.SpanGinErrf(span, c, 401, "unauthorized: admin key not configured")
			return
		}

		authHeader := c.GetHeader("X-Api-Key")
		if authHeader == "" {
			kernel.SpanGinErrf(span, c, 401, "unauthorized: no auth header")
			return
		}

		if !kernel.MatchesSha512(authHeader, keyHash) {
			kernel.SpanGinErrf(span, c, 401, "unauthorized: invalid key")
			return
		}

		c.Next()
	}
}
