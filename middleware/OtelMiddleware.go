package middleware

import (
	"bytes"
	"io"

	"git.sr.ht/~aondrejcak/payrecon/kernel"
	"github.com/gin-gonic/gin"
	"go.nhat.io/otelsql/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const maxBodyAttr = 4096

type responseWriter struct {
	gin.ResponseWriter
	span trace.Span
}

// TracerMiddleware opens a span per request and counts requests and
// failed responses.
func TracerMiddleware(diag *kernel.AppDiagnostic) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := diag.BeginTracing(c.Request.Context(), "http "+c.Request.Method+" "+c.FullPath())
		defer span.End()

		span.SetAttributes(
			attribute.KeyValue("http.method", c.Request.Method),
			attribute.KeyValue("http.url", c.Request.URL.String()),
			attribute.KeyValue("http.host", c.Request.Host),
		)

		if c.Request.Body != nil {
			bodyBytes, _ := c.GetRawData()
			if len(bodyBytes) > 0 {
				span.SetAttributes(attribute.KeyValue("http.request_body", truncate(bodyBytes)))
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		methodAttr := metric.WithAttributes(attribute.KeyValue("http.method", c.Request.Method))
		diag.RequestCounter.Add(ctx, 1, methodAttr)

		c.Request = c.Request.WithContext(ctx)
		c.Writer = &responseWriter{ResponseWriter: c.Writer, span: span}

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.KeyValue("http.status_code", status))
		if status >= 400 {
			diag.ErrorCounter.Add(ctx, 1, methodAttr, metric.WithAttributes(attribute.KeyValue("http.status_code", status)))
		}
	}
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.span.SetAttributes(attribute.KeyValue("http.response_body", truncate(b)))
	return w.ResponseWriter.Write(b)
}

func truncate(b []byte) string {
	if len(b) > maxBodyAttr {
		b = b[:maxBodyAttr]
	}
	return string(b)
}
