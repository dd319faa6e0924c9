package kernel

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanErr marks span as failed with err and hands err back. The span is left
// open; callers end their own spans.
func SpanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func SpanErrf(span trace.Span, format string, args ...interface{}) error {
	return SpanErr(span, fmt.Errorf(format, args...))
}

// SpanHttpErr records the upstream response body on span and returns err.
func SpanHttpErr(span trace.Span, rsp *http.Response, err error) error {
	body, ioErr := io.ReadAll(io.LimitReader(rsp.Body, 4096))
	if ioErr != nil {
		return SpanErrf(span, "failed to read response body: %v", ioErr)
	}
	span.RecordError(fmt.Errorf("http request returned %d: %s", rsp.StatusCode, string(body)))
	span.SetStatus(codes.Error, err.Error())
	return err
}

func SpanGinErr(span trace.Span, c *gin.Context, status int, err error) {
	SpanErr(span, err)
	c.AbortWithStatusJSON(status, &gin.H{
		"error":   err.Error(),
		"traceId": span.SpanContext().TraceID().String(),
		"spanId":  span.SpanContext().SpanID().String(),
	})
}

func SpanGinErrf(span trace.Span, c *gin.Context, status int, format string, args ...interface{}) {
	SpanGinErr(span, c, status, fmt.Errorf(format, args...))
}
