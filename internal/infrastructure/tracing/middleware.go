package tracing

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HTTPMiddleware opens a span per request. A trace id sent by the client
// is continued; the ids are echoed in the response headers.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := WithRemote(c.Request.Context(),
			TraceID(c.GetHeader(TraceHeader)),
			SpanID(c.GetHeader(SpanHeader)),
		)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		span, ctx := tracer.Start(ctx, c.Request.Method+" "+route)
		if route == "unmatched" {
			span.Annotate(zap.String("path", c.Request.URL.Path))
		}
		c.Request = c.Request.WithContext(ctx)

		c.Header(TraceHeader, string(span.TraceID))
		c.Header(SpanHeader, string(span.SpanID))

		c.Next()

		if len(c.Errors) > 0 {
			span.Annotate(zap.String("gin_error", c.Errors.Last().Error()))
		}
		tracer.Finish(span, c.Writer.Status())
	}
}
