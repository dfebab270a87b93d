/*
Package tracing gives every bridge request a span.

The trace id is taken from the X-Trace-ID header or generated, and both
ids are echoed on the response so a CLI user can find the matching bridge
log lines. Handlers annotate the span in the request context with the
window and error category; a background collector logs finished spans
(failed ones at warn, slow ones at info) and keeps the last few for
/stats. Nothing is exported elsewhere.

# Usage

	tracer := tracing.New(logger, 2*time.Second)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	// in a handler
	tracing.Annotate(c.Request.Context(), zap.String("window", "main"))
	tracing.Fail(c.Request.Context(), "timeout")
*/
package tracing
