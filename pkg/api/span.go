package api

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
	trace "go.opentelemetry.io/otel/trace"
)

type spanConfig struct {
	httpReturnCode int
	setHTTPCode    bool
}

// SpanOption configures SetDurationSpan.
type SpanOption func(*spanConfig)

// WithHTTPReturnCode also records the HTTP status code on the span.
func WithHTTPReturnCode(code int) SpanOption {
	return func(c *spanConfig) {
		c.httpReturnCode = code
		c.setHTTPCode = true
	}
}

// SetDurationSpan records on the span the duration since startMicro, which is
// expected to be a UnixMicro timestamp taken when the handler started.
func SetDurationSpan(startMicro int64, span trace.Span, opts ...SpanOption) {
	cfg := &spanConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	duration := time.Now().UnixMicro() - startMicro
	span.SetAttributes(attribute.Int64("end.timestamp", time.Now().UnixMicro()))
	span.SetAttributes(attribute.Int64("duration", duration))
	if cfg.setHTTPCode {
		span.SetAttributes(attribute.Int("exit.code", cfg.httpReturnCode))
	}
}
