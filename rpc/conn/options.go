package conn

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "github.com/ValentinKolb/rconn/rpc/conn"

// KeyFunc maps the type of a request frame to the correlation key of its response
type KeyFunc func(requestType int32) int32

// DefaultResponseKey expects the response type to follow the request type (PING=1 -> PONG=2)
func DefaultResponseKey(requestType int32) int32 {
	return requestType + 1
}

// options holds the optional settings of a Connection
type options struct {
	responseKey KeyFunc
	tracer      trace.Tracer
}

// Option configures a Connection
type Option func(*options)

// WithResponseKey sets how the correlation key is derived from the request type
func WithResponseKey(fn KeyFunc) Option {
	return func(o *options) {
		o.responseKey = fn
	}
}

// WithTracer sets the tracer used by Call. Defaults to the global tracer provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

func defaultOptions() options {
	return options{
		responseKey: DefaultResponseKey,
		tracer:      otel.Tracer(defaultTracerName),
	}
}
