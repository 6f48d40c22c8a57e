package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger returns a middleware that logs HTTP requests. Server errors log at
// error level and client errors at warn level.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newStatusRecorder(w)

			fields := &accessFields{}
			r = r.WithContext(context.WithValue(r.Context(), accessFieldsKey{}, fields))
			next.ServeHTTP(wrapped, r)

			var event *zerolog.Event
			switch {
			case wrapped.statusCode >= 500:
				event = log.Error()
			case wrapped.statusCode >= 400:
				event = log.Warn()
			default:
				event = log.Info()
			}

			spanCtx := trace.SpanContextFromContext(r.Context())
			if spanCtx.IsValid() {
				event = event.
					Str("trace_id", spanCtx.TraceID().String()).
					Str("span_id", spanCtx.SpanID().String())
			}
			if op := fields.operatorOr(GetOperator(r.Context())); op != "" {
				event = event.Str("operator", op)
			}

			event.
				Str("request_id", GetRequestID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", routePattern(r)).
				Int("status", wrapped.statusCode).
				Int64("bytes", wrapped.written).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("request completed")
		})
	}
}

// accessFields collects values that inner middleware learns about a request,
// such as the authenticated operator, for the access log line.
type accessFields struct {
	operator string
}

type accessFieldsKey struct{}

func (f *accessFields) operatorOr(fallback string) string {
	if f.operator != "" {
		return f.operator
	}
	return fallback
}

func annotateOperator(ctx context.Context, operator string) {
	if f, ok := ctx.Value(accessFieldsKey{}).(*accessFields); ok {
		f.operator = operator
	}
}
