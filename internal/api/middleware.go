package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/metrics"
)

type contextKey string

const requestIDKey contextKey = "request_id"

const maxRequestIDLen = 64

// RequestIDMiddleware propagates X-Request-ID (or mints one) and stores a request-scoped
// logger in the context for zerolog.Ctx.
func RequestIDMiddleware(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if !validRequestID(requestID) {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := context.WithValue(r.Context(), requestIDKey, requestID)
			ctx = base.With().Str("request_id", requestID).Logger().WithContext(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Adapters forward their own IDs; anything unprintable or oversized is replaced.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// LoggingMiddleware logs each request and counts it by route pattern.
func LoggingMiddleware(m *metrics.BookingMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			m.ObserveHTTP(r.Method, route, rec.status)

			logger := zerolog.Ctx(r.Context())
			evt := logger.Info()
			switch {
			case rec.status >= http.StatusInternalServerError:
				evt = logger.Warn()
			case route == "/health/live" || route == "/health/ready" || route == "/metrics":
				evt = logger.Debug()
			}
			evt.Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", route).
				Int("status", rec.status).
				Int("bytes", rec.bytes).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

// RecoverMiddleware turns a handler panic into a 500 without taking the process down.
// Once the handler has started its response the 500 cannot be sent, so only the log remains.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec, ok := w.(*statusRecorder)
		if !ok {
			rec = &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		}
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			zerolog.Ctx(r.Context()).Error().
				Interface("panic", v).
				Str("path", r.URL.Path).
				Bool("response_started", rec.wroteHeader).
				Msg("handler panicked")
			if !rec.wroteHeader {
				writeError(rec, http.StatusInternalServerError, "internal_error", "unexpected error")
			}
		}()
		next.ServeHTTP(rec, r)
	})
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}
