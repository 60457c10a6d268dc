package http

import (
	"bytes"
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/dropinmorocco/booking-core/internal/idempotency"
	"github.com/dropinmorocco/booking-core/internal/observability"
	"github.com/dropinmorocco/booking-core/internal/rateLimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

const IdempotencyHeader = "Idempotency-Key"

type loggerKey struct{}

var discard = observability.NewDiscardLogger()

// LoggerFrom returns the request scoped logger installed by LoggerMiddleware.
func LoggerFrom(ctx context.Context) observability.Logger {
	if l, ok := ctx.Value(loggerKey{}).(observability.Logger); ok {
		return l
	}
	return discard
}

func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			entry := logger.WithFields(map[string]interface{}{
				"request_id": reqID,
				"method":     r.Method,
				"path":       r.URL.Path,
			})
			ctx := context.WithValue(r.Context(), loggerKey{}, entry)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))
			entry.WithFields(map[string]interface{}{
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
			}).Debug("request served")
		})
	}
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.RequestsTotal.WithLabelValues(route, strconv.Itoa(status), r.Method).Inc()
	})
}

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		tracer := otel.Tracer("http")
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Limiter is satisfied by rateLimit.RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string, rate int, period time.Duration) (rateLimit.Decision, error)
}

// Limits are requests per minute. PerUser is counted per user and route, PerIP across all routes.
// Zero disables the check.
type Limits struct {
	PerUser int
	PerIP   int
}

type limitCheck struct {
	key  string
	rate int
}

// RateLimitMiddleware is a no-op when rl is nil. It must run inside a chi route group so the
// route pattern is known.
func RateLimitMiddleware(rl Limiter, limits Limits) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			route := r.URL.Path
			if rctx := chi.RouteContext(ctx); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			var checks []limitCheck
			if user := r.Header.Get(UserHeader); user != "" && limits.PerUser > 0 {
				checks = append(checks, limitCheck{key: "user:" + user + ":" + r.Method + " " + route, rate: limits.PerUser})
			}
			if limits.PerIP > 0 {
				checks = append(checks, limitCheck{key: "ip:" + clientIP(r), rate: limits.PerIP})
			}
			for _, c := range checks {
				d, err := rl.Allow(ctx, c.key, c.rate, time.Minute)
				if err != nil {
					LoggerFrom(ctx).WithError(err).Warn("rate limiter unavailable, request let through")
					continue
				}
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
				if !d.Allowed {
					observability.RateLimitExceeded.Inc()
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
					writeJSON(w, http.StatusTooManyRequests, errorBody{
						Reason:  domain.ReasonConflictRetry,
						Message: "Too many requests, slow down",
					})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rec *recorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *recorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	rec.body.Write(b)
	return rec.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response of a POST that repeats its key. Keys are
// scoped to the caller and route. With required set a POST without a key is rejected.
// Server errors are not stored so the client may retry them.
func IdempotencyMiddleware(idemp *idempotency.Idempotency, required bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || idemp == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get(IdempotencyHeader)
			if key == "" && !required {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) < 16 {
				writeError(w, r, errors.Wrapf(domain.ErrInvalidInput, "%s must be at least 16 characters", IdempotencyHeader))
				return
			}

			ctx := r.Context()
			scoped := r.Header.Get(UserHeader) + ":" + r.Method + ":" + r.URL.Path + ":" + key
			stored, err := idemp.Begin(ctx, scoped)
			switch {
			case errors.Is(err, idempotency.ErrInFlight):
				writeJSON(w, http.StatusConflict, errorBody{
					Reason:  domain.ReasonConflictRetry,
					Message: "A request with this idempotency key is still in progress",
				})
				return
			case err != nil:
				writeError(w, r, err)
				return
			case stored != nil:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(stored.Status)
				w.Write(stored.Result)
				return
			}

			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			logger := LoggerFrom(ctx).WithField("idempotency_key", key)
			bg := context.WithoutCancel(ctx)
			if rec.status >= http.StatusInternalServerError || rec.status == 0 {
				if err := idemp.Abort(bg, scoped); err != nil {
					logger.WithError(err).Warn("release idempotency key")
				}
				return
			}
			if err := idemp.Set(bg, scoped, idempotency.Response{Status: rec.status, Result: rec.body.Bytes()}); err != nil {
				logger.WithError(err).Warn("store idempotent response")
			}
		})
	}
}
