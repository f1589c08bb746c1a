package api

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/chainflow-labs/chainflow/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

type contextKey string

// Context keys set by the middleware chain.
const (
	TenantIDKey  contextKey = "tenantID"
	TraceIDKey   contextKey = "traceID"
	RequestIDKey contextKey = "requestID"
)

// Request and response headers.
const (
	TenantIDHeader  = "X-Tenant-ID"
	RequestIDHeader = "X-Request-ID"
	TraceIDHeader   = "X-Trace-ID"
)

var tracer = otel.Tracer("chainflow-api")

// TenantMiddleware requires X-Tenant-ID and stores it in the request context.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get(TenantIDHeader)
		if tenantID == "" {
			writeError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), TenantIDKey, tenantID)))
	})
}

// TracingMiddleware continues any W3C trace carried by the request and opens
// a server span. The span is renamed to the matched route once routing is
// done so cardinality stays bounded.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
				attribute.String("request.id", requestID),
			),
		)
		defer span.End()

		// The no-op provider yields an invalid trace ID; fall back to the
		// request ID so responses always carry something to correlate.
		traceID := requestID
		if sc := span.SpanContext(); sc.TraceID().IsValid() {
			traceID = sc.TraceID().String()
		}

		ctx = context.WithValue(ctx, RequestIDKey, requestID)
		ctx = context.WithValue(ctx, TraceIDKey, traceID)
		w.Header().Set(RequestIDHeader, requestID)
		w.Header().Set(TraceIDHeader, traceID)

		rw := wrap(w)
		next.ServeHTTP(rw, r.WithContext(ctx))

		if pattern := routePattern(r); pattern != "" {
			span.SetName(r.Method + " " + pattern)
			span.SetAttributes(attribute.String("http.route", pattern))
		}
		span.SetAttributes(attribute.Int("http.status_code", rw.statusCode))
		if tenantID := r.Header.Get(TenantIDHeader); tenantID != "" {
			span.SetAttributes(attribute.String("tenant.id", tenantID))
		}
		if rw.statusCode >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
		}
	})
}

// LoggingMiddleware writes one structured line per request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := wrap(w)
		next.ServeHTTP(rw, r)

		level := slog.LevelInfo
		if rw.statusCode >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		requestID, _ := r.Context().Value(RequestIDKey).(string)
		traceID, _ := r.Context().Value(TraceIDKey).(string)
		slog.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"bytes", rw.written,
			"duration_ms", time.Since(start).Milliseconds(),
			"tenant_id", r.Header.Get(TenantIDHeader),
			"request_id", requestID,
			"trace_id", traceID,
		)
	})
}

// MetricsMiddleware records request counts and latency by chi route pattern.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := wrap(w)
		next.ServeHTTP(rw, r)
		metrics.ObserveHTTP(r.Method, routePattern(r), rw.statusCode, time.Since(start))
	})
}

// CORS answers preflight requests and decorates responses for browser
// clients such as the tracking dashboard. An empty allow list accepts any
// origin.
func CORS(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case len(allowed) == 0 && origin == "":
				origin = "*"
			case len(allowed) > 0 && !slices.Contains(allowed, origin):
				if r.Method == http.MethodOptions {
					writeError(w, http.StatusForbidden, "origin not allowed")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Expose-Headers", RequestIDHeader+", "+TraceIDHeader)
			if origin != "*" {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, traceparent, "+
					TenantIDHeader+", "+RequestIDHeader+", "+TraceIDHeader)
				h.Set("Access-Control-Max-Age", strconv.Itoa(int((24 * time.Hour).Seconds())))
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RecoverMiddleware turns a handler panic into a 500 response.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				slog.Error("panic recovered", "error", fmt.Sprint(v), "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RateLimiter enforces a per-tenant request budget and must run after
// TenantMiddleware. Each process keeps a token bucket per tenant, and buckets
// left idle for idleTTL are swept. With a shared cache the budget is instead a
// one-second window counter in the cache, which replicas share.
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	shared domain.Cache

	mu        sync.Mutex
	buckets   map[string]*bucket
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	rateLimitKey   = "ratelimit"
	defaultIdleTTL = 10 * time.Minute
)

// NewRateLimiter allows rps requests per second per tenant with the given
// burst. rps <= 0 disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = max(1, int(rps))
	}
	idle := defaultIdleTTL
	if rps > 0 {
		// A bucket idle this long has refilled, so dropping it loses nothing.
		idle = max(idle, time.Duration(float64(burst)/rps*float64(time.Second)))
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*bucket),
		idleTTL: idle,
		now:     time.Now,
	}
}

// WithSharedCache counts requests in c so every replica using the same cache
// draws from one budget.
func (l *RateLimiter) WithSharedCache(c domain.Cache) *RateLimiter {
	l.shared = c
	return l
}

func (l *RateLimiter) limiter(tenantID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		for id, b := range l.buckets {
			if now.Sub(b.lastSeen) >= l.idleTTL {
				delete(l.buckets, id)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[tenantID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[tenantID] = b
	}
	b.lastSeen = now
	return b.limiter
}

func (l *RateLimiter) allow(ctx context.Context, tenantID string) bool {
	if l.shared != nil {
		n, err := l.shared.IncrementCounter(ctx, tenantID, rateLimitKey, time.Second)
		if err == nil {
			return n <= int64(max(l.burst, int(math.Ceil(float64(l.limit)))))
		}
		slog.Warn("shared rate limit unavailable, using local bucket", "tenant_id", tenantID, "error", err)
	}
	return l.limiter(tenantID).Allow()
}

// Middleware rejects requests over the tenant's budget with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil || l.limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := GetTenantID(r.Context())
		if !l.allow(r.Context(), tenantID) {
			metrics.RateLimited()
			slog.Warn("rate limit exceeded", "tenant_id", tenantID, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status and body size. Nested middleware share
// one recorder so the chain wraps the writer once.
type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	written     int
	wroteHeader bool
}

func wrap(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += n
	return n, err
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// GetTenantID extracts tenant ID from context.
func GetTenantID(ctx context.Context) string {
	v, _ := ctx.Value(TenantIDKey).(string)
	return v
}

// GetTraceID extracts trace ID from context.
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}
