// Package middleware provides the HTTP middleware of the catalog API.
package middleware

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/inventory-catalog/internal/respond"
)

// Headers shared with the handlers.
const (
	RequestIDHeader = "X-Request-ID"
	CacheHeader     = "X-Cache"
)

// maxRequestIDLength bounds client-supplied request IDs.
const maxRequestIDLength = 128

type requestIDKey struct{}

// Middleware is a function that wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain creates a single middleware from multiple middlewares.
// The first middleware is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// recorder wraps http.ResponseWriter to capture what the handler sent.
type recorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func newRecorder(w http.ResponseWriter) *recorder {
	return &recorder{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader records the first status code only.
func (rec *recorder) WriteHeader(code int) {
	if rec.wroteHeader {
		return
	}
	rec.status = code
	rec.wroteHeader = true
	rec.ResponseWriter.WriteHeader(code)
}

// Write counts body bytes.
func (rec *recorder) Write(b []byte) (int, error) {
	if !rec.wroteHeader {
		rec.WriteHeader(http.StatusOK)
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

// Hijack lets the item event feed upgrade through the chain.
func (rec *recorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rec.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Flush implements http.Flusher.
func (rec *recorder) Flush() {
	if flusher, ok := rec.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rec *recorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// cacheResult returns the metrics and log value of the X-Cache header.
func (rec *recorder) cacheResult() string {
	v := rec.Header().Get(CacheHeader)
	if v == "" {
		return "none"
	}
	return strings.ToLower(v)
}

// Recovery turns a panic into a 500 with the standard error body. When the
// handler already sent a status, only the log entry is written.
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newRecorder(w)
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}

				panicsTotal.Inc()
				logger.Error("panic recovered",
					zap.Any("panic", recovered),
					zap.String("stack", string(debug.Stack())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					// Recovery runs outside RequestID, which sets the response header.
					zap.String("request_id", w.Header().Get(RequestIDHeader)),
					zap.Bool("headers_sent", rec.wroteHeader),
				)
				if rec.wroteHeader {
					return
				}
				if err := respond.Error(rec, http.StatusInternalServerError, respond.MsgInternalError, nil); err != nil {
					logger.Warn("failed to write panic response", zap.Error(err))
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

// RequestID tags each request with an ID. A client-supplied X-Request-ID is
// kept when it is short and made of URL-safe characters; otherwise a UUID is
// generated. The ID is echoed in the response and stored in the context.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if !validRequestID(requestID) {
				requestID = uuid.New().String()
			}

			w.Header().Set(RequestIDHeader, requestID)
			next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), requestID)))
		})
	}
}

// WithRequestID returns a copy of ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID stored by RequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}

// quietRoutes are logged at Debug level.
var quietRoutes = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// Logging logs one entry per request with its route, cache result and
// request ID. Probe routes log at Debug and server errors at Warn.
func Logging(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newRecorder(w)

			next.ServeHTTP(rec, r)

			route := routeLabel(r)
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.String("uri", r.URL.RequestURI()),
				zap.Int("status", rec.status),
				zap.Int("bytes", rec.bytes),
				zap.String("cache", rec.cacheResult()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
			}

			switch {
			case rec.status >= http.StatusInternalServerError:
				logger.Warn("http request", fields...)
			case quietRoutes[route]:
				logger.Debug("http request", fields...)
			default:
				logger.Info("http request", fields...)
			}
		})
	}
}

// BodyLimit caps request bodies at maxBytes. Reading past the limit fails
// with *http.MaxBytesError and is counted once per request.
func BodyLimit(maxBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = &limitedBody{
					ReadCloser: http.MaxBytesReader(w, r.Body, maxBytes),
					route:      routeLabel(r),
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

type limitedBody struct {
	io.ReadCloser
	route    string
	exceeded bool
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	var tooLarge *http.MaxBytesError
	if err != nil && !b.exceeded && errors.As(err, &tooLarge) {
		b.exceeded = true
		oversizedBodiesTotal.WithLabelValues(b.route).Inc()
	}
	return n, err
}

// Methods and headers the browser client may use.
const (
	corsMethods       = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders  = "Content-Type, " + RequestIDHeader
	corsExposeHeaders = RequestIDHeader + ", " + CacheHeader
)

// CORS allows the configured browser origins. An empty list or "*" allows
// every origin without credentials; a listed origin is echoed with
// credentials. OPTIONS preflights are answered with 204.
func CORS(allowedOrigins []string) Middleware {
	listed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		listed[origin] = true
	}
	anyOrigin := len(allowedOrigins) == 0 || listed["*"]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")

			switch {
			case origin == "":
			case anyOrigin:
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			case listed[origin]:
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
			}

			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			h.Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
