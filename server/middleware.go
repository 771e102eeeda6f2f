package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"musinotes/cache"
	"musinotes/config"
	"musinotes/core/auth"
	"musinotes/logger"

	"github.com/google/uuid"
)

type ctxKeyRequestID struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID{}).(string)
	return id
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	if r.status == 0 {
		r.status = statusCode
	}
	r.ResponseWriter.WriteHeader(statusCode)
}

// requestLogger tags the request with an id and logs it once it completes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		ctx := context.WithValue(r.Context(), ctxKeyRequestID{}, requestID)
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rr, r.WithContext(ctx))

		if rr.status == 0 {
			rr.status = http.StatusOK
		}
		logger.Info("request complete",
			logger.String("requestID", requestID),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rr.status),
			logger.Int("bytes", rr.bytes),
			logger.Duration("took", time.Since(start)))
	})
}

// recoverer turns a panic into the generic 500 response.
func recoverer(ew errorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						logger.Any("panic", rec),
						logger.String("stack", string(debug.Stack())))
					ew.write(w, r, fmt.Errorf("panic: %v", rec))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware answers preflights and sets CORS headers for allowed origins.
func corsMiddleware(cfg config.CORSConfig) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	originAllowed := func(origin string) bool {
		if allowed[origin] {
			return true
		}
		return cfg.AllowLocalhost &&
			(strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:"))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")
			if !originAllowed(origin) {
				if r.Method == http.MethodOptions {
					writeJSON(w, http.StatusForbidden, newAPIError(http.StatusForbidden, "Not allowed by CORS"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			w.Header().Set("Access-Control-Expose-Headers",
				"Content-Disposition, Retry-After, RateLimit-Limit, RateLimit-Remaining, RateLimit-Reset, X-Request-ID")

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// securityHeaders sets the baseline browser hardening headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'self'")
		next.ServeHTTP(w, r)
	})
}

// limitBody caps request bodies.
func limitBody(max int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if max > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, max)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey identifies the caller for rate limiting.
func clientKey(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimit rejects callers over the limiter's window budget. Limiter errors
// are logged and the request proceeds.
func rateLimit(limiter cache.Limiter, trustProxy bool, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := limiter.Allow(r.Context(), clientKey(r, trustProxy))
			if err != nil {
				logger.Warn("Rate limiter unavailable, allowing request", logger.ErrorField(err))
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			reset := decision.RetryAfter(now)
			h := w.Header()
			h.Set("RateLimit-Limit", strconv.Itoa(decision.Limit))
			h.Set("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			h.Set("RateLimit-Reset", strconv.Itoa(reset))

			if !decision.Allowed {
				h.Set("Retry-After", strconv.Itoa(reset))
				logger.Warn("Rate limit exceeded",
					logger.String("client", clientKey(r, trustProxy)),
					logger.String("path", r.URL.Path))
				writeJSON(w, http.StatusTooManyRequests, newAPIError(http.StatusTooManyRequests, message))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireAuth verifies the bearer token and stores the identity in the context.
func requireAuth(tokens *auth.TokenManager, ew errorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				logger.Warn("Access attempt without token", logger.String("path", r.URL.Path))
				ew.write(w, r, err)
				return
			}
			id, err := tokens.Verify(token)
			if err != nil {
				logger.Warn("Invalid token attempt", logger.String("path", r.URL.Path))
				ew.write(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// chain applies middlewares so the first one listed runs first.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
