package httpx

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	domainauth "github.com/target/jobqueue/internal/domain/auth"
	apperrors "github.com/target/jobqueue/internal/errors"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets websocket upgrades pass through the logging wrapper.
func (w *respWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *respWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					WriteError(w, ErrorParams{
						Code:    http.StatusInternalServerError,
						ErrCode: string(apperrors.ErrCodeInternal),
						Err:     errors.New("internal server error"),
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticator resolves a bearer token to its session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domainauth.Session, error)
}

// RequireAuth returns a middleware that requires a valid bearer token.
// If the token is missing, invalid or revoked it returns a 401 Unauthorized response.
func RequireAuth(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				RenderError(w, r, logger, apperrors.Unauthorized("authentication required"))
				return
			}

			session, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				RenderError(w, r, logger, err)
				return
			}

			ctx := SetSessionInContext(r.Context(), &session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns a middleware that requires a specific role. It must run after RequireAuth.
// If the user doesn't have the required role, it returns a 403 Forbidden response.
func RequireRole(requiredRole domainauth.Role, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := GetUserSessionFromContext(r.Context())
			if !ok {
				RenderError(w, r, logger, apperrors.Unauthorized("authentication required"))
				return
			}
			if !hasRequiredRole(session.Role, requiredRole) {
				RenderError(w, r, logger, apperrors.Forbidden("insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from the Authorization header. Browsers cannot
// set headers on websocket handshakes, so upgrades may carry it as access_token.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if websocket.IsWebSocketUpgrade(r) {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

// hasRequiredRole checks if the user's role meets the required role.
// Role hierarchy: User < Admin.
func hasRequiredRole(userRole, requiredRole domainauth.Role) bool {
	roleHierarchy := map[domainauth.Role]int{
		domainauth.RoleUser:  1,
		domainauth.RoleAdmin: 2,
	}

	userLevel, userExists := roleHierarchy[userRole]
	requiredLevel, requiredExists := roleHierarchy[requiredRole]

	if !userExists || !requiredExists {
		return false
	}

	return userLevel >= requiredLevel
}

// ThrottleConfig configures the per-client-IP request throttle.
type ThrottleConfig struct {
	RPS    float64
	Burst  int
	Idle   time.Duration    // evict limiters idle for longer than this; defaults to 10m
	Now    func() time.Time // optional clock override for tests
	Logger *slog.Logger
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPThrottle applies a token bucket per client IP. It guards the credential
// endpoints against brute force and is independent of the job admission limiter.
type IPThrottle struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
	logger   *slog.Logger
	lastGC   time.Time
}

// NewIPThrottle creates an IPThrottle. A non-positive RPS disables throttling.
func NewIPThrottle(cfg ThrottleConfig) *IPThrottle {
	idle := cfg.Idle
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &IPThrottle{
		limiters: make(map[string]*ipLimiter),
		limit:    rate.Limit(cfg.RPS),
		burst:    burst,
		idle:     idle,
		now:      now,
		logger:   cfg.Logger,
	}
}

// Allow reports whether a request from ip may proceed.
func (t *IPThrottle) Allow(ip string) bool {
	if t.limit <= 0 {
		return true
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.lastGC) > t.idle {
		for k, l := range t.limiters {
			if now.Sub(l.lastSeen) > t.idle {
				delete(t.limiters, k)
			}
		}
		t.lastGC = now
	}

	l, ok := t.limiters[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.limiters[ip] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the per-IP budget with 429.
func (t *IPThrottle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			RenderError(w, r, t.logger, apperrors.RateLimited("too many requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
