package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"exstock/internal/auth"
)

// BearerVerifier resolves an identity-provider token to an email address.
type BearerVerifier interface {
	Verify(token string) (string, error)
}

// LoggingMiddleware logs request method, path, status-free duration, and
// sets CORS headers for the browser frontend. With a configured origin the
// headers allow credentials, so the cookie session works cross-origin;
// browsers refuse credentialed requests under a wildcard, so the empty
// default only serves bearer callers.
func LoggingMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			if allowedOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Vary", "Origin")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(200)
				return
			}
			next.ServeHTTP(w, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}

// SecurityHeaders adds security headers to all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth protects /api/ routes. Two credentials work: a session cookie
// from local login, or an identity-provider bearer token. Verified bearer
// tokens are cached in the sessions table so the provider is not asked on
// every request. The session token also keys the caller's cart draft, so a
// bearer caller and a cookie caller each get their own.
func RequireAuth(db *sql.DB, verifier BearerVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if !strings.HasPrefix(path, "/api/") || path == "/api/v1/health" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				token := strings.TrimPrefix(authHeader, "Bearer ")
				email, ok := auth.LookupSession(db, token)
				if !ok {
					var err error
					email, err = verifier.Verify(token)
					if err != nil {
						unauthorized(w, "Invalid token")
						return
					}
					// Cache under the token itself so repeat calls
					// short-circuit to the sessions table.
					db.Exec("INSERT OR REPLACE INTO sessions (token, email, kind, expires_at) VALUES (?, ?, 'bearer', ?)",
						token, email, time.Now().UTC().Add(auth.BearerTTL).Format("2006-01-02 15:04:05"))
				}
				serveAs(next, w, r, email, token)
				return
			}

			cookie, err := r.Cookie(auth.SessionCookie)
			if err != nil {
				unauthorized(w, "Unauthorized")
				return
			}
			email, ok := auth.LookupSession(db, cookie.Value)
			if !ok {
				unauthorized(w, "Unauthorized")
				return
			}
			serveAs(next, w, r, email, cookie.Value)
		})
	}
}

func serveAs(next http.Handler, w http.ResponseWriter, r *http.Request, identity, session string) {
	ctx := context.WithValue(r.Context(), CtxIdentity, identity)
	ctx = context.WithValue(ctx, CtxSession, session)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(401)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": "UNAUTHORIZED"})
}

// Identity returns the requester email stored by RequireAuth.
func Identity(r *http.Request) string {
	email, _ := r.Context().Value(CtxIdentity).(string)
	return email
}

// Session returns the session token stored by RequireAuth.
func Session(r *http.Request) string {
	token, _ := r.Context().Value(CtxSession).(string)
	return token
}

// RateLimiter tracks request rates per key.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{requests: make(map[string][]time.Time)}
}

// Reset clears all rate limit state (for testing).
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	rl.requests = make(map[string][]time.Time)
	rl.mu.Unlock()
}

// CheckRateLimit reports whether the key exceeded limit within window and
// records the attempt when it did not.
func (rl *RateLimiter) CheckRateLimit(key string, limit int, window time.Duration) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window)
	valid := rl.requests[key][:0]
	for _, t := range rl.requests[key] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	rl.requests[key] = valid

	var resetTime time.Time
	if len(valid) > 0 {
		resetTime = valid[0].Add(window)
	} else {
		resetTime = now.Add(window)
	}

	if len(valid) >= limit {
		return true, 0, resetTime
	}
	rl.requests[key] = append(valid, now)
	return false, limit - len(valid) - 1, resetTime
}

// RateLimitMiddleware limits login attempts and API traffic per client IP.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := r.RemoteAddr
			if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
				clientIP = strings.Split(forwarded, ",")[0]
			}
			if idx := strings.LastIndex(clientIP, ":"); idx != -1 {
				clientIP = clientIP[:idx]
			}

			var limit int
			var window time.Duration
			var key string
			switch {
			case r.URL.Path == "/auth/login":
				limit, window, key = 5, time.Minute, "login:"+clientIP
			case strings.HasPrefix(r.URL.Path, "/api/"):
				limit, window, key = 100, time.Minute, "api:"+clientIP
			default:
				next.ServeHTTP(w, r)
				return
			}

			exceeded, remaining, resetTime := rl.CheckRateLimit(key, limit, window)
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime.Unix()))

			if exceeded {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Until(resetTime).Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "Rate limit exceeded",
					"code":  "RATE_LIMIT_EXCEEDED",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
