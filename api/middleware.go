package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Coded483-max/smartvote-node/log"
)

// Casting defaults: a voter gets a small burst and then one attempt per
// interval. Casting is a once-per-election operation, so anything beyond
// this is retries or abuse.
const (
	DefaultCastRate  = 10 * time.Second
	DefaultCastBurst = 3
)

// RateLimiter throttles requests by key. Allow reports whether the keyed
// caller may proceed.
type RateLimiter interface {
	Allow(key string) bool
}

type bucket struct {
	tokens float64
	last   time.Time
}

// TokenBucketLimiter is the default per-key token bucket. Buckets refill at
// one token per rate interval up to burst.
type TokenBucketLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    time.Duration
	burst   int
}

// NewTokenBucketLimiter creates a limiter refilling one token per rate up to
// burst tokens.
func NewTokenBucketLimiter(rate time.Duration, burst int) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
	}
}

// Allow consumes a token for key if one is available.
func (l *TokenBucketLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), last: now}
		l.buckets[key] = b
	}
	b.tokens += now.Sub(b.last).Seconds() / l.rate.Seconds()
	if limit := float64(l.burst); b.tokens > limit {
		b.tokens = limit
	}
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// rateLimitMiddleware keys the limiter by the voter id in the request body,
// falling back to the remote address when no body can be peeked.
func (a *API) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if host, _, ok := strings.Cut(key, ":"); ok {
			key = host
		}
		// The cast body carries the voter id; it is the fairer key since
		// many voters can share a NAT address.
		if r.Body != nil {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
			if err != nil {
				ErrMalformedBody.WithErr(err).Write(w)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			var peek struct {
				VoterID string `json:"voterId"`
			}
			if err := json.Unmarshal(body, &peek); err == nil && peek.VoterID != "" {
				key = peek.VoterID
			}
		}
		if !a.limiter.Allow(key) {
			ErrTooManyRequests.Withf("rate limit exceeded for %s", key).Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// excludedLogPrefixes are request paths too chatty to log per-request.
var excludedLogPrefixes = []string{PingEndpoint}

// loggingMiddleware logs every request with its duration and status.
func (a *API) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range excludedLogPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		log.Debugw("api request",
			"method", r.Method, "path", r.URL.Path,
			"status", sw.status, "duration", time.Since(start).String())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// adminMiddleware gates management endpoints behind the configured bearer
// token. An empty token disables the check.
func (a *API) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.adminToken != "" && !a.isPrivileged(r) {
			ErrResourceNotFound.With("unauthorized").Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isPrivileged reports whether the request carries the admin bearer token.
func (a *API) isPrivileged(r *http.Request) bool {
	if a.adminToken == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	return ok && token == a.adminToken
}
