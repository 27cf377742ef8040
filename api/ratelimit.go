package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kmu-usr/airqa/internal/log"
)

// rateLimitedPaths are the endpoints that trigger expensive generation
// work. Everything else stays unlimited.
var rateLimitedPaths = map[string]bool{
	"/chat":                  true,
	"/api/v1/public/rag/ask": true,
}

// rateLimiter enforces a sliding window request limit per client IP.
type rateLimiter struct {
	limit      int
	window     time.Duration
	trustProxy bool
	logger     log.Logger

	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

func newRateLimiter(limit int, window time.Duration, trustProxy bool, logger log.Logger) *rateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &rateLimiter{
		limit:      limit,
		window:     window,
		trustProxy: trustProxy,
		logger:     logger,
		hits:       make(map[string][]time.Time),
		now:        time.Now,
	}
}

// middleware rejects requests beyond the limit with 429 and a Retry-After
// hint. A zero limit disables the check entirely.
func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.limit <= 0 || !rateLimitedPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		ip := l.clientIP(r)
		ok, retryAfter := l.allow(ip)
		if !ok {
			l.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds()+0.999)))
			writeError(w, http.StatusTooManyRequests, "請求過於頻繁", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow records one hit and reports whether the caller stays within the
// window. On rejection it returns how long until the oldest hit expires.
func (l *rateLimiter) allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	valid := l.hits[ip][:0]
	for _, t := range l.hits[ip] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= l.limit {
		l.hits[ip] = valid
		return false, valid[0].Sub(cutoff)
	}

	l.hits[ip] = append(valid, now)
	return true, 0
}

// clientIP extracts the caller's address. X-Forwarded-For is only
// honored behind a trusted proxy since clients can forge it.
func (l *rateLimiter) clientIP(r *http.Request) string {
	if l.trustProxy {
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
