package gateway

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// limiterIdleTimeout is how long a client's limiter survives without requests
const limiterIdleTimeout = 10 * time.Minute

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs every routed request with its status and latency
func loggingMiddleware(prefix string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			entry := log.WithFields(log.Fields{
				"status":   rec.status,
				"duration": time.Since(start).Round(time.Microsecond),
				"remote":   r.RemoteAddr,
			})
			if rec.status >= http.StatusInternalServerError {
				entry.Warnf("[%s] %s %s", prefix, r.Method, r.URL.Path)
				return
			}
			entry.Debugf("[%s] %s %s", prefix, r.Method, r.URL.Path)
		})
	}
}

// clientLimiter keeps one token bucket per client address. Idle buckets
// expire from the cache.
type clientLimiter struct {
	mu       sync.Mutex
	limiters *cache.Cache
	r        rate.Limit
	b        int
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		limiters: cache.New(limiterIdleTimeout, 2*limiterIdleTimeout),
		r:        rate.Limit(rps),
		b:        burst,
	}
}

// get returns the limiter for key, creating it on first use and refreshing its expiry
func (l *clientLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	var limiter *rate.Limiter
	if v, found := l.limiters.Get(key); found {
		limiter = v.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(l.r, l.b)
	}
	l.limiters.Set(key, limiter, cache.DefaultExpiration)
	return limiter
}

func (l *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !l.get(key).Allow() {
			log.Warnf("[gateway] rate limit exceeded for %s", key)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			if _, err := w.Write([]byte(`{"code":429,"message":"Too many requests"}` + "\n")); err != nil {
				log.Debugf("Failed to write response: %v", err)
			}
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies a client by remote host, without the port
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
