package main

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	nativecommon "nftmarket/native/common"
	"nftmarket/observability"
)

// RateLimiter throttles requests per client address using token buckets.
type RateLimiter struct {
	perSecond rate.Limit
	burst     int

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

func NewRateLimiter(requestsPerMinute float64, burst int) *RateLimiter {
	perSecond := requestsPerMinute / 60.0
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		visitors:  make(map[string]*rate.Limiter),
	}
}

// Middleware rejects clients that exceed their bucket with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.obtain(clientID(r)).Allow() {
			observability.API().RecordThrottle(r.URL.Path, "rate_limit")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) obtain(id string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter, ok := rl.visitors[id]
	if !ok {
		limiter = rate.NewLimiter(rl.perSecond, rl.burst)
		rl.visitors[id] = limiter
	}
	return limiter
}

func clientID(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// statusRecorder captures the status written by downstream handlers.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

// MetricsMiddleware records request counts and latency per route.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		observability.API().Observe(r.URL.Path, recorder.status, time.Since(start))
	})
}

// OfferQuota enforces the per-address offer quota: request count and native
// value locked per epoch. Counters live in memory; a restart resets the
// epoch, which is acceptable for an anti-spam control.
type OfferQuota struct {
	quota nativecommon.Quota

	mu       sync.Mutex
	counters map[string]nativecommon.QuotaNow
	nowFn    func() time.Time
}

func NewOfferQuota(quota nativecommon.Quota) *OfferQuota {
	return &OfferQuota{
		quota:    quota,
		counters: make(map[string]nativecommon.QuotaNow),
		nowFn:    time.Now,
	}
}

// Allow consumes one request and the offered value from the address quota.
func (q *OfferQuota) Allow(address string, value uint64) error {
	if q == nil || (q.quota.MaxRequestsPerEpoch == 0 && q.quota.MaxValuePerEpoch == 0) {
		return nil
	}
	epochSeconds := int64(q.quota.EpochSeconds)
	if epochSeconds <= 0 {
		epochSeconds = 3600
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	nowEpoch := uint64(q.nowFn().Unix() / epochSeconds)
	next, err := nativecommon.CheckQuota(q.quota, nowEpoch, q.counters[address], 1, value)
	if err != nil {
		return err
	}
	q.counters[address] = next
	return nil
}
