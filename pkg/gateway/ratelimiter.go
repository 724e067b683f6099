package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

const (
	DefaultRequestsPerMinute = 120
	DefaultMaxConcurrent     = 16

	reasonConcurrent = "too many concurrent requests"
	reasonRate       = "rate limit exceeded"
)

// ClientRateLimiter bounds one client's request rate with a token bucket
// and its in-flight requests with a counter
type ClientRateLimiter struct {
	limiter *rate.Limiter

	mu            sync.Mutex
	maxConcurrent int
	inFlight      int
}

// NewClientRateLimiter creates a limiter with the default limits
func NewClientRateLimiter() *ClientRateLimiter {
	return NewClientRateLimiterWithLimits(DefaultRequestsPerMinute, DefaultMaxConcurrent)
}

// NewClientRateLimiterWithLimits creates a limiter allowing requestsPerMinute
// with bursts of the same size
func NewClientRateLimiterWithLimits(requestsPerMinute, maxConcurrent int) *ClientRateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &ClientRateLimiter{
		limiter:       rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), requestsPerMinute),
		maxConcurrent: maxConcurrent,
	}
}

// Acquire admits a request. On success the caller must call Release when
// the request finishes; otherwise it returns the error code and reason.
func (r *ClientRateLimiter) Acquire() (bool, int, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight >= r.maxConcurrent {
		return false, TooManyConcurrent, reasonConcurrent
	}
	if !r.limiter.Allow() {
		return false, RateLimitExceeded, reasonRate
	}
	r.inFlight++
	return true, 0, ""
}

// Release ends a request admitted by Acquire
func (r *ClientRateLimiter) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight > 0 {
		r.inFlight--
	}
}

// InFlight returns the number of admitted, unfinished requests
func (r *ClientRateLimiter) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight
}
