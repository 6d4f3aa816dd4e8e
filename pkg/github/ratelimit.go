package github

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	minLimit  = 0.1
	backOffBy = 2.0
	recoverBy = 1.5
)

// RateLimiters keeps track of per-host rate limiting for the API hosts
// a process talks to.
//
// Use `*RateLimiters.RoundTripper(host)` to obtain a rate limited HTTP
// transport. The RoundTripper reacts to `HTTP 429 Too many requests`,
// and to a 403 with an exhausted rate limit, by halving the limit for
// that host. A host is backed off at most once between successful
// requests, so a burst of concurrent rejections halves it only once.
//
// Call `*RateLimiters.Recover(host)` after a request has succeeded to
// bump the limit back towards RPS and allow the next rejection to back
// off again.
type RateLimiters struct {
	RPS       float64
	Burst     int
	Logger    log.Logger
	perHost   map[string]*rate.Limiter
	backedOff map[string]bool
	mu        sync.Mutex
}

func (limiters *RateLimiters) clip(limit float64) float64 {
	if limit < minLimit {
		return minLimit
	}
	if limit > limiters.RPS {
		return limiters.RPS
	}
	return limit
}

// limiter returns the limiter for host, creating it if need be. The
// caller must hold mu.
func (limiters *RateLimiters) limiter(host string) *rate.Limiter {
	if limiters.perHost == nil {
		limiters.perHost = map[string]*rate.Limiter{}
	}
	rl, ok := limiters.perHost[host]
	if !ok {
		rl = rate.NewLimiter(rate.Limit(limiters.RPS), limiters.Burst)
		limiters.perHost[host] = rl
	}
	return rl
}

func (limiters *RateLimiters) backOff(host string) {
	limiters.mu.Lock()
	defer limiters.mu.Unlock()

	if limiters.backedOff[host] {
		return
	}
	if limiters.backedOff == nil {
		limiters.backedOff = map[string]bool{}
	}
	limiters.backedOff[host] = true

	limiter := limiters.limiter(host)
	oldLimit := float64(limiter.Limit())
	newLimit := limiters.clip(oldLimit / backOffBy)
	if oldLimit != newLimit && limiters.Logger != nil {
		limiters.Logger.Log("info", "reducing rate limit", "host", host, "limit", strconv.FormatFloat(newLimit, 'f', 2, 64))
	}
	limiter.SetLimit(rate.Limit(newLimit))
}

// Recover should be called when a request through a RoundTripper has
// succeeded, to bump the limit back up again.
func (limiters *RateLimiters) Recover(host string) {
	limiters.mu.Lock()
	defer limiters.mu.Unlock()
	delete(limiters.backedOff, host)
	if limiters.perHost == nil {
		return
	}
	if limiter, ok := limiters.perHost[host]; ok {
		oldLimit := float64(limiter.Limit())
		newLimit := limiters.clip(oldLimit * recoverBy)
		if newLimit != oldLimit && limiters.Logger != nil {
			limiters.Logger.Log("info", "increasing rate limit", "host", host, "limit", strconv.FormatFloat(newLimit, 'f', 2, 64))
		}
		limiter.SetLimit(rate.Limit(newLimit))
	}
}

// Limit reports the current limit for host, in requests per second.
func (limiters *RateLimiters) Limit(host string) float64 {
	limiters.mu.Lock()
	defer limiters.mu.Unlock()
	return float64(limiters.limiter(host).Limit())
}

// RoundTripper returns a rate limited transport for host, wrapping rt.
func (limiters *RateLimiters) RoundTripper(rt http.RoundTripper, host string) http.RoundTripper {
	limiters.mu.Lock()
	defer limiters.mu.Unlock()

	return &roundTripRateLimiter{
		rl:       limiters.limiter(host),
		tx:       rt,
		slowDown: func() { limiters.backOff(host) },
	}
}

type roundTripRateLimiter struct {
	rl       *rate.Limiter
	tx       http.RoundTripper
	slowDown func()
}

func (t *roundTripRateLimiter) RoundTrip(r *http.Request) (*http.Response, error) {
	// Wait errors out if the request cannot be processed within
	// the deadline. This is pre-emptive, instead of waiting the
	// entire duration.
	if err := t.rl.Wait(r.Context()); err != nil {
		return nil, errors.Wrap(err, "rate limited")
	}
	resp, err := t.tx.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0") {
		t.slowDown()
	}
	return resp, err
}
