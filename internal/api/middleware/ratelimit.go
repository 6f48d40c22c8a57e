package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/leaguepulse/leaguepulse/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Requests per window
	RequestLimit int
	// Window duration
	WindowLength time.Duration
}

// Default rate limit configurations.
var (
	// StandardRateLimit applies to dashboard reads (100 req/min).
	StandardRateLimit = RateLimitConfig{
		RequestLimit: 100,
		WindowLength: time.Minute,
	}

	// RefetchRateLimit applies to manual refetches, which hit every data
	// source behind a metric (30 req/min).
	RefetchRateLimit = RateLimitConfig{
		RequestLimit: 30,
		WindowLength: time.Minute,
	}

	// AdminRateLimit applies to threshold changes (10 req/min).
	AdminRateLimit = RateLimitConfig{
		RequestLimit: 10,
		WindowLength: time.Minute,
	}
)

// RateLimitByIP creates a rate limiter middleware using client IP address.
// Uses X-Forwarded-For header if present (extracted by chi's RealIP middleware).
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(limitExceeded(cfg)),
	)
}

// RateLimitByOperator creates a rate limiter keyed by the authenticated
// operator. Requests outside RequireOperator are keyed by client IP.
func RateLimitByOperator(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyByOperatorOrIP),
		httprate.WithLimitHandler(limitExceeded(cfg)),
	)
}

func keyByOperatorOrIP(r *http.Request) (string, error) {
	if op := GetOperator(r.Context()); op != "" {
		return "operator:" + op, nil
	}
	return httprate.KeyByRealIP(r)
}

// limitExceeded writes an RFC7807 Problem response. httprate does not expose
// the reset time, so Retry-After is the full window.
func limitExceeded(cfg RateLimitConfig) http.HandlerFunc {
	retryAfter := int(math.Ceil(cfg.WindowLength.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}

	return func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
		problem.Instance = r.URL.Path

		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		problem.Write(w)
	}
}
