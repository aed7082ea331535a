// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"log/slog"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// limiterCache holds one token bucket per key. The least recently seen keys
// are evicted once maxSize is reached.
type limiterCache[K comparable] struct {
	mu       sync.Mutex
	limiters *lru.Cache[K, *rate.Limiter]
	rate     rate.Limit
	burst    int
}

func newLimiterCache[K comparable](rps float64, burst, maxSize int) *limiterCache[K] {
	limiters, err := lru.New[K, *rate.Limiter](maxSize)
	if err != nil {
		// Only a non-positive size fails.
		limiters, _ = lru.New[K, *rate.Limiter](1)
	}
	return &limiterCache[K]{
		limiters: limiters,
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

// get returns the rate limiter for a specific key, creating one if needed.
func (lc *limiterCache[K]) get(key K) *rate.Limiter {
	if limiter, ok := lc.limiters.Get(key); ok {
		return limiter
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()

	if limiter, ok := lc.limiters.Get(key); ok {
		return limiter
	}
	limiter := rate.NewLimiter(lc.rate, lc.burst)
	lc.limiters.Add(key, limiter)
	return limiter
}

// RateLimiter limits requests per client IP.
type RateLimiter struct {
	cache  *limiterCache[string]
	logger *slog.Logger
}

// NewRateLimiter creates a RateLimiter tracking at most maxClients addresses.
func NewRateLimiter(rps float64, burst, maxClients int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		cache:  newLimiterCache[string](rps, burst, maxClients),
		logger: logger,
	}
}

// Allow reports whether a request from ip may proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	return rl.cache.get(ip).Allow()
}

// Middleware returns the rate limiting middleware for API routes (returns JSON errors).
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientIP(r)) {
				WriteAPIError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Rate limit exceeded. Please slow down.", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HTMLMiddleware returns the rate limiting middleware for public pages (returns plain text errors).
func (rl *RateLimiter) HTMLMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.Allow(ip) {
				rl.logger.Debug("public rate limit exceeded", "ip", ip, "path", r.URL.Path)
				http.Error(w, "Too many requests. Please wait a moment and try again.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
