// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/olegiv/ocms-htmlpage/internal/auth"
	"github.com/olegiv/ocms-htmlpage/internal/cache"
	"github.com/olegiv/ocms-htmlpage/internal/version"
)

// PendingCounter reports the number of queued indexing actions.
type PendingCounter interface {
	Pending(ctx context.Context) (int64, error)
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	db        *sql.DB
	cache     *cache.PageCache
	index     PendingCounter
	verifier  *auth.TokenVerifier
	version   version.Info
	startTime time.Time
}

// HealthConfig wires a HealthHandler. Cache, Index and Verifier are optional.
type HealthConfig struct {
	DB       *sql.DB
	Cache    *cache.PageCache
	Index    PendingCounter
	Verifier *auth.TokenVerifier
	Version  version.Info
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(cfg HealthConfig) *HealthHandler {
	return &HealthHandler{
		db:        cfg.DB,
		cache:     cfg.Cache,
		index:     cfg.Index,
		verifier:  cfg.Verifier,
		version:   cfg.Version,
		startTime: time.Now(),
	}
}

// HealthStatusPublic is the minimal health response for unauthenticated callers.
type HealthStatusPublic struct {
	Status string `json:"status"`
}

// HealthStatus is the detailed health response for admin callers.
type HealthStatus struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Cache     *cache.Stats     `json:"cache,omitempty"`
	System    *SystemInfo      `json:"system,omitempty"`
}

// Check represents a single health check result.
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// SystemInfo contains system-level information.
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutines"`
	NumCPU       int    `json:"num_cpus"`
	MemAlloc     string `json:"mem_alloc"`
	MemSys       string `json:"mem_sys"`
}

// Health handles GET /health. Callers presenting the admin token get the
// individual checks, cache statistics and runtime details.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]Check{
		"database": h.checkDatabase(r.Context()),
	}
	if h.index != nil {
		checks["index_queue"] = h.checkIndexQueue(r.Context())
	}

	overallStatus := "healthy"
	if checks["database"].Status != "healthy" {
		overallStatus = "unhealthy"
	} else if q, ok := checks["index_queue"]; ok && q.Status != "healthy" {
		overallStatus = "degraded"
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	if !h.isAdmin(r) {
		writeJSON(w, statusCode, HealthStatusPublic{Status: overallStatus})
		return
	}

	status := HealthStatus{
		Status:    overallStatus,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Version:   h.version.String(),
		Checks:    checks,
		System:    getSystemInfo(),
	}
	if h.cache != nil {
		stats := h.cache.Stats()
		status.Cache = &stats
	}
	writeJSON(w, statusCode, status)
}

func (h *HealthHandler) isAdmin(r *http.Request) bool {
	if h.verifier == nil {
		return false
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return false
	}
	return h.verifier.Verify(strings.TrimSpace(parts[1]))
}

// checkDatabase verifies database connectivity.
func (h *HealthHandler) checkDatabase(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := h.db.PingContext(ctx)
	latency := time.Since(start)

	if err != nil {
		return Check{Status: "unhealthy", Message: err.Error(), Latency: latency.String()}
	}
	return Check{Status: "healthy", Message: "Connected", Latency: latency.String()}
}

// maxPendingActions is the queue length above which indexing is reported as
// lagging.
const maxPendingActions = 1000

// checkIndexQueue reports how many indexing actions wait to be processed.
func (h *HealthHandler) checkIndexQueue(ctx context.Context) Check {
	n, err := h.index.Pending(ctx)
	if err != nil {
		return Check{Status: "unhealthy", Message: err.Error()}
	}
	msg := fmt.Sprintf("%d pending", n)
	if n > maxPendingActions {
		return Check{Status: "degraded", Message: msg}
	}
	return Check{Status: "healthy", Message: msg}
}

// getSystemInfo returns system-level metrics.
func getSystemInfo() *SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &SystemInfo{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     formatBytes(m.Alloc),
		MemSys:       formatBytes(m.Sys),
	}
}

// formatBytes converts bytes to a human-readable string.
func formatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
