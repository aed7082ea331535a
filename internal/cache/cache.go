// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cache keeps an in-memory snapshot of html pages and propagates
// invalidations between nodes.
package cache

import (
	"errors"
	"time"
)

// ErrBusClosed is returned when publishing on a closed bus.
var ErrBusClosed = errors.New("invalidation bus is closed")

// Stats holds cache statistics.
type Stats struct {
	Hits          int64      `json:"hits"`
	Misses        int64      `json:"misses"`
	Refreshes     int64      `json:"refreshes"`
	Invalidations int64      `json:"invalidations"`
	Items         int        `json:"items"`
	HitRate       float64    `json:"hit_rate"`
	LoadedAt      *time.Time `json:"loaded_at,omitempty"` // nil when no snapshot is held
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}
