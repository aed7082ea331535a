// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import "time"

// Event levels
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// Event categories
const (
	EventCategoryPage   = "page"
	EventCategoryIndex  = "index"
	EventCategoryCache  = "cache"
	EventCategoryConfig = "config"
	EventCategoryAuth   = "auth"
	EventCategorySystem = "system"
)

// Event is a persisted log entry. The logging handler persists WARN and
// above; admin actions such as index rebuilds record INFO entries directly.
type Event struct {
	ID        int64     `json:"id"`
	Level     string    `json:"level"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Metadata  string    `json:"metadata"` // JSON object
	CreatedAt time.Time `json:"created_at"`
}
