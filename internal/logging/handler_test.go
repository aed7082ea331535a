// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/olegiv/ocms-htmlpage/internal/model"
	"github.com/olegiv/ocms-htmlpage/internal/store"
	"github.com/olegiv/ocms-htmlpage/internal/testutil"
)

// discardHandler is a slog.Handler that discards all logs.
type discardHandler struct{}

func (h discardHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (h discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return h }
func (h discardHandler) WithGroup(string) slog.Handler             { return h }

func listEvents(t *testing.T, db *sql.DB) []model.Event {
	t.Helper()
	events, err := store.New(db).ListEvents(context.Background(), store.ListEventsParams{Limit: 50})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	return events
}

func TestEventLogHandler_Levels(t *testing.T) {
	db := testutil.TestDB(t)
	logger := slog.New(NewEventLogHandler(discardHandler{}, db))

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("page cache refresh failed")
	logger.Error("database connection failed", "host", "localhost")

	events := listEvents(t, db)
	if len(events) != 2 {
		t.Fatalf("expected 2 events (warn and error), got %d", len(events))
	}

	levels := map[string]bool{}
	for _, e := range events {
		levels[e.Level] = true
	}
	if !levels[model.EventLevelWarning] || !levels[model.EventLevelError] {
		t.Errorf("levels = %v, want warning and error", levels)
	}
}

func TestEventLogHandler_CustomLevel(t *testing.T) {
	db := testutil.TestDB(t)
	logger := slog.New(NewEventLogHandlerWithLevel(discardHandler{}, db, slog.LevelError))

	logger.Warn("not captured")
	logger.Error("captured")

	events := listEvents(t, db)
	if len(events) != 1 || events[0].Message != "captured" {
		t.Fatalf("events = %+v, want only the error", events)
	}
}

func TestExtractCategory(t *testing.T) {
	tests := []struct {
		message string
		attrs   []slog.Attr
		want    string
	}{
		{"admin token rejected", nil, model.EventCategoryAuth},
		{"indexing intent not submitted", nil, model.EventCategoryIndex},
		{"search query failed", nil, model.EventCategoryIndex},
		{"cache invalidation not published", nil, model.EventCategoryCache},
		{"html page not found", nil, model.EventCategoryPage},
		{"invalid config value", nil, model.EventCategoryConfig},
		{"something happened", nil, model.EventCategorySystem},
		{"html page not found", []slog.Attr{slog.String("category", model.EventCategoryIndex)}, model.EventCategoryIndex},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			if got := extractCategory(tt.message, tt.attrs); got != tt.want {
				t.Errorf("extractCategory(%q) = %q, want %q", tt.message, got, tt.want)
			}
		})
	}
}

func TestEventLogHandler_Metadata(t *testing.T) {
	db := testutil.TestDB(t)
	logger := slog.New(NewEventLogHandler(discardHandler{}, db)).
		With("node", "n1").
		WithGroup("req")

	logger.Warn("page lookup failed",
		"category", model.EventCategoryPage,
		"page_id", 42,
		"error", "quote \" and\nnewline",
	)

	events := listEvents(t, db)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Category != model.EventCategoryPage {
		t.Errorf("Category = %q, want %q", e.Category, model.EventCategoryPage)
	}

	var meta map[string]string
	if err := json.Unmarshal([]byte(e.Metadata), &meta); err != nil {
		t.Fatalf("metadata is not valid JSON: %v (%s)", err, e.Metadata)
	}
	want := map[string]string{
		"node":        "n1",
		"req.page_id": "42",
		"req.error":   "quote \" and\nnewline",
	}
	for k, v := range want {
		if meta[k] != v {
			t.Errorf("metadata[%q] = %q, want %q", k, meta[k], v)
		}
	}
	if _, ok := meta["category"]; ok {
		t.Error("category should not be repeated in metadata")
	}
}

func TestEventLogHandler_EmptyMetadata(t *testing.T) {
	if got := extractMetadata(nil); got != "{}" {
		t.Errorf("extractMetadata(nil) = %q, want {}", got)
	}
}

func TestSlogLevelToEventLevel(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, model.EventLevelInfo},
		{slog.LevelInfo, model.EventLevelInfo},
		{slog.LevelWarn, model.EventLevelWarning},
		{slog.LevelError, model.EventLevelError},
		{slog.LevelError + 4, model.EventLevelError},
	}

	for _, tt := range tests {
		if got := slogLevelToEventLevel(tt.level); got != tt.want {
			t.Errorf("slogLevelToEventLevel(%v) = %q, want %q", tt.level, got, tt.want)
		}
	}
}
