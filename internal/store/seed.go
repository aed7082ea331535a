// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/olegiv/ocms-htmlpage/internal/model"
)

// samplePages are inserted into an empty database on first start.
var samplePages = []model.HtmlPage{
	{
		Description: "Welcome",
		HTMLContent: "<h2>Welcome</h2><p>This block is shown to every visitor.</p>",
		Status:      model.StatusEnabled,
		Workgroup:   model.WorkgroupAll,
		Role:        model.RoleNone,
	},
	{
		Description: "Members corner",
		HTMLContent: "<p>Content reserved for signed-in members.</p>",
		Status:      model.StatusEnabled,
		Workgroup:   model.WorkgroupAll,
		Role:        "members",
	},
	{
		Description: "Draft announcement",
		HTMLContent: "<p>Not published yet.</p>",
		Status:      model.StatusDisabled,
		Workgroup:   model.WorkgroupAll,
		Role:        model.RoleNone,
	},
}

// Seed creates sample html pages when the table is empty.
// It returns the number of pages created.
func Seed(ctx context.Context, db *sql.DB) (int, error) {
	queries := New(db)

	ids, err := queries.ListHtmlPageIDs(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("checking for existing pages: %w", err)
	}
	if len(ids) > 0 {
		slog.Info("html pages already exist, skipping seed", "count", len(ids))
		return 0, nil
	}

	now := time.Now()
	for i := range samplePages {
		page, err := queries.CreateHtmlPage(ctx, HtmlPageParams(&samplePages[i], now))
		if err != nil {
			return i, fmt.Errorf("creating sample page %q: %w", samplePages[i].Description, err)
		}
		slog.Info("created sample html page", "id", page.ID, "description", page.Description)
	}

	return len(samplePages), nil
}
