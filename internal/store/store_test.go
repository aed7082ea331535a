// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/olegiv/ocms-htmlpage/internal/model"
)

// testDB creates a temporary migrated database.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "htmlpage-test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func createPage(t *testing.T, q *Queries, p model.HtmlPage) model.HtmlPage {
	t.Helper()
	if p.Workgroup == "" {
		p.Workgroup = model.WorkgroupAll
	}
	if p.Role == "" {
		p.Role = model.RoleNone
	}
	created, err := q.CreateHtmlPage(context.Background(), HtmlPageParams(&p, time.Now()))
	if err != nil {
		t.Fatalf("CreateHtmlPage: %v", err)
	}
	return created
}

func TestCreateAndGetHtmlPage(t *testing.T) {
	q := New(testDB(t))
	ctx := context.Background()

	start := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	page := createPage(t, q, model.HtmlPage{
		Description: "Banner",
		HTMLContent: "<b>hi</b>",
		Status:      model.StatusConditioned,
		Workgroup:   "editors",
		Role:        "members",
		DateStart:   &start,
	})

	if page.ID == 0 {
		t.Fatal("page.ID should not be 0")
	}

	got, err := q.GetHtmlPage(ctx, page.ID)
	if err != nil {
		t.Fatalf("GetHtmlPage: %v", err)
	}
	if got.Description != "Banner" || got.Workgroup != "editors" || got.Role != "members" {
		t.Errorf("unexpected page: %+v", got)
	}
	if got.Status != model.StatusConditioned {
		t.Errorf("Status = %v, want conditioned", got.Status)
	}
	if got.DateStart == nil || !got.DateStart.Equal(start) {
		t.Errorf("DateStart = %v, want %v", got.DateStart, start)
	}
	if got.DateEnd != nil {
		t.Errorf("DateEnd = %v, want nil", got.DateEnd)
	}
}

func TestCreateHtmlPage_IDsAreUnique(t *testing.T) {
	q := New(testDB(t))
	ctx := context.Background()

	first := createPage(t, q, model.HtmlPage{Description: "a", HTMLContent: "a"})
	if err := q.DeleteHtmlPage(ctx, first.ID); err != nil {
		t.Fatalf("DeleteHtmlPage: %v", err)
	}
	second := createPage(t, q, model.HtmlPage{Description: "b", HTMLContent: "b"})

	if second.ID == first.ID {
		t.Errorf("id %d was reused after delete", first.ID)
	}
}

func TestGetHtmlPage_NotFound(t *testing.T) {
	q := New(testDB(t))

	_, err := q.GetHtmlPage(context.Background(), 999)
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateHtmlPage(t *testing.T) {
	q := New(testDB(t))
	ctx := context.Background()

	page := createPage(t, q, model.HtmlPage{Description: "Old", HTMLContent: "x", Status: model.StatusEnabled})
	page.Description = "New"
	page.Status = model.StatusDisabled

	if err := q.UpdateHtmlPage(ctx, HtmlPageUpdateParams(&page, time.Now())); err != nil {
		t.Fatalf("UpdateHtmlPage: %v", err)
	}

	got, err := q.GetHtmlPage(ctx, page.ID)
	if err != nil {
		t.Fatalf("GetHtmlPage: %v", err)
	}
	if got.Description != "New" || got.Status != model.StatusDisabled {
		t.Errorf("update not persisted: %+v", got)
	}

	missing := model.HtmlPage{ID: 4242, Description: "x", HTMLContent: "x"}
	err = q.UpdateHtmlPage(ctx, HtmlPageUpdateParams(&missing, time.Now()))
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("update of missing page: err = %v, want ErrNotFound", err)
	}
}

func TestDeleteHtmlPage_NotFound(t *testing.T) {
	q := New(testDB(t))

	if err := q.DeleteHtmlPage(context.Background(), 77); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListHtmlPages_Ordering(t *testing.T) {
	q := New(testDB(t))
	ctx := context.Background()

	b := createPage(t, q, model.HtmlPage{Description: "B", HTMLContent: "x"})
	a1 := createPage(t, q, model.HtmlPage{Description: "A", HTMLContent: "x"})
	a2 := createPage(t, q, model.HtmlPage{Description: "A", HTMLContent: "x"})

	pages, err := q.ListHtmlPages(ctx)
	if err != nil {
		t.Fatalf("ListHtmlPages: %v", err)
	}
	want := []int64{a2.ID, a1.ID, b.ID}
	if len(pages) != len(want) {
		t.Fatalf("len = %d, want %d", len(pages), len(want))
	}
	for i, id := range want {
		if pages[i].ID != id {
			t.Errorf("pages[%d].ID = %d, want %d", i, pages[i].ID, id)
		}
	}
}

func TestListEnabledHtmlPages(t *testing.T) {
	q := New(testDB(t))
	ctx := context.Background()

	createPage(t, q, model.HtmlPage{Description: "off", HTMLContent: "x", Status: model.StatusDisabled})
	on := createPage(t, q, model.HtmlPage{Description: "on", HTMLContent: "x", Status: model.StatusEnabled})
	cond := createPage(t, q, model.HtmlPage{Description: "cond", HTMLContent: "x", Status: model.StatusConditioned})

	pages, err := q.ListEnabledHtmlPages(ctx)
	if err != nil {
		t.Fatalf("ListEnabledHtmlPages: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("len = %d, want 2", len(pages))
	}
	if pages[0].ID != cond.ID || pages[1].ID != on.ID {
		t.Errorf("got ids %d,%d", pages[0].ID, pages[1].ID)
	}

	if _, err := q.GetEnabledHtmlPage(ctx, on.ID); err != nil {
		t.Errorf("GetEnabledHtmlPage(enabled): %v", err)
	}
}

func TestListHtmlPageIDs_Workgroups(t *testing.T) {
	q := New(testDB(t))
	ctx := context.Background()

	createPage(t, q, model.HtmlPage{Description: "a", HTMLContent: "x", Workgroup: "alpha"})
	createPage(t, q, model.HtmlPage{Description: "b", HTMLContent: "x", Workgroup: "beta"})
	createPage(t, q, model.HtmlPage{Description: "c", HTMLContent: "x", Workgroup: model.WorkgroupAll})

	all, err := q.ListHtmlPageIDs(ctx, nil)
	if err != nil {
		t.Fatalf("ListHtmlPageIDs: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("unrestricted len = %d, want 3", len(all))
	}

	some, err := q.ListHtmlPageIDs(ctx, []string{"alpha", model.WorkgroupAll})
	if err != nil {
		t.Fatalf("ListHtmlPageIDs: %v", err)
	}
	if len(some) != 2 {
		t.Errorf("restricted len = %d, want 2", len(some))
	}

	none, err := q.ListHtmlPageIDs(ctx, []string{})
	if err != nil || len(none) != 0 {
		t.Errorf("empty workgroups: ids=%v err=%v", none, err)
	}

	pages, err := q.ListHtmlPagesByIDs(ctx, some)
	if err != nil {
		t.Fatalf("ListHtmlPagesByIDs: %v", err)
	}
	if len(pages) != 2 {
		t.Errorf("ListHtmlPagesByIDs len = %d, want 2", len(pages))
	}

	n, err := q.CountHtmlPagesByWorkgroup(ctx, "beta")
	if err != nil || n != 1 {
		t.Errorf("CountHtmlPagesByWorkgroup = %d, %v", n, err)
	}
}

func TestIndexerActions(t *testing.T) {
	q := New(testDB(t))
	ctx := context.Background()
	now := time.Now()

	for _, task := range []string{"create", "modify", "delete"} {
		if _, err := q.CreateIndexerAction(ctx, CreateIndexerActionParams{
			DocKey: "1", IndexerName: "HtmlPageIndexer", Task: task, CreatedAt: now,
		}); err != nil {
			t.Fatalf("CreateIndexerAction(%s): %v", task, err)
		}
	}

	if _, err := q.CreateIndexerAction(ctx, CreateIndexerActionParams{
		DocKey: "1", IndexerName: "HtmlPageIndexer", Task: "bogus", CreatedAt: now,
	}); err == nil {
		t.Error("unknown task should violate the check constraint")
	}

	actions, err := q.ListIndexerActions(ctx, "HtmlPageIndexer", 10)
	if err != nil {
		t.Fatalf("ListIndexerActions: %v", err)
	}
	if len(actions) != 3 || actions[0].Task != "create" || actions[2].Task != "delete" {
		t.Fatalf("unexpected queue: %+v", actions)
	}

	if err := q.DeleteIndexerAction(ctx, actions[0].ID); err != nil {
		t.Fatalf("DeleteIndexerAction: %v", err)
	}
	n, _ := q.CountIndexerActions(ctx, "HtmlPageIndexer")
	if n != 2 {
		t.Errorf("queue length = %d, want 2", n)
	}
}

func TestSearchDocuments(t *testing.T) {
	q := New(testDB(t))
	ctx := context.Background()

	docs := []SearchDocument{
		{UID: "1_hpg", URL: "/htmlpage/1", Type: "htmlpage", Title: "Holiday opening hours", Contents: "We are closed on Monday"},
		{UID: "2_hpg", URL: "/htmlpage/2", Type: "htmlpage", Title: "Contact", Contents: "Opening hours are nine to five"},
		{UID: "3_other", URL: "/x", Type: "other", Title: "Opening", Contents: "opening"},
	}
	for _, d := range docs {
		if err := q.InsertSearchDocument(ctx, d); err != nil {
			t.Fatalf("InsertSearchDocument: %v", err)
		}
	}

	hits, err := q.SearchDocuments(ctx, SearchDocumentsParams{Query: `"opening"`, Type: "htmlpage", Limit: 10})
	if err != nil {
		t.Fatalf("SearchDocuments: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[0].UID != "1_hpg" {
		t.Errorf("title match should rank first, got %s", hits[0].UID)
	}

	if err := q.DeleteSearchDocument(ctx, "1_hpg"); err != nil {
		t.Fatalf("DeleteSearchDocument: %v", err)
	}
	if n, _ := q.CountSearchDocuments(ctx, "htmlpage"); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	if err := q.DeleteSearchDocumentsByType(ctx, "htmlpage"); err != nil {
		t.Fatalf("DeleteSearchDocumentsByType: %v", err)
	}
	if n, _ := q.CountSearchDocuments(ctx, "other"); n != 1 {
		t.Errorf("other documents should survive, count = %d", n)
	}
}

func TestEvents(t *testing.T) {
	q := New(testDB(t))
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, level := range []string{model.EventLevelWarning, model.EventLevelError} {
		if _, err := q.CreateEvent(ctx, CreateEventParams{
			Level: level, Category: model.EventCategoryIndex, Message: "m", Metadata: "{}",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
	}

	all, err := q.ListEvents(ctx, ListEventsParams{Limit: 10})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(all) != 2 || all[0].Level != model.EventLevelError {
		t.Errorf("unexpected events: %+v", all)
	}

	errs, _ := q.ListEvents(ctx, ListEventsParams{Level: model.EventLevelError, Limit: 10})
	if len(errs) != 1 {
		t.Errorf("filtered len = %d, want 1", len(errs))
	}

	n, err := q.DeleteEventsBefore(ctx, time.Now())
	if err != nil || n != 2 {
		t.Errorf("DeleteEventsBefore = %d, %v", n, err)
	}
}

func TestSeed(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	n, err := Seed(ctx, db)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if n != len(samplePages) {
		t.Errorf("created %d, want %d", n, len(samplePages))
	}

	again, err := Seed(ctx, db)
	if err != nil || again != 0 {
		t.Errorf("second Seed = %d, %v; want 0, nil", again, err)
	}
}
