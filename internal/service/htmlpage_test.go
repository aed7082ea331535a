// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/ocms-htmlpage/internal/auth"
	"github.com/olegiv/ocms-htmlpage/internal/cache"
	"github.com/olegiv/ocms-htmlpage/internal/indexer"
	"github.com/olegiv/ocms-htmlpage/internal/model"
	"github.com/olegiv/ocms-htmlpage/internal/store"
	"github.com/olegiv/ocms-htmlpage/internal/testutil"
)

// memStore is an in-memory PageStore.
type memStore struct {
	mu     sync.Mutex
	pages  map[int64]model.HtmlPage
	nextID int64
	err    error
}

func newMemStore() *memStore {
	return &memStore{pages: make(map[int64]model.HtmlPage)}
}

func fromTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func (m *memStore) CreateHtmlPage(_ context.Context, arg store.CreateHtmlPageParams) (model.HtmlPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.HtmlPage{}, m.err
	}
	m.nextID++
	p := model.HtmlPage{
		ID: m.nextID, Description: arg.Description, HTMLContent: arg.HTMLContent, Status: arg.Status,
		Workgroup: arg.Workgroup, Role: arg.Role, DateStart: fromTime(arg.DateStart), DateEnd: fromTime(arg.DateEnd),
		CreatedAt: arg.CreatedAt, UpdatedAt: arg.UpdatedAt,
	}
	m.pages[p.ID] = p
	return *p.Clone(), nil
}

func (m *memStore) UpdateHtmlPage(_ context.Context, arg store.UpdateHtmlPageParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	p, ok := m.pages[arg.ID]
	if !ok {
		return model.ErrNotFound
	}
	p.Description, p.HTMLContent, p.Status = arg.Description, arg.HTMLContent, arg.Status
	p.Workgroup, p.Role = arg.Workgroup, arg.Role
	p.DateStart, p.DateEnd = fromTime(arg.DateStart), fromTime(arg.DateEnd)
	p.UpdatedAt = arg.UpdatedAt
	m.pages[arg.ID] = p
	return nil
}

func (m *memStore) DeleteHtmlPage(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pages[id]; !ok {
		return model.ErrNotFound
	}
	delete(m.pages, id)
	return nil
}

func (m *memStore) GetHtmlPage(_ context.Context, id int64) (model.HtmlPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[id]
	if !ok {
		return model.HtmlPage{}, model.ErrNotFound
	}
	return *p.Clone(), nil
}

func (m *memStore) ListHtmlPages(_ context.Context) ([]model.HtmlPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]model.HtmlPage, 0, len(m.pages))
	for _, p := range m.pages {
		out = append(out, *p.Clone())
	}
	cache.SortPages(out)
	return out, nil
}

func (m *memStore) GetEnabledHtmlPage(ctx context.Context, id int64) (model.HtmlPage, error) {
	p, err := m.GetHtmlPage(ctx, id)
	if err != nil {
		return p, err
	}
	if p.Status == model.StatusDisabled {
		return model.HtmlPage{}, model.ErrNotFound
	}
	return p, nil
}

func (m *memStore) ListEnabledHtmlPages(ctx context.Context) ([]model.HtmlPage, error) {
	all, err := m.ListHtmlPages(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, p := range all {
		if p.Status != model.StatusDisabled {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) ListHtmlPageIDs(ctx context.Context, workgroups []string) ([]int64, error) {
	all, err := m.ListHtmlPages(ctx)
	if err != nil {
		return nil, err
	}
	ids := []int64{}
	for _, p := range all {
		if workgroups == nil || contains(workgroups, p.Workgroup) {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

func (m *memStore) ListHtmlPagesByIDs(ctx context.Context, ids []int64) ([]model.HtmlPage, error) {
	out := []model.HtmlPage{}
	for _, id := range ids {
		if p, err := m.GetHtmlPage(ctx, id); err == nil {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CountHtmlPagesByWorkgroup(_ context.Context, wg string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.pages {
		if p.Workgroup == wg {
			n++
		}
	}
	return n, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type intent struct {
	key    string
	action indexer.Action
}

type recordingSubmitter struct {
	mu      sync.Mutex
	intents []intent
	err     error
}

func (r *recordingSubmitter) SubmitIntent(_ context.Context, key, _ string, action indexer.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.intents = append(r.intents, intent{key, action})
	return nil
}

func (r *recordingSubmitter) take() []intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.intents
	r.intents = nil
	return out
}

type recordingBus struct {
	cache.NopBus
	mu       sync.Mutex
	messages []string
}

func (b *recordingBus) Publish(_ context.Context, id int64, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, reason+":"+strconv.FormatInt(id, 10))
	return nil
}

type fixture struct {
	svc   *HtmlPageService
	store *memStore
	subs  *recordingSubmitter
	bus   *recordingBus
	clock *testutil.Clock
}

func newFixture(t *testing.T, authEnabled bool) *fixture {
	t.Helper()
	f := &fixture{
		store: newMemStore(),
		subs:  &recordingSubmitter{},
		bus:   &recordingBus{},
		clock: testutil.NewClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)),
	}
	logger := testutil.TestLoggerSilent()
	f.svc = NewHtmlPageService(HtmlPageServiceConfig{
		Store:                 f.store,
		Notifier:              indexer.NewNotifier(f.subs, "test", logger, f.clock.Now),
		Bus:                   f.bus,
		AuthenticationEnabled: authEnabled,
		Logger:                logger,
		Now:                   f.clock.Now,
	})
	return f
}

func ptr(t time.Time) *time.Time { return &t }

func enabledPage(desc string) *model.HtmlPage {
	return &model.HtmlPage{Description: desc, HTMLContent: "<p>" + desc + "</p>", Status: model.StatusEnabled}
}

func TestValidate(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		page   model.HtmlPage
		fields []string
	}{
		{"valid enabled", model.HtmlPage{Description: "a", HTMLContent: "b", Status: model.StatusEnabled}, nil},
		{"missing description", model.HtmlPage{Description: "  ", HTMLContent: "b"}, []string{"description"}},
		{"missing content", model.HtmlPage{Description: "a", HTMLContent: " "}, []string{"html_content"}},
		{"bad status", model.HtmlPage{Description: "a", HTMLContent: "b", Status: 7}, []string{"status"}},
		{"conditioned without start", model.HtmlPage{Description: "a", HTMLContent: "b", Status: model.StatusConditioned}, []string{"date_start"}},
		{"conditioned open ended", model.HtmlPage{Description: "a", HTMLContent: "b", Status: model.StatusConditioned, DateStart: ptr(start)}, nil},
		{"end before start", model.HtmlPage{Description: "a", HTMLContent: "b", Status: model.StatusConditioned,
			DateStart: ptr(start), DateEnd: ptr(start.Add(-time.Second))}, []string{"date_end"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.page
			err := Validate(&p)
			if tt.fields == nil {
				require.NoError(t, err)
				assert.Equal(t, model.WorkgroupAll, p.Workgroup)
				assert.Equal(t, model.RoleNone, p.Role)
				return
			}
			var ve *model.ValidationError
			require.ErrorAs(t, err, &ve)
			for _, f := range tt.fields {
				assert.Contains(t, ve.Fields, f)
			}
		})
	}
}

func TestCreate_ValidationBeforePersistence(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.Create(context.Background(), &model.HtmlPage{HTMLContent: "x"})
	assert.True(t, model.IsValidationError(err))
	assert.Empty(t, f.store.pages)
	assert.Empty(t, f.subs.take())
}

// Enabled create emits exactly one CREATE keyed by the id.
func TestCreate_EmitsCreateIntent(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	page, err := f.svc.Create(ctx, enabledPage("A"))
	require.NoError(t, err)
	assert.NotZero(t, page.ID)
	assert.Equal(t, []intent{{strconv.FormatInt(page.ID, 10), indexer.ActionCreate}}, f.subs.take())
	assert.Equal(t, []string{"create:" + strconv.FormatInt(page.ID, 10)}, f.bus.messages)

	off := &model.HtmlPage{Description: "off", HTMLContent: "x", Status: model.StatusDisabled}
	_, err = f.svc.Create(ctx, off)
	require.NoError(t, err)
	assert.Empty(t, f.subs.take())
}

// With the indexer disabled, writes succeed and leave the queue alone.
func TestWrites_IndexerDisabled(t *testing.T) {
	subs := &recordingSubmitter{}
	mem := newMemStore()
	ix := indexer.New(nil, indexer.Options{Enabled: false, Logger: testutil.TestLoggerSilent()})
	svc := NewHtmlPageService(HtmlPageServiceConfig{
		Store:    mem,
		Notifier: ix.Notifier(subs),
		Logger:   testutil.TestLoggerSilent(),
	})
	ctx := context.Background()

	page, err := svc.Create(ctx, enabledPage("A"))
	require.NoError(t, err)
	page.Status = model.StatusDisabled
	_, err = svc.Update(ctx, page)
	require.NoError(t, err)
	require.NoError(t, svc.Remove(ctx, page.ID))

	assert.Empty(t, subs.take())
	assert.Empty(t, mem.pages)
}

// Enabled to disabled emits exactly one DELETE with the composite key.
func TestUpdate_EnabledToDisabled(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	page, err := f.svc.Create(ctx, enabledPage("A"))
	require.NoError(t, err)
	f.subs.take()

	page.Status = model.StatusDisabled
	_, err = f.svc.Update(ctx, page)
	require.NoError(t, err)

	assert.Equal(t, []intent{{strconv.FormatInt(page.ID, 10) + "_hpg", indexer.ActionDelete}}, f.subs.take())
}

// Disabled to enabled emits exactly one MODIFY.
func TestUpdate_DisabledToEnabled(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	page, err := f.svc.Create(ctx, &model.HtmlPage{Description: "A", HTMLContent: "x", Status: model.StatusDisabled})
	require.NoError(t, err)

	page.Status = model.StatusEnabled
	_, err = f.svc.Update(ctx, page)
	require.NoError(t, err)

	assert.Equal(t, []intent{{strconv.FormatInt(page.ID, 10), indexer.ActionModify}}, f.subs.take())

	page.Status = model.StatusDisabled
	_, _ = f.svc.Update(ctx, page)
	f.subs.take()
	page.HTMLContent = "y"
	_, err = f.svc.Update(ctx, page)
	require.NoError(t, err)
	assert.Empty(t, f.subs.take(), "disabled to disabled emits nothing")
}

func TestUpdate_NotFound(t *testing.T) {
	f := newFixture(t, true)
	p := enabledPage("ghost")
	p.ID = 404

	_, err := f.svc.Update(context.Background(), p)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

// Removing an enabled page hides it and emits exactly one DELETE.
func TestRemove_EnabledPage(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	page, err := f.svc.Create(ctx, enabledPage("A"))
	require.NoError(t, err)
	_, err = f.svc.GetPublicPage(ctx, page.ID)
	require.NoError(t, err)
	f.subs.take()

	require.NoError(t, f.svc.Remove(ctx, page.ID))

	_, err = f.svc.GetPublicPage(ctx, page.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, []intent{{strconv.FormatInt(page.ID, 10) + "_hpg", indexer.ActionDelete}}, f.subs.take())

	assert.ErrorIs(t, f.svc.Remove(ctx, page.ID), model.ErrNotFound)
}

// A conditioned page disappears once the clock passes its end date and the
// record stays in the store.
func TestConditionedPage_ExpiresWithClock(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	now := f.clock.Now()

	page, err := f.svc.Create(ctx, &model.HtmlPage{
		Description: "A",
		HTMLContent: "<p>hi</p>",
		Status:      model.StatusConditioned,
		DateStart:   ptr(now.Add(-24 * time.Hour)),
		DateEnd:     ptr(now.Add(24 * time.Hour)),
	})
	require.NoError(t, err)

	got, err := f.svc.GetPublicPage(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Description)

	f.clock.Advance(48 * time.Hour)

	_, err = f.svc.GetPublicPage(ctx, page.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	stored, err := f.svc.Get(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, page.ID, stored.ID)
}

func TestIndexingFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t, true)
	f.subs.err = errors.New("index unavailable")

	page, err := f.svc.Create(context.Background(), enabledPage("A"))
	require.NoError(t, err)
	assert.Contains(t, f.store.pages, page.ID)
}

func TestGetPublicPageList_RoleFiltering(t *testing.T) {
	ctx := context.Background()

	for _, authEnabled := range []bool{true, false} {
		f := newFixture(t, authEnabled)
		open, _ := f.svc.Create(ctx, enabledPage("open"))
		members := enabledPage("members")
		members.Role = "members"
		restricted, _ := f.svc.Create(ctx, members)

		anon, err := f.svc.GetPublicPageList(ctx, auth.Anonymous)
		require.NoError(t, err)
		member, err := f.svc.GetPublicPageList(ctx, auth.Roles{"members"})
		require.NoError(t, err)

		if authEnabled {
			assert.Len(t, anon, 1)
			assert.Equal(t, open.ID, anon[0].ID)
			assert.Len(t, member, 2)

			_, err = f.svc.GetVisiblePage(ctx, restricted.ID, auth.Anonymous)
			assert.ErrorIs(t, err, model.ErrNotAuthorized)
		} else {
			assert.Len(t, anon, 2, "authentication disabled shows everything")
		}
	}
}

func TestDuplicate(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	orig := enabledPage("Footer")
	orig.Workgroup = "editors"
	orig.Role = "members"
	page, err := f.svc.Create(ctx, orig)
	require.NoError(t, err)

	dup, err := f.svc.Duplicate(ctx, page.ID)
	require.NoError(t, err)
	assert.NotEqual(t, page.ID, dup.ID)
	assert.Equal(t, page.Description, dup.Description)
	assert.Equal(t, page.HTMLContent, dup.HTMLContent)
	assert.Equal(t, page.Workgroup, dup.Workgroup)
	assert.Equal(t, page.Role, dup.Role)

	_, err = f.svc.Duplicate(ctx, 999)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestEnabledStoreReads(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	now := f.clock.Now()

	on, _ := f.svc.Create(ctx, enabledPage("on"))
	later, _ := f.svc.Create(ctx, &model.HtmlPage{Description: "later", HTMLContent: "x",
		Status: model.StatusConditioned, DateStart: ptr(now.Add(time.Hour))})

	_, err := f.svc.GetEnabledPage(ctx, on.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetEnabledPage(ctx, later.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	pages, err := f.svc.ListEnabledPages(ctx)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, on.ID, pages[0].ID)
}

func TestListPage_WorkgroupsAndPaging(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	for _, tc := range []struct{ desc, wg string }{
		{"a", "alpha"}, {"b", "beta"}, {"c", model.WorkgroupAll}, {"d", "alpha"},
	} {
		p := enabledPage(tc.desc)
		p.Workgroup = tc.wg
		_, err := f.svc.Create(ctx, p)
		require.NoError(t, err)
	}

	list, err := f.svc.ListPage(ctx, 0, 10, []string{"alpha"})
	require.NoError(t, err)
	assert.Equal(t, 3, list.Total)
	descs := []string{}
	for _, p := range list.Items {
		descs = append(descs, p.Description)
	}
	assert.Equal(t, []string{"a", "c", "d"}, descs)

	list, err = f.svc.ListPage(ctx, 1, 1, []string{"all"})
	require.NoError(t, err)
	assert.Equal(t, 4, list.Total)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "b", list.Items[0].Description)

	list, err = f.svc.ListPage(ctx, 50, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, list.Items)
	assert.Equal(t, 1, list.Total, "no workgroups still sees shared pages")
}

func TestIncludeMarkers(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	open, _ := f.svc.Create(ctx, enabledPage("open"))
	restricted := enabledPage("members")
	restricted.Role = "members"
	_, _ = f.svc.Create(ctx, restricted)

	markers, err := f.svc.IncludeMarkers(ctx, auth.Anonymous)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"htmlpage_" + strconv.FormatInt(open.ID, 10): "<p>open</p>",
	}, markers)
}

func TestCanRemoveWorkgroup(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	p := enabledPage("a")
	p.Workgroup = "editors"
	_, _ = f.svc.Create(ctx, p)

	ok, err := f.svc.CanRemoveWorkgroup(ctx, "editors")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.CanRemoveWorkgroup(ctx, "marketing")
	require.NoError(t, err)
	assert.True(t, ok)
}

type fakeSearcher struct {
	hits []indexer.Hit
}

func (s *fakeSearcher) Search(context.Context, string, int) ([]indexer.Hit, error) { return s.hits, nil }
func (s *fakeSearcher) IndexAll(context.Context) (indexer.Rebuild, error) {
	return indexer.Rebuild{RunID: "run-1", Documents: len(s.hits)}, nil
}

func TestSearch_FiltersInactiveAndHidden(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	open, _ := f.svc.Create(ctx, enabledPage("open"))
	hidden := enabledPage("hidden")
	hidden.Role = "members"
	secret, _ := f.svc.Create(ctx, hidden)

	f.svc.search = &fakeSearcher{hits: []indexer.Hit{
		{PageID: open.ID, URL: "/htmlpage/1"},
		{PageID: secret.ID},
		{PageID: 999},
	}}

	results, err := f.svc.Search(ctx, "x", auth.Anonymous, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, open.ID, results[0].Page.ID)

	rebuild, err := f.svc.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, indexer.Rebuild{RunID: "run-1", Documents: 3}, rebuild)
}

func TestStoreFailureSurfaces(t *testing.T) {
	f := newFixture(t, true)
	boom := errors.New("db down")
	f.store.err = boom

	_, err := f.svc.Create(context.Background(), enabledPage("A"))
	assert.ErrorIs(t, err, boom)

	_, err = f.svc.GetPublicPageList(context.Background(), auth.Anonymous)
	assert.ErrorIs(t, err, boom)
}
