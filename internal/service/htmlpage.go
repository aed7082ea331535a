// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package service implements html page administration and visibility-gated
// public access.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/olegiv/ocms-htmlpage/internal/auth"
	"github.com/olegiv/ocms-htmlpage/internal/cache"
	"github.com/olegiv/ocms-htmlpage/internal/indexer"
	"github.com/olegiv/ocms-htmlpage/internal/model"
	"github.com/olegiv/ocms-htmlpage/internal/store"
)

// IncludeMarkerPrefix prefixes the template markers filled by IncludeMarkers.
const IncludeMarkerPrefix = "htmlpage_"

// PageStore persists html pages. *store.Queries implements it.
type PageStore interface {
	CreateHtmlPage(ctx context.Context, arg store.CreateHtmlPageParams) (model.HtmlPage, error)
	UpdateHtmlPage(ctx context.Context, arg store.UpdateHtmlPageParams) error
	DeleteHtmlPage(ctx context.Context, id int64) error
	GetHtmlPage(ctx context.Context, id int64) (model.HtmlPage, error)
	ListHtmlPages(ctx context.Context) ([]model.HtmlPage, error)
	GetEnabledHtmlPage(ctx context.Context, id int64) (model.HtmlPage, error)
	ListEnabledHtmlPages(ctx context.Context) ([]model.HtmlPage, error)
	ListHtmlPageIDs(ctx context.Context, workgroups []string) ([]int64, error)
	ListHtmlPagesByIDs(ctx context.Context, ids []int64) ([]model.HtmlPage, error)
	CountHtmlPagesByWorkgroup(ctx context.Context, workgroup string) (int64, error)
}

// Searcher answers full-text queries and rebuilds the index.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]indexer.Hit, error)
	IndexAll(ctx context.Context) (indexer.Rebuild, error)
}

// HtmlPageServiceConfig wires an HtmlPageService.
type HtmlPageServiceConfig struct {
	Store PageStore
	// Cache defaults to a PageCache over Store.
	Cache    *cache.PageCache
	Notifier *indexer.Notifier
	// Search may be nil when full-text search is unavailable.
	Search Searcher
	// Bus defaults to cache.NopBus.
	Bus                   cache.Bus
	AuthenticationEnabled bool
	Logger                *slog.Logger
	Now                   func() time.Time
}

// HtmlPageService manages html pages and serves the ones visitors may see.
type HtmlPageService struct {
	store       PageStore
	cache       *cache.PageCache
	notifier    *indexer.Notifier
	search      Searcher
	bus         cache.Bus
	authEnabled bool
	logger      *slog.Logger
	now         func() time.Time
}

// PageList is one page of the admin listing.
type PageList struct {
	Items  []model.HtmlPage `json:"items"`
	Total  int              `json:"total"`
	Offset int              `json:"offset"`
	Limit  int              `json:"limit"`
}

// SearchResult pairs a search hit with its page.
type SearchResult struct {
	Page    *model.HtmlPage `json:"page"`
	URL     string          `json:"url"`
	Snippet string          `json:"snippet"`
}

// NewHtmlPageService creates an HtmlPageService.
func NewHtmlPageService(cfg HtmlPageServiceConfig) *HtmlPageService {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewPageCache(cfg.Store, cache.PageCacheOptions{Logger: cfg.Logger, Now: cfg.Now})
	}
	if cfg.Bus == nil {
		cfg.Bus = cache.NopBus{}
	}
	return &HtmlPageService{
		store:       cfg.Store,
		cache:       cfg.Cache,
		notifier:    cfg.Notifier,
		search:      cfg.Search,
		bus:         cfg.Bus,
		authEnabled: cfg.AuthenticationEnabled,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
}

// Cache returns the page cache.
func (s *HtmlPageService) Cache() *cache.PageCache {
	return s.cache
}

// Validate normalizes page defaults and checks mandatory fields and the date
// window.
func Validate(page *model.HtmlPage) error {
	page.Description = strings.TrimSpace(page.Description)
	page.Workgroup = strings.TrimSpace(page.Workgroup)
	if page.Workgroup == "" {
		page.Workgroup = model.WorkgroupAll
	}
	page.Role = strings.TrimSpace(page.Role)
	if page.Role == "" {
		page.Role = model.RoleNone
	}

	ve := model.NewValidationError()
	if page.Description == "" {
		ve.Add("description", "Description is required")
	}
	if strings.TrimSpace(page.HTMLContent) == "" {
		ve.Add("html_content", "HTML content is required")
	}
	if !page.Status.Valid() {
		ve.Add("status", "Status must be 0 (disabled), 1 (enabled) or 2 (conditioned)")
	}
	if page.Status == model.StatusConditioned && page.DateStart == nil {
		ve.Add("date_start", "Start date is required for conditioned pages")
	}
	if page.DateStart != nil && page.DateEnd != nil && page.DateEnd.Before(*page.DateStart) {
		ve.Add("date_end", "End date must not be before start date")
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}

// Create validates and stores a new page. The store assigns its id.
func (s *HtmlPageService) Create(ctx context.Context, page *model.HtmlPage) (*model.HtmlPage, error) {
	if err := Validate(page); err != nil {
		return nil, err
	}

	created, err := s.store.CreateHtmlPage(ctx, store.HtmlPageParams(page, s.now()))
	if err != nil {
		return nil, fmt.Errorf("creating html page: %w", err)
	}

	s.notify(func() { s.notifier.Created(ctx, &created) })
	s.afterWrite(ctx, created.ID, "create")

	s.logger.Info("html page created", "page_id", created.ID, "status", created.Status.String())
	return &created, nil
}

// Update validates and stores new values for an existing page.
func (s *HtmlPageService) Update(ctx context.Context, page *model.HtmlPage) (*model.HtmlPage, error) {
	if err := Validate(page); err != nil {
		return nil, err
	}

	previous, err := s.store.GetHtmlPage(ctx, page.ID)
	if err != nil {
		return nil, fmt.Errorf("loading html page %d: %w", page.ID, err)
	}
	now := s.now()
	wasEnabled := previous.IsEnabledAt(now)

	if err := s.store.UpdateHtmlPage(ctx, store.HtmlPageUpdateParams(page, now)); err != nil {
		return nil, fmt.Errorf("updating html page %d: %w", page.ID, err)
	}

	updated, err := s.store.GetHtmlPage(ctx, page.ID)
	if err != nil {
		return nil, fmt.Errorf("reloading html page %d: %w", page.ID, err)
	}

	s.notify(func() { s.notifier.Updated(ctx, &updated, wasEnabled) })
	s.afterWrite(ctx, updated.ID, "update")

	s.logger.Info("html page updated", "page_id", updated.ID, "status", updated.Status.String())
	return &updated, nil
}

// Remove deletes a page.
func (s *HtmlPageService) Remove(ctx context.Context, id int64) error {
	page, err := s.store.GetHtmlPage(ctx, id)
	if err != nil {
		return fmt.Errorf("loading html page %d: %w", id, err)
	}

	if err := s.store.DeleteHtmlPage(ctx, id); err != nil {
		return fmt.Errorf("deleting html page %d: %w", id, err)
	}

	s.notify(func() { s.notifier.Removed(ctx, &page) })
	s.afterWrite(ctx, id, "remove")

	s.logger.Info("html page removed", "page_id", id)
	return nil
}

// Duplicate stores a copy of an existing page under a new id.
func (s *HtmlPageService) Duplicate(ctx context.Context, id int64) (*model.HtmlPage, error) {
	page, err := s.store.GetHtmlPage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading html page %d: %w", id, err)
	}
	return s.Create(ctx, page.Duplicate())
}

// Get returns any page regardless of status.
func (s *HtmlPageService) Get(ctx context.Context, id int64) (*model.HtmlPage, error) {
	page, err := s.store.GetHtmlPage(ctx, id)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// GetEnabledPage reads an active page straight from the store.
func (s *HtmlPageService) GetEnabledPage(ctx context.Context, id int64) (*model.HtmlPage, error) {
	page, err := s.store.GetEnabledHtmlPage(ctx, id)
	if err != nil {
		return nil, err
	}
	if !page.IsEnabledAt(s.now()) {
		return nil, model.ErrNotFound
	}
	return &page, nil
}

// ListEnabledPages reads every active page straight from the store.
func (s *HtmlPageService) ListEnabledPages(ctx context.Context) ([]model.HtmlPage, error) {
	pages, err := s.store.ListEnabledHtmlPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing enabled html pages: %w", err)
	}
	now := s.now()
	active := pages[:0]
	for _, p := range pages {
		if p.IsEnabledAt(now) {
			active = append(active, p)
		}
	}
	return active, nil
}

// GetPublicPage returns a page that is active now, or model.ErrNotFound.
func (s *HtmlPageService) GetPublicPage(ctx context.Context, id int64) (*model.HtmlPage, error) {
	return s.cache.GetByID(ctx, id)
}

// GetVisiblePage returns an active page the viewer may see. It returns
// model.ErrNotAuthorized when the page exists but is role-restricted.
func (s *HtmlPageService) GetVisiblePage(ctx context.Context, id int64, viewer auth.Viewer) (*model.HtmlPage, error) {
	page, err := s.GetPublicPage(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.IsVisible(page, viewer) {
		return nil, model.ErrNotAuthorized
	}
	return page, nil
}

// GetPublicPageList returns the active pages the viewer may see, ordered by
// description then id descending.
func (s *HtmlPageService) GetPublicPageList(ctx context.Context, viewer auth.Viewer) ([]model.HtmlPage, error) {
	pages, err := s.cache.GetAllActive(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]model.HtmlPage, 0, len(pages))
	for i := range pages {
		if s.IsVisible(&pages[i], viewer) {
			visible = append(visible, pages[i])
		}
	}
	return visible, nil
}

// IsVisible reports whether viewer may see page.
func (s *HtmlPageService) IsVisible(page *model.HtmlPage, viewer auth.Viewer) bool {
	return auth.IsVisible(page.Role, viewer, s.authEnabled)
}

// IncludeMarkers maps "htmlpage_{id}" to the content of every active page
// the viewer may see, for embedding in other templates.
func (s *HtmlPageService) IncludeMarkers(ctx context.Context, viewer auth.Viewer) (map[string]string, error) {
	pages, err := s.GetPublicPageList(ctx, viewer)
	if err != nil {
		return nil, err
	}
	markers := make(map[string]string, len(pages))
	for _, p := range pages {
		markers[IncludeMarkerPrefix+strconv.FormatInt(p.ID, 10)] = p.HTMLContent
	}
	return markers, nil
}

// ListPage returns pages for the admin listing, ordered by description then
// id descending. Admins see pages of their workgroups plus shared pages; a
// workgroup list containing "all" sees everything.
func (s *HtmlPageService) ListPage(ctx context.Context, offset, limit int, workgroups []string) (*PageList, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}

	ids, err := s.store.ListHtmlPageIDs(ctx, workgroupFilter(workgroups))
	if err != nil {
		return nil, fmt.Errorf("listing html page ids: %w", err)
	}

	list := &PageList{Items: []model.HtmlPage{}, Total: len(ids), Offset: offset, Limit: limit}
	if offset >= len(ids) {
		return list, nil
	}
	window := ids[offset:min(offset+limit, len(ids))]

	pages, err := s.store.ListHtmlPagesByIDs(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("loading html pages: %w", err)
	}
	byID := make(map[int64]model.HtmlPage, len(pages))
	for _, p := range pages {
		byID[p.ID] = p
	}
	for _, id := range window {
		if p, ok := byID[id]; ok {
			list.Items = append(list.Items, p)
		}
	}
	return list, nil
}

// CanRemoveWorkgroup reports whether no page references the workgroup.
func (s *HtmlPageService) CanRemoveWorkgroup(ctx context.Context, key string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return true, nil
	}
	n, err := s.store.CountHtmlPagesByWorkgroup(ctx, key)
	if err != nil {
		return false, fmt.Errorf("counting pages in workgroup %q: %w", key, err)
	}
	return n == 0, nil
}

// Search returns the active pages matching query that the viewer may see.
func (s *HtmlPageService) Search(ctx context.Context, query string, viewer auth.Viewer, limit int) ([]SearchResult, error) {
	if s.search == nil {
		return []SearchResult{}, nil
	}
	hits, err := s.search.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		page, err := s.cache.GetByID(ctx, h.PageID)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !s.IsVisible(page, viewer) {
			continue
		}
		results = append(results, SearchResult{Page: page, URL: h.URL, Snippet: h.Snippet})
	}
	return results, nil
}

// Reindex rebuilds the search index.
func (s *HtmlPageService) Reindex(ctx context.Context) (indexer.Rebuild, error) {
	if s.search == nil {
		return indexer.Rebuild{}, nil
	}
	rebuild, err := s.search.IndexAll(ctx)
	if err != nil {
		return indexer.Rebuild{}, fmt.Errorf("rebuilding search index: %w", err)
	}
	return rebuild, nil
}

// RefreshCache reloads the page cache.
func (s *HtmlPageService) RefreshCache(ctx context.Context) (cache.Stats, error) {
	if _, err := s.cache.Refresh(ctx); err != nil {
		return s.cache.Stats(), err
	}
	return s.cache.Stats(), nil
}

func (s *HtmlPageService) notify(fn func()) {
	if s.notifier != nil {
		fn()
	}
}

// afterWrite reloads the local cache and tells peers to drop theirs.
func (s *HtmlPageService) afterWrite(ctx context.Context, id int64, reason string) {
	if _, err := s.cache.Refresh(ctx); err != nil {
		s.logger.Warn("page cache refresh failed", "category", model.EventCategoryCache, "page_id", id, "error", err)
	}
	if err := s.bus.Publish(ctx, id, reason); err != nil {
		s.logger.Warn("cache invalidation not published", "category", model.EventCategoryCache, "page_id", id, "error", err)
	}
}

func workgroupFilter(workgroups []string) []string {
	filter := []string{model.WorkgroupAll}
	for _, wg := range workgroups {
		wg = strings.TrimSpace(wg)
		if wg == model.WorkgroupAll {
			return nil
		}
		if wg != "" {
			filter = append(filter, wg)
		}
	}
	return filter
}
