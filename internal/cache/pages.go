// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olegiv/ocms-htmlpage/internal/auth"
	"github.com/olegiv/ocms-htmlpage/internal/model"
)

// PageLoader reads pages from the backing store.
type PageLoader interface {
	GetHtmlPage(ctx context.Context, id int64) (model.HtmlPage, error)
	ListHtmlPages(ctx context.Context) ([]model.HtmlPage, error)
}

// PageCacheOptions configures a PageCache.
type PageCacheOptions struct {
	Logger *slog.Logger
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// snapshot is never mutated after it is published.
type snapshot struct {
	byID     map[int64]*model.HtmlPage
	loadedAt time.Time
}

// PageCache serves active pages from an immutable snapshot of every record.
// Readers never block; refreshes are serialized and swap the snapshot whole.
type PageCache struct {
	loader PageLoader
	logger *slog.Logger
	now    func() time.Time

	snap      atomic.Pointer[snapshot]
	refreshMu sync.Mutex
	// epoch advances on every Invalidate. A refresh that overlaps one does
	// not keep its snapshot.
	epoch atomic.Uint64

	hits          atomic.Int64
	misses        atomic.Int64
	refreshes     atomic.Int64
	invalidations atomic.Int64
}

// NewPageCache creates an empty cache. The first read loads it.
func NewPageCache(loader PageLoader, opts PageCacheOptions) *PageCache {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &PageCache{
		loader: loader,
		logger: opts.Logger,
		now:    opts.Now,
	}
}

// GetByID returns the page if it is active now, otherwise model.ErrNotFound.
//
// Role-restricted pages are always re-read from the store. A miss, or a hit
// on a page that is no longer active, reads the store and reloads the cache
// when the page exists.
func (c *PageCache) GetByID(ctx context.Context, id int64) (*model.HtmlPage, error) {
	now := c.now()

	if s := c.snap.Load(); s != nil {
		if p, ok := s.byID[id]; ok {
			if auth.IsRoleRestricted(p.Role) {
				c.misses.Add(1)
				fresh, err := c.loader.GetHtmlPage(ctx, id)
				if err != nil {
					return nil, err
				}
				return activeOrNotFound(&fresh, now)
			}
			if p.IsActiveAt(now) {
				c.hits.Add(1)
				return p.Clone(), nil
			}
		}
	}

	c.misses.Add(1)
	page, err := c.loader.GetHtmlPage(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Warn("page cache refresh failed", "page_id", id, "error", err)
	}
	return activeOrNotFound(&page, now)
}

// GetAllActive returns every page active now, ordered by description then
// id descending. An empty cache is loaded first.
func (c *PageCache) GetAllActive(ctx context.Context) ([]model.HtmlPage, error) {
	now := c.now()

	var candidates []*model.HtmlPage
	if s := c.snap.Load(); s != nil && len(s.byID) > 0 {
		c.hits.Add(1)
		candidates = make([]*model.HtmlPage, 0, len(s.byID))
		for _, p := range s.byID {
			candidates = append(candidates, p)
		}
	} else {
		c.misses.Add(1)
		all, err := c.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		candidates = make([]*model.HtmlPage, 0, len(all))
		for i := range all {
			candidates = append(candidates, &all[i])
		}
	}

	active := make([]model.HtmlPage, 0, len(candidates))
	for _, p := range candidates {
		if p.IsActiveAt(now) {
			active = append(active, *p.Clone())
		}
	}
	SortPages(active)
	return active, nil
}

// Refresh reloads every page and replaces the snapshot. It returns the full
// unfiltered list. On failure the snapshot is dropped.
func (c *PageCache) Refresh(ctx context.Context) ([]model.HtmlPage, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	epoch := c.epoch.Load()
	pages, err := c.loader.ListHtmlPages(ctx)
	if err != nil {
		c.snap.Store(nil)
		return nil, fmt.Errorf("refreshing page cache: %w", err)
	}

	byID := make(map[int64]*model.HtmlPage, len(pages))
	for i := range pages {
		byID[pages[i].ID] = pages[i].Clone()
	}
	next := &snapshot{byID: byID, loadedAt: c.now()}
	c.snap.Store(next)
	c.refreshes.Add(1)
	if c.epoch.Load() != epoch {
		c.snap.CompareAndSwap(next, nil)
		c.logger.Debug("page cache invalidated during refresh, snapshot discarded")
		return pages, nil
	}

	c.logger.Debug("page cache refreshed", "items", len(byID))
	return pages, nil
}

// Invalidate drops the snapshot. The next read reloads it.
func (c *PageCache) Invalidate() {
	c.epoch.Add(1)
	c.snap.Store(nil)
	c.invalidations.Add(1)
}

// Stats returns cache statistics.
func (c *PageCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	stats := Stats{
		Hits:          hits,
		Misses:        misses,
		Refreshes:     c.refreshes.Load(),
		Invalidations: c.invalidations.Load(),
		HitRate:       hitRate(hits, misses),
	}
	if s := c.snap.Load(); s != nil {
		stats.Items = len(s.byID)
		loadedAt := s.loadedAt
		stats.LoadedAt = &loadedAt
	}
	return stats
}

// ResetStats zeroes the counters.
func (c *PageCache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.refreshes.Store(0)
	c.invalidations.Store(0)
}

// Follow invalidates the cache for every message received on bus until ctx
// is cancelled.
func (c *PageCache) Follow(ctx context.Context, bus Bus) error {
	err := bus.Subscribe(ctx, func(msg Message) {
		c.logger.Debug("page cache invalidated by peer", "node", msg.Node, "page_id", msg.PageID)
		c.Invalidate()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// SortPages orders pages by description ascending, then id descending.
func SortPages(pages []model.HtmlPage) {
	slices.SortFunc(pages, func(a, b model.HtmlPage) int {
		if c := cmp.Compare(a.Description, b.Description); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

func activeOrNotFound(p *model.HtmlPage, now time.Time) (*model.HtmlPage, error) {
	if !p.IsActiveAt(now) {
		return nil, model.ErrNotFound
	}
	return p, nil
}
