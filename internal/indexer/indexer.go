// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package indexer keeps the full-text search index in step with html pages.
// Page writes enqueue indexing actions; the Indexer drains the queue into an
// FTS5 table and answers search queries.
package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/olegiv/ocms-htmlpage/internal/model"
	"github.com/olegiv/ocms-htmlpage/internal/store"
)

// Identifiers shared with the search index.
const (
	ShortName          = "hpg"
	DocumentType       = "htmlpage"
	DefaultIndexerName = "HtmlPageIndexer"
	DefaultBatchSize   = 100
)

// DocumentUID returns the index key of a page's document.
func DocumentUID(id int64) string {
	return strconv.FormatInt(id, 10) + "_" + ShortName
}

// Document is the searchable form of a page.
type Document struct {
	UID      string
	URL      string
	Type     string
	Title    string
	Contents string
}

// Hit is a search result.
type Hit struct {
	PageID  int64   `json:"page_id"`
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Rank    float64 `json:"rank"`
}

// Options configures an Indexer.
type Options struct {
	// Name identifies this indexer's rows in the action queue.
	Name string
	// Enabled turns queue processing and rebuilds on. Search always works.
	Enabled bool
	// BaseURL prefixes document URLs.
	BaseURL   string
	BatchSize int
	Logger    *slog.Logger
	Now       func() time.Time
}

// Indexer maintains the search_documents table.
type Indexer struct {
	db        *sql.DB
	queries   *store.Queries
	name      string
	enabled   bool
	baseURL   string
	batchSize int
	logger    *slog.Logger
	now       func() time.Time

	text      *bluemonday.Policy
	highlight *bluemonday.Policy
}

// New creates an Indexer over db.
func New(db *sql.DB, opts Options) *Indexer {
	if opts.Name == "" {
		opts.Name = DefaultIndexerName
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	text := bluemonday.StrictPolicy()
	text.AddSpaceWhenStrippingTag(true)

	return &Indexer{
		db:        db,
		queries:   store.New(db),
		name:      opts.Name,
		enabled:   opts.Enabled,
		baseURL:   strings.TrimSuffix(opts.BaseURL, "/"),
		batchSize: opts.BatchSize,
		logger:    opts.Logger,
		now:       opts.Now,
		text:      text,
		highlight: bluemonday.NewPolicy().AllowElements("mark"),
	}
}

// Name returns the indexer name used in the action queue.
func (ix *Indexer) Name() string {
	return ix.name
}

// Enabled reports whether queue processing is on.
func (ix *Indexer) Enabled() bool {
	return ix.enabled
}

// Notifier returns a Notifier feeding this indexer's queue. It returns nil
// when the indexer is disabled so that page writes leave the queue alone.
func (ix *Indexer) Notifier(submitter Submitter) *Notifier {
	if !ix.enabled {
		return nil
	}
	return NewNotifier(submitter, ix.name, ix.logger, ix.now)
}

// PageURL returns the public URL of a page.
func (ix *Indexer) PageURL(id int64) string {
	return ix.baseURL + "/htmlpage/" + strconv.FormatInt(id, 10)
}

// BuildDocument converts a page into its searchable form.
func (ix *Indexer) BuildDocument(page *model.HtmlPage, url string) Document {
	return Document{
		UID:      DocumentUID(page.ID),
		URL:      url,
		Type:     DocumentType,
		Title:    page.Description,
		Contents: page.Description + " " + ix.PlainText(page.HTMLContent),
	}
}

// PlainText reduces HTML to whitespace-normalized text.
func (ix *Indexer) PlainText(s string) string {
	s = ix.text.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// ProcessPending drains queued actions in order and returns how many were
// applied. Each action is applied and dequeued in one transaction.
func (ix *Indexer) ProcessPending(ctx context.Context) (int, error) {
	if !ix.enabled {
		return 0, nil
	}

	processed := 0
	for {
		actions, err := ix.queries.ListIndexerActions(ctx, ix.name, int64(ix.batchSize))
		if err != nil {
			return processed, fmt.Errorf("listing indexer actions: %w", err)
		}
		if len(actions) == 0 {
			return processed, nil
		}

		for _, a := range actions {
			if err := ix.apply(ctx, a); err != nil {
				return processed, fmt.Errorf("applying %s %s: %w", a.Task, a.DocKey, err)
			}
			processed++
		}
	}
}

func (ix *Indexer) apply(ctx context.Context, a store.IndexerAction) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	q := ix.queries.WithTx(tx)

	switch Action(a.Task) {
	case ActionDelete:
		if err := q.DeleteSearchDocument(ctx, a.DocKey); err != nil {
			return err
		}
	case ActionCreate, ActionModify:
		id, err := strconv.ParseInt(a.DocKey, 10, 64)
		if err != nil {
			ix.logger.Warn("dropping indexer action with bad key", "category", model.EventCategoryIndex, "key", a.DocKey)
			break
		}
		if err := ix.reindexPage(ctx, q, id); err != nil {
			return err
		}
	default:
		ix.logger.Warn("dropping unknown indexer action", "category", model.EventCategoryIndex, "task", a.Task)
	}

	if err := q.DeleteIndexerAction(ctx, a.ID); err != nil {
		return err
	}
	return tx.Commit()
}

// reindexPage replaces a page's document, or removes it when the page is
// gone or no longer enabled.
func (ix *Indexer) reindexPage(ctx context.Context, q *store.Queries, id int64) error {
	uid := DocumentUID(id)
	if err := q.DeleteSearchDocument(ctx, uid); err != nil {
		return err
	}

	page, err := q.GetHtmlPage(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !page.IsEnabledAt(ix.now()) {
		return nil
	}
	return q.InsertSearchDocument(ctx, ix.storeDocument(&page))
}

// Rebuild reports a full index rebuild.
type Rebuild struct {
	RunID     string `json:"run_id"`
	Documents int    `json:"documents"`
}

// IndexAll rebuilds every enabled page's document and clears the queue.
// A disabled indexer returns a zero Rebuild.
func (ix *Indexer) IndexAll(ctx context.Context) (Rebuild, error) {
	if !ix.enabled {
		return Rebuild{}, nil
	}
	runID := uuid.NewString()
	started := time.Now()

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return Rebuild{}, fmt.Errorf("starting reindex: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	q := ix.queries.WithTx(tx)

	if err := q.DeleteSearchDocumentsByType(ctx, DocumentType); err != nil {
		return Rebuild{}, fmt.Errorf("clearing documents: %w", err)
	}

	pages, err := q.ListEnabledHtmlPages(ctx)
	if err != nil {
		return Rebuild{}, fmt.Errorf("listing enabled pages: %w", err)
	}

	now := ix.now()
	written := 0
	for i := range pages {
		if !pages[i].IsEnabledAt(now) {
			continue
		}
		if err := q.InsertSearchDocument(ctx, ix.storeDocument(&pages[i])); err != nil {
			return Rebuild{}, fmt.Errorf("indexing page %d: %w", pages[i].ID, err)
		}
		written++
	}

	if err := q.DeleteIndexerActionsByIndexer(ctx, ix.name); err != nil {
		return Rebuild{}, fmt.Errorf("clearing queue: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Rebuild{}, fmt.Errorf("committing reindex: %w", err)
	}

	ix.logger.Info("search index rebuilt", "run_id", runID, "documents", written, "duration", time.Since(started))
	return Rebuild{RunID: runID, Documents: written}, nil
}

// Pending returns the number of queued actions.
func (ix *Indexer) Pending(ctx context.Context) (int64, error) {
	if !ix.enabled {
		return 0, nil
	}
	return ix.queries.CountIndexerActions(ctx, ix.name)
}

// Search returns pages matching query, best first.
func (ix *Indexer) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	match := escapeQuery(query)
	if match == "" {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := ix.queries.SearchDocuments(ctx, store.SearchDocumentsParams{
		Query: match,
		Type:  DocumentType,
		Limit: int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}

	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		id, err := strconv.ParseInt(strings.TrimSuffix(r.UID, "_"+ShortName), 10, 64)
		if err != nil {
			continue
		}
		hits = append(hits, Hit{
			PageID:  id,
			Title:   r.Title,
			URL:     r.URL,
			Snippet: strings.TrimSpace(ix.highlight.Sanitize(r.Snippet)),
			Rank:    r.Rank,
		})
	}
	return hits, nil
}

func (ix *Indexer) storeDocument(page *model.HtmlPage) store.SearchDocument {
	doc := ix.BuildDocument(page, ix.PageURL(page.ID))
	return store.SearchDocument{
		UID:      doc.UID,
		URL:      doc.URL,
		Type:     doc.Type,
		Title:    doc.Title,
		Contents: doc.Contents,
	}
}

var queryStrip = regexp.MustCompile(`[^\p{L}\p{N}\s_-]`)

// escapeQuery turns free text into an FTS5 expression of quoted prefix terms
// joined with OR.
func escapeQuery(query string) string {
	query = queryStrip.ReplaceAllString(strings.TrimSpace(query), " ")

	words := strings.Fields(query)
	if len(words) == 0 {
		return ""
	}

	terms := make([]string, 0, len(words))
	for _, word := range words {
		terms = append(terms, `"`+word+`"*`)
	}
	return strings.Join(terms, " OR ")
}
