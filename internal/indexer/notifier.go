// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package indexer

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/olegiv/ocms-htmlpage/internal/model"
	"github.com/olegiv/ocms-htmlpage/internal/store"
)

// Action is the kind of index change requested.
type Action string

// Index actions.
const (
	ActionCreate Action = "create"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// Submitter accepts indexing intents.
type Submitter interface {
	SubmitIntent(ctx context.Context, key, indexerName string, action Action) error
}

// Queue persists intents in the indexer_actions table.
type Queue struct {
	queries *store.Queries
	now     func() time.Time
}

// NewQueue creates a store-backed Submitter.
func NewQueue(queries *store.Queries) *Queue {
	return &Queue{queries: queries, now: time.Now}
}

// SubmitIntent enqueues an action.
func (q *Queue) SubmitIntent(ctx context.Context, key, indexerName string, action Action) error {
	_, err := q.queries.CreateIndexerAction(ctx, store.CreateIndexerActionParams{
		DocKey:      key,
		IndexerName: indexerName,
		Task:        string(action),
		CreatedAt:   q.now(),
	})
	return err
}

// Notifier turns page writes into indexing intents. Submission failures are
// logged and never returned.
type Notifier struct {
	submitter   Submitter
	indexerName string
	logger      *slog.Logger
	now         func() time.Time
}

// NewNotifier creates a Notifier. A nil now defaults to time.Now.
func NewNotifier(submitter Submitter, indexerName string, logger *slog.Logger, now func() time.Time) *Notifier {
	if indexerName == "" {
		indexerName = DefaultIndexerName
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Notifier{submitter: submitter, indexerName: indexerName, logger: logger, now: now}
}

// Created emits CREATE when the new page is enabled.
func (n *Notifier) Created(ctx context.Context, page *model.HtmlPage) {
	if page.IsEnabledAt(n.now()) {
		n.submit(ctx, page.ID, strconv.FormatInt(page.ID, 10), ActionCreate)
	}
}

// Updated emits MODIFY when the page is enabled now, or DELETE when it was
// enabled before the update and no longer is.
func (n *Notifier) Updated(ctx context.Context, page *model.HtmlPage, wasEnabled bool) {
	switch {
	case page.IsEnabledAt(n.now()):
		n.submit(ctx, page.ID, strconv.FormatInt(page.ID, 10), ActionModify)
	case wasEnabled:
		n.submit(ctx, page.ID, DocumentUID(page.ID), ActionDelete)
	}
}

// Removed emits DELETE when the removed page was enabled.
func (n *Notifier) Removed(ctx context.Context, page *model.HtmlPage) {
	if page.IsEnabledAt(n.now()) {
		n.submit(ctx, page.ID, DocumentUID(page.ID), ActionDelete)
	}
}

func (n *Notifier) submit(ctx context.Context, id int64, key string, action Action) {
	if err := n.submitter.SubmitIntent(ctx, key, n.indexerName, action); err != nil {
		n.logger.Warn("indexing intent not submitted",
			"category", model.EventCategoryIndex,
			"page_id", id,
			"action", string(action),
			"error", err,
		)
	}
}
