// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"time"
)

// IndexerAction is a queued request to update the search index.
type IndexerAction struct {
	ID          int64
	DocKey      string
	IndexerName string
	Task        string
	CreatedAt   time.Time
}

// CreateIndexerActionParams holds the values for a queued action.
type CreateIndexerActionParams struct {
	DocKey      string
	IndexerName string
	Task        string
	CreatedAt   time.Time
}

// CreateIndexerAction appends an action to the queue.
func (q *Queries) CreateIndexerAction(ctx context.Context, arg CreateIndexerActionParams) (IndexerAction, error) {
	a := IndexerAction{
		DocKey:      arg.DocKey,
		IndexerName: arg.IndexerName,
		Task:        arg.Task,
		CreatedAt:   arg.CreatedAt,
	}
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO indexer_actions (doc_key, indexer_name, task, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`,
		arg.DocKey, arg.IndexerName, arg.Task, arg.CreatedAt,
	).Scan(&a.ID)
	return a, err
}

// ListIndexerActions returns the oldest queued actions for an indexer.
func (q *Queries) ListIndexerActions(ctx context.Context, indexerName string, limit int64) ([]IndexerAction, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, doc_key, indexer_name, task, created_at
		FROM indexer_actions
		WHERE indexer_name = ?
		ORDER BY id
		LIMIT ?`, indexerName, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	actions := []IndexerAction{}
	for rows.Next() {
		var a IndexerAction
		if err := rows.Scan(&a.ID, &a.DocKey, &a.IndexerName, &a.Task, &a.CreatedAt); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// CountIndexerActions returns the queue length for an indexer.
func (q *Queries) CountIndexerActions(ctx context.Context, indexerName string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM indexer_actions WHERE indexer_name = ?`, indexerName).Scan(&n)
	return n, err
}

// DeleteIndexerAction removes a processed action.
func (q *Queries) DeleteIndexerAction(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM indexer_actions WHERE id = ?`, id)
	return err
}

// DeleteIndexerActionsByIndexer clears the queue for an indexer.
func (q *Queries) DeleteIndexerActionsByIndexer(ctx context.Context, indexerName string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM indexer_actions WHERE indexer_name = ?`, indexerName)
	return err
}
