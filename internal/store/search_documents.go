// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
)

// SearchDocument is a row of the full-text index.
type SearchDocument struct {
	UID      string
	URL      string
	Type     string
	Title    string
	Contents string
}

// SearchHit is a matched document with a highlighted snippet.
type SearchHit struct {
	UID     string
	URL     string
	Type    string
	Title   string
	Snippet string
	Rank    float64
}

// SearchDocumentsParams holds a full-text query.
type SearchDocumentsParams struct {
	Query  string
	Type   string
	Limit  int64
	Offset int64
}

// InsertSearchDocument adds a document to the index.
func (q *Queries) InsertSearchDocument(ctx context.Context, doc SearchDocument) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO search_documents (uid, url, type, title, contents)
		VALUES (?, ?, ?, ?, ?)`,
		doc.UID, doc.URL, doc.Type, doc.Title, doc.Contents,
	)
	return err
}

// DeleteSearchDocument removes a document by uid.
func (q *Queries) DeleteSearchDocument(ctx context.Context, uid string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM search_documents WHERE uid = ?`, uid)
	return err
}

// DeleteSearchDocumentsByType removes every document of a type.
func (q *Queries) DeleteSearchDocumentsByType(ctx context.Context, docType string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM search_documents WHERE type = ?`, docType)
	return err
}

// CountSearchDocuments counts indexed documents of a type.
func (q *Queries) CountSearchDocuments(ctx context.Context, docType string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_documents WHERE type = ?`, docType).Scan(&n)
	return n, err
}

// SearchDocuments runs an FTS5 MATCH query ranked by bm25, title weighted
// above contents.
func (q *Queries) SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]SearchHit, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT uid, url, type, title,
		       snippet(search_documents, 4, '<mark>', '</mark>', '...', 24) AS snippet,
		       bm25(search_documents, 0, 0, 0, 10.0, 1.0) AS rank
		FROM search_documents
		WHERE search_documents MATCH ? AND type = ?
		ORDER BY rank
		LIMIT ? OFFSET ?`,
		arg.Query, arg.Type, arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	hits := []SearchHit{}
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.UID, &h.URL, &h.Type, &h.Title, &h.Snippet, &h.Rank); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
