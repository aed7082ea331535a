// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olegiv/ocms-htmlpage/internal/model"
)

const htmlPageColumns = `id, description, html_content, status, workgroup_key, role, date_start, date_end, created_at, updated_at`

// CreateHtmlPageParams holds the values for a new page.
type CreateHtmlPageParams struct {
	Description string
	HTMLContent string
	Status      model.Status
	Workgroup   string
	Role        string
	DateStart   sql.NullTime
	DateEnd     sql.NullTime
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UpdateHtmlPageParams holds the mutable values of an existing page.
type UpdateHtmlPageParams struct {
	ID          int64
	Description string
	HTMLContent string
	Status      model.Status
	Workgroup   string
	Role        string
	DateStart   sql.NullTime
	DateEnd     sql.NullTime
	UpdatedAt   time.Time
}

// HtmlPageParams converts a page into create parameters stamped with now.
func HtmlPageParams(p *model.HtmlPage, now time.Time) CreateHtmlPageParams {
	return CreateHtmlPageParams{
		Description: p.Description,
		HTMLContent: p.HTMLContent,
		Status:      p.Status,
		Workgroup:   p.Workgroup,
		Role:        p.Role,
		DateStart:   toNullTime(p.DateStart),
		DateEnd:     toNullTime(p.DateEnd),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// HtmlPageUpdateParams converts a page into update parameters stamped with now.
func HtmlPageUpdateParams(p *model.HtmlPage, now time.Time) UpdateHtmlPageParams {
	return UpdateHtmlPageParams{
		ID:          p.ID,
		Description: p.Description,
		HTMLContent: p.HTMLContent,
		Status:      p.Status,
		Workgroup:   p.Workgroup,
		Role:        p.Role,
		DateStart:   toNullTime(p.DateStart),
		DateEnd:     toNullTime(p.DateEnd),
		UpdatedAt:   now,
	}
}

// CreateHtmlPage inserts a page and reads it back. The id is assigned by
// SQLite and never reused.
func (q *Queries) CreateHtmlPage(ctx context.Context, arg CreateHtmlPageParams) (model.HtmlPage, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO htmlpage (description, html_content, status, workgroup_key, role, date_start, date_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		arg.Description,
		arg.HTMLContent,
		int(arg.Status),
		arg.Workgroup,
		arg.Role,
		nullTime(&arg.DateStart),
		nullTime(&arg.DateEnd),
		arg.CreatedAt,
		arg.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return model.HtmlPage{}, err
	}
	return q.GetHtmlPage(ctx, id)
}

// GetHtmlPage loads a page by id regardless of status.
func (q *Queries) GetHtmlPage(ctx context.Context, id int64) (model.HtmlPage, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+htmlPageColumns+` FROM htmlpage WHERE id = ?`, id)
	return scanHtmlPage(row)
}

// GetEnabledHtmlPage loads a page that is enabled or conditioned.
// Callers still have to check the date window.
func (q *Queries) GetEnabledHtmlPage(ctx context.Context, id int64) (model.HtmlPage, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+htmlPageColumns+` FROM htmlpage
		WHERE id = ? AND status IN (?, ?)`,
		id, int(model.StatusEnabled), int(model.StatusConditioned),
	)
	return scanHtmlPage(row)
}

// UpdateHtmlPage stores the mutable columns of a page.
func (q *Queries) UpdateHtmlPage(ctx context.Context, arg UpdateHtmlPageParams) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE htmlpage
		SET description = ?, html_content = ?, status = ?, workgroup_key = ?, role = ?,
		    date_start = ?, date_end = ?, updated_at = ?
		WHERE id = ?`,
		arg.Description,
		arg.HTMLContent,
		int(arg.Status),
		arg.Workgroup,
		arg.Role,
		nullTime(&arg.DateStart),
		nullTime(&arg.DateEnd),
		arg.UpdatedAt,
		arg.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// DeleteHtmlPage removes a page.
func (q *Queries) DeleteHtmlPage(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM htmlpage WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ListHtmlPages returns every page ordered by description, then id descending.
func (q *Queries) ListHtmlPages(ctx context.Context) ([]model.HtmlPage, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+htmlPageColumns+` FROM htmlpage
		ORDER BY description, id DESC`)
	if err != nil {
		return nil, err
	}
	return scanHtmlPages(rows)
}

// ListEnabledHtmlPages returns enabled and conditioned pages.
func (q *Queries) ListEnabledHtmlPages(ctx context.Context) ([]model.HtmlPage, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+htmlPageColumns+` FROM htmlpage
		WHERE status IN (?, ?)
		ORDER BY description, id DESC`,
		int(model.StatusEnabled), int(model.StatusConditioned),
	)
	if err != nil {
		return nil, err
	}
	return scanHtmlPages(rows)
}

// ListHtmlPageIDs returns page ids in list order, optionally restricted to
// the given workgroups. A nil slice means no restriction.
func (q *Queries) ListHtmlPageIDs(ctx context.Context, workgroups []string) ([]int64, error) {
	query := `SELECT id FROM htmlpage`
	var args []any
	if workgroups != nil {
		if len(workgroups) == 0 {
			return []int64{}, nil
		}
		query += ` WHERE workgroup_key IN (` + placeholders(len(workgroups)) + `)`
		for _, wg := range workgroups {
			args = append(args, wg)
		}
	}
	query += ` ORDER BY description, id DESC`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListHtmlPagesByIDs loads the given pages. Order is not guaranteed.
func (q *Queries) ListHtmlPagesByIDs(ctx context.Context, ids []int64) ([]model.HtmlPage, error) {
	if len(ids) == 0 {
		return []model.HtmlPage{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+htmlPageColumns+` FROM htmlpage
		WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	return scanHtmlPages(rows)
}

// CountHtmlPagesByWorkgroup counts pages owned by a workgroup.
func (q *Queries) CountHtmlPagesByWorkgroup(ctx context.Context, workgroup string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM htmlpage WHERE workgroup_key = ?`, workgroup).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHtmlPage(row rowScanner) (model.HtmlPage, error) {
	var (
		p         model.HtmlPage
		status    int
		dateStart sql.NullTime
		dateEnd   sql.NullTime
	)
	err := row.Scan(
		&p.ID,
		&p.Description,
		&p.HTMLContent,
		&status,
		&p.Workgroup,
		&p.Role,
		&dateStart,
		&dateEnd,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.HtmlPage{}, model.ErrNotFound
		}
		return model.HtmlPage{}, err
	}
	p.Status = model.Status(status)
	p.DateStart = fromNullTime(dateStart)
	p.DateEnd = fromNullTime(dateEnd)
	return p, nil
}

func scanHtmlPages(rows *sql.Rows) ([]model.HtmlPage, error) {
	defer func() { _ = rows.Close() }()

	pages := []model.HtmlPage{}
	for rows.Next() {
		p, err := scanHtmlPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
