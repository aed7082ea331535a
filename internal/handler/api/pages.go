// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/olegiv/ocms-htmlpage/internal/auth"
	"github.com/olegiv/ocms-htmlpage/internal/handler"
	"github.com/olegiv/ocms-htmlpage/internal/model"
)

// HtmlPageRequest is the request body for creating or replacing a page.
type HtmlPageRequest struct {
	Description string       `json:"description"`
	HTMLContent string       `json:"html_content"`
	Status      model.Status `json:"status"`
	Workgroup   string       `json:"workgroup"`
	Role        string       `json:"role"`
	DateStart   *time.Time   `json:"date_start,omitempty"`
	DateEnd     *time.Time   `json:"date_end,omitempty"`
}

func (req *HtmlPageRequest) toModel(id int64) *model.HtmlPage {
	return &model.HtmlPage{
		ID:          id,
		Description: req.Description,
		HTMLContent: req.HTMLContent,
		Status:      req.Status,
		Workgroup:   req.Workgroup,
		Role:        req.Role,
		DateStart:   req.DateStart,
		DateEnd:     req.DateEnd,
	}
}

func (h *Handler) allowed(workgroup string) bool {
	return auth.WorkgroupAllowed(workgroup, h.workgroups)
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (*HtmlPageRequest, bool) {
	var req HtmlPageRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", map[string]string{"body": err.Error()})
		return nil, false
	}
	return &req, true
}

// ListPages handles GET /admin/api/htmlpages.
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := handler.ParsePagination(r)
	if err != nil {
		WriteBadRequest(w, "Invalid pagination parameters", nil)
		return
	}

	list, err := h.svc.ListPage(r.Context(), offset, limit, h.workgroups)
	if err != nil {
		h.writeServiceError(w, r, err, "list html pages")
		return
	}

	WriteSuccess(w, list.Items, &Meta{Total: list.Total, Offset: list.Offset, Limit: list.Limit})
}

// ListEnabledPages handles GET /admin/api/htmlpages/enabled. It reads the
// store directly, so the result can be compared against the page cache.
func (h *Handler) ListEnabledPages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.svc.ListEnabledPages(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "list enabled html pages")
		return
	}
	visible := make([]model.HtmlPage, 0, len(pages))
	for _, p := range pages {
		if h.allowed(p.Workgroup) {
			visible = append(visible, p)
		}
	}
	WriteSuccess(w, visible, &Meta{Total: len(visible), Limit: len(visible)})
}

// GetEnabledPage handles GET /admin/api/htmlpages/{id}/enabled. It answers
// 404 unless the stored page is active now.
func (h *Handler) GetEnabledPage(w http.ResponseWriter, r *http.Request) {
	id, err := handler.ParseIDParam(r)
	if err != nil {
		WriteBadRequest(w, "Invalid html page ID", nil)
		return
	}
	page, err := h.svc.GetEnabledPage(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "retrieve enabled html page")
		return
	}
	if !h.allowed(page.Workgroup) {
		WriteForbidden(w, "Html page belongs to another workgroup")
		return
	}
	WriteSuccess(w, page, nil)
}

// GetPage handles GET /admin/api/htmlpages/{id}.
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	page, ok := h.requirePage(w, r, "retrieve html page")
	if !ok {
		return
	}
	WriteSuccess(w, page, nil)
}

// CreatePage handles POST /admin/api/htmlpages.
func (h *Handler) CreatePage(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	if !h.allowed(req.Workgroup) {
		WriteForbidden(w, "Workgroup is not assigned to this administrator")
		return
	}

	created, err := h.svc.Create(r.Context(), req.toModel(0))
	if err != nil {
		h.writeServiceError(w, r, err, "create html page")
		return
	}
	WriteCreated(w, created)
}

// UpdatePage handles PUT /admin/api/htmlpages/{id}. The body replaces every
// mutable field.
func (h *Handler) UpdatePage(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.requirePage(w, r, "update html page")
	if !ok {
		return
	}
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	if !h.allowed(req.Workgroup) {
		WriteForbidden(w, "Workgroup is not assigned to this administrator")
		return
	}

	updated, err := h.svc.Update(r.Context(), req.toModel(existing.ID))
	if err != nil {
		h.writeServiceError(w, r, err, "update html page")
		return
	}
	WriteSuccess(w, updated, nil)
}

// DeletePage handles DELETE /admin/api/htmlpages/{id}.
func (h *Handler) DeletePage(w http.ResponseWriter, r *http.Request) {
	page, ok := h.requirePage(w, r, "delete html page")
	if !ok {
		return
	}
	if err := h.svc.Remove(r.Context(), page.ID); err != nil {
		h.writeServiceError(w, r, err, "delete html page")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DuplicatePage handles POST /admin/api/htmlpages/{id}/duplicate.
func (h *Handler) DuplicatePage(w http.ResponseWriter, r *http.Request) {
	page, ok := h.requirePage(w, r, "duplicate html page")
	if !ok {
		return
	}
	dup, err := h.svc.Duplicate(r.Context(), page.ID)
	if err != nil {
		h.writeServiceError(w, r, err, "duplicate html page")
		return
	}
	WriteCreated(w, dup)
}
