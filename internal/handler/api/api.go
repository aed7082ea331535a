// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package api provides the admin REST API for html pages.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/ocms-htmlpage/internal/handler"
	"github.com/olegiv/ocms-htmlpage/internal/model"
	"github.com/olegiv/ocms-htmlpage/internal/scheduler"
	"github.com/olegiv/ocms-htmlpage/internal/service"
)

// Admin API routes, relative to the mount point.
const (
	RouteHtmlPages         = "/htmlpages"
	RouteHtmlPagesEnabled  = "/htmlpages/enabled"
	RouteHtmlPageByID      = "/htmlpages/{id}"
	RouteHtmlPageEnabled   = "/htmlpages/{id}/enabled"
	RouteHtmlPageDuplicate = "/htmlpages/{id}/duplicate"
	RouteIndexRebuild      = "/index/rebuild"
	RouteCache             = "/cache"
	RouteCacheRefresh      = "/cache/refresh"
	RouteCacheStats        = "/cache/stats"
	RouteWorkgroup         = "/workgroups/{key}/removable"
	RouteEvents            = "/events"
	RouteJobs              = "/jobs"
	RouteJobRun            = "/jobs/{name}/run"
	RouteJobSchedule       = "/jobs/{name}/schedule"
)

// maxBodyBytes bounds request bodies. Page content is stored inline.
const maxBodyBytes = 1 << 20

// JobRegistry lists, triggers and reschedules background jobs.
type JobRegistry interface {
	List() []scheduler.JobInfo
	TriggerNow(name string) error
	UpdateSchedule(name, schedule string) error
	ResetSchedule(name string) error
}

// Handler holds shared dependencies for all API handlers.
type Handler struct {
	svc        *service.HtmlPageService
	events     *service.EventService
	jobs       JobRegistry
	workgroups []string
	logger     *slog.Logger
}

// Config wires a Handler. Workgroups scopes the admin; nil or "all" grants
// every workgroup. Events and Jobs are optional.
type Config struct {
	Service    *service.HtmlPageService
	Events     *service.EventService
	Jobs       JobRegistry
	Workgroups []string
	Logger     *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.Workgroups) == 0 {
		cfg.Workgroups = []string{model.WorkgroupAll}
	}
	return &Handler{
		svc:        cfg.Service,
		events:     cfg.Events,
		jobs:       cfg.Jobs,
		workgroups: cfg.Workgroups,
		logger:     cfg.Logger,
	}
}

// Routes registers the admin API. Authentication is applied by the caller.
func (h *Handler) Routes(r chi.Router) {
	r.Get(RouteHtmlPages, h.ListPages)
	r.Post(RouteHtmlPages, h.CreatePage)
	r.Get(RouteHtmlPagesEnabled, h.ListEnabledPages)
	r.Get(RouteHtmlPageByID, h.GetPage)
	r.Get(RouteHtmlPageEnabled, h.GetEnabledPage)
	r.Put(RouteHtmlPageByID, h.UpdatePage)
	r.Delete(RouteHtmlPageByID, h.DeletePage)
	r.Post(RouteHtmlPageDuplicate, h.DuplicatePage)
	r.Post(RouteIndexRebuild, h.RebuildIndex)
	r.Get(RouteCache, h.CacheStats)
	r.Post(RouteCacheRefresh, h.RefreshCache)
	r.Delete(RouteCacheStats, h.ResetCacheStats)
	r.Get(RouteWorkgroup, h.WorkgroupRemovable)
	r.Get(RouteEvents, h.ListEvents)
	r.Get(RouteJobs, h.ListJobs)
	r.Post(RouteJobRun, h.RunJob)
	r.Put(RouteJobSchedule, h.UpdateJobSchedule)
	r.Delete(RouteJobSchedule, h.ResetJobSchedule)
}

// Response is the standard API response wrapper.
type Response struct {
	Data any   `json:"data,omitempty"`
	Meta *Meta `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful JSON response.
func WriteSuccess(w http.ResponseWriter, data any, meta *Meta) {
	WriteJSON(w, http.StatusOK, Response{Data: data, Meta: meta})
}

// WriteCreated writes a 201 Created JSON response.
func WriteCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, Response{Data: data})
}

// WriteError writes an error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, code, message string, details map[string]string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message, Details: details},
	})
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message, details)
}

// WriteNotFound writes a 404 Not Found response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message, nil)
}

// WriteForbidden writes a 403 Forbidden response.
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message, nil)
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message, nil)
}

// WriteValidationError writes a 422 Unprocessable Entity response with field errors.
func WriteValidationError(w http.ResponseWriter, fieldErrors map[string]string) {
	WriteError(w, http.StatusUnprocessableEntity, "validation_error", "Validation failed", fieldErrors)
}

// writeServiceError maps a service error onto the API envelope.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		WriteValidationError(w, ve.Fields)
	case errors.Is(err, model.ErrNotFound):
		WriteNotFound(w, "Html page not found")
	default:
		h.logger.Error("admin api request failed", "category", model.EventCategoryPage,
			"action", action, "path", r.URL.Path, "error", err)
		WriteInternalError(w, "Failed to "+action)
	}
}

// requirePage parses the {id} parameter and loads the page, enforcing the
// admin's workgroups. It writes the response and returns false on failure.
func (h *Handler) requirePage(w http.ResponseWriter, r *http.Request, action string) (*model.HtmlPage, bool) {
	id, err := handler.ParseIDParam(r)
	if err != nil {
		WriteBadRequest(w, "Invalid html page ID", nil)
		return nil, false
	}

	page, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, action)
		return nil, false
	}
	if !h.allowed(page.Workgroup) {
		WriteForbidden(w, "Html page belongs to another workgroup")
		return nil, false
	}
	return page, true
}
