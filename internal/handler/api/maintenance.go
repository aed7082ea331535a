// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/ocms-htmlpage/internal/handler"
	"github.com/olegiv/ocms-htmlpage/internal/model"
	"github.com/olegiv/ocms-htmlpage/internal/scheduler"
)

// RebuildResponse reports a full index rebuild. RunID matches the run_id
// metadata of the recorded index event.
type RebuildResponse struct {
	Indexed int    `json:"indexed"`
	RunID   string `json:"run_id,omitempty"`
}

// WorkgroupResponse reports whether a workgroup can be deleted.
type WorkgroupResponse struct {
	Key       string `json:"key"`
	Removable bool   `json:"removable"`
}

// RebuildIndex handles POST /admin/api/index/rebuild.
func (h *Handler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	rebuild, err := h.svc.Reindex(r.Context())
	if err != nil {
		h.logger.Error("search index rebuild failed", "category", model.EventCategoryIndex, "error", err)
		WriteInternalError(w, "Failed to rebuild search index")
		return
	}
	if h.events != nil && rebuild.RunID != "" {
		meta := map[string]any{"run_id": rebuild.RunID, "documents": rebuild.Documents}
		if err := h.events.LogIndexEvent(r.Context(), model.EventLevelInfo, "Search index rebuilt", meta); err != nil {
			h.logger.Warn("recording rebuild event failed", "run_id", rebuild.RunID, "error", err)
		}
	}
	WriteSuccess(w, RebuildResponse{Indexed: rebuild.Documents, RunID: rebuild.RunID}, nil)
}

// CacheStats handles GET /admin/api/cache.
func (h *Handler) CacheStats(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, h.svc.Cache().Stats(), nil)
}

// RefreshCache handles POST /admin/api/cache/refresh.
func (h *Handler) RefreshCache(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.RefreshCache(r.Context())
	if err != nil {
		h.logger.Error("page cache refresh failed", "category", model.EventCategoryCache, "error", err)
		WriteInternalError(w, "Failed to refresh page cache")
		return
	}
	WriteSuccess(w, stats, nil)
}

// ResetCacheStats handles DELETE /admin/api/cache/stats and returns the
// zeroed stats.
func (h *Handler) ResetCacheStats(w http.ResponseWriter, _ *http.Request) {
	c := h.svc.Cache()
	c.ResetStats()
	h.logger.Info("page cache stats reset", "category", model.EventCategoryCache)
	WriteSuccess(w, c.Stats(), nil)
}

// WorkgroupRemovable handles GET /admin/api/workgroups/{key}/removable.
func (h *Handler) WorkgroupRemovable(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	if key == "" {
		WriteBadRequest(w, "Workgroup key is required", nil)
		return
	}
	ok, err := h.svc.CanRemoveWorkgroup(r.Context(), key)
	if err != nil {
		h.writeServiceError(w, r, err, "check workgroup")
		return
	}
	WriteSuccess(w, WorkgroupResponse{Key: key, Removable: ok}, nil)
}

// ListEvents handles GET /admin/api/events?level=&offset=&limit=.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		WriteSuccess(w, []model.Event{}, nil)
		return
	}
	offset, limit, err := handler.ParsePagination(r)
	if err != nil {
		WriteBadRequest(w, "Invalid pagination parameters", nil)
		return
	}
	level := r.URL.Query().Get("level")
	switch level {
	case "", model.EventLevelInfo, model.EventLevelWarning, model.EventLevelError:
	default:
		WriteBadRequest(w, "Invalid event level", map[string]string{"level": level})
		return
	}

	events, err := h.events.ListEvents(r.Context(), level, limit, offset)
	if err != nil {
		h.logger.Error("listing events failed", "error", err)
		WriteInternalError(w, "Failed to list events")
		return
	}
	WriteSuccess(w, events, &Meta{Total: len(events), Offset: offset, Limit: limit})
}

// ListJobs handles GET /admin/api/jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, _ *http.Request) {
	if h.jobs == nil {
		WriteSuccess(w, []scheduler.JobInfo{}, nil)
		return
	}
	WriteSuccess(w, h.jobs.List(), nil)
}

// RunJob handles POST /admin/api/jobs/{name}/run. The job runs before the
// response is written.
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.jobs == nil {
		WriteNotFound(w, "Job not found")
		return
	}
	if err := h.jobs.TriggerNow(name); err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			WriteNotFound(w, "Job not found")
			return
		}
		h.logger.Error("manual job run failed", "job", name, "error", err)
		WriteInternalError(w, "Failed to run job")
		return
	}
	WriteSuccess(w, map[string]string{"job": name, "status": "completed"}, nil)
}

// ScheduleRequest is the body of PUT /admin/api/jobs/{name}/schedule.
type ScheduleRequest struct {
	Schedule string `json:"schedule"`
}

// UpdateJobSchedule handles PUT /admin/api/jobs/{name}/schedule. Overrides
// last until restart or until reset.
func (h *Handler) UpdateJobSchedule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.jobs == nil {
		WriteNotFound(w, "Job not found")
		return
	}

	var req ScheduleRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", map[string]string{"body": err.Error()})
		return
	}
	req.Schedule = strings.TrimSpace(req.Schedule)
	if req.Schedule == "" {
		WriteValidationError(w, map[string]string{"schedule": "Schedule is required"})
		return
	}

	if err := h.jobs.UpdateSchedule(name, req.Schedule); err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			WriteNotFound(w, "Job not found")
			return
		}
		WriteValidationError(w, map[string]string{"schedule": err.Error()})
		return
	}
	h.writeJob(w, name)
}

// ResetJobSchedule handles DELETE /admin/api/jobs/{name}/schedule.
func (h *Handler) ResetJobSchedule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.jobs == nil {
		WriteNotFound(w, "Job not found")
		return
	}
	if err := h.jobs.ResetSchedule(name); err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			WriteNotFound(w, "Job not found")
			return
		}
		h.logger.Error("job schedule reset failed", "job", name, "error", err)
		WriteInternalError(w, "Failed to reset job schedule")
		return
	}
	h.writeJob(w, name)
}

func (h *Handler) writeJob(w http.ResponseWriter, name string) {
	for _, job := range h.jobs.List() {
		if job.Name == name {
			WriteSuccess(w, job, nil)
			return
		}
	}
	WriteNotFound(w, "Job not found")
}
