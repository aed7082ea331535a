// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"net/http"

	"github.com/olegiv/ocms-htmlpage/internal/model"
	"github.com/olegiv/ocms-htmlpage/internal/render"
)

// Error message keys rendered by the error template.
const (
	msgNotFound      = "htmlpage.error.notFound"
	msgNotAuthorized = "htmlpage.error.notAuthorized"
	msgInternal      = "htmlpage.error.internal"
)

// errorStatus maps a service error to an HTTP status and message key.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, msgNotFound
	case errors.Is(err, model.ErrNotAuthorized):
		return http.StatusForbidden, msgNotAuthorized
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// renderError renders the error page for err. Unexpected errors are logged
// at ERROR and lookups of unknown pages at WARN.
func (h *PublicHandler) renderError(w http.ResponseWriter, r *http.Request, lang string, err error) {
	status, key := errorStatus(err)
	switch status {
	case http.StatusInternalServerError:
		h.logger.Error("public request failed", "path", r.URL.Path, "error", err)
	case http.StatusNotFound:
		h.logger.Warn("html page not found", "category", model.EventCategoryPage, "path", r.URL.Path)
	}

	data := render.TemplateData{Title: h.renderer.T(lang, "htmlpage.error.title"), Data: key}
	if rerr := h.renderer.Render(w, status, render.TemplateError, lang, data); rerr != nil {
		h.logger.Error("rendering error page", "error", rerr)
		http.Error(w, http.StatusText(status), status)
	}
}
