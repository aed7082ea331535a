// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package handler serves the public html pages and the health endpoint.
package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/ocms-htmlpage/internal/middleware"
	"github.com/olegiv/ocms-htmlpage/internal/model"
	"github.com/olegiv/ocms-htmlpage/internal/render"
	"github.com/olegiv/ocms-htmlpage/internal/service"
)

// Public routes.
const (
	RouteHtmlPages      = "/htmlpage"
	RouteHtmlPageByID   = "/htmlpage/{id}"
	RouteHtmlPageSearch = "/htmlpage/search"
	RouteIncludes       = "/htmlpage/includes"
	RouteHealth         = "/health"
)

// SearchLimit caps the number of public search results.
const SearchLimit = 50

// MaxQueryLength bounds the accepted search query, in characters.
const MaxQueryLength = 200

// PublicHandler renders html pages for site visitors.
type PublicHandler struct {
	svc      *service.HtmlPageService
	renderer *render.Renderer
	logger   *slog.Logger
}

// NewPublicHandler creates a PublicHandler.
func NewPublicHandler(svc *service.HtmlPageService, renderer *render.Renderer, logger *slog.Logger) *PublicHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublicHandler{svc: svc, renderer: renderer, logger: logger}
}

// Routes registers the public routes. chi matches the static segments ahead
// of {id}.
func (h *PublicHandler) Routes(r chi.Router) {
	r.Get(RouteHtmlPages, h.List)
	r.Get(RouteHtmlPageSearch, h.Search)
	r.Get(RouteIncludes, h.Includes)
	r.Get(RouteHtmlPageByID, h.Page)
}

// List handles GET /htmlpage.
func (h *PublicHandler) List(w http.ResponseWriter, r *http.Request) {
	lang := h.renderer.MatchLocale(r)

	pages, err := h.svc.GetPublicPageList(r.Context(), middleware.GetViewer(r))
	if err != nil {
		h.renderError(w, r, lang, err)
		return
	}

	h.render(w, r, http.StatusOK, render.TemplateList, lang, render.TemplateData{
		Title: h.renderer.T(lang, "htmlpage.list.title"),
		Data:  pages,
	})
}

// Page handles GET /htmlpage/{id}.
func (h *PublicHandler) Page(w http.ResponseWriter, r *http.Request) {
	lang := h.renderer.MatchLocale(r)

	id, err := ParseIDParam(r)
	if err != nil {
		h.renderError(w, r, lang, model.ErrNotFound)
		return
	}

	page, err := h.svc.GetVisiblePage(r.Context(), id, middleware.GetViewer(r))
	if err != nil {
		h.renderError(w, r, lang, err)
		return
	}

	h.render(w, r, http.StatusOK, render.TemplatePage, lang, render.TemplateData{
		Title: page.Description,
		Data:  page,
	})
}

// Search handles GET /htmlpage/search?query=.
func (h *PublicHandler) Search(w http.ResponseWriter, r *http.Request) {
	lang := h.renderer.MatchLocale(r)
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	query = truncateRunes(query, MaxQueryLength)

	results := []service.SearchResult{}
	if query != "" {
		var err error
		results, err = h.svc.Search(r.Context(), query, middleware.GetViewer(r), SearchLimit)
		if err != nil {
			h.renderError(w, r, lang, err)
			return
		}
	}

	h.render(w, r, http.StatusOK, render.TemplateSearch, lang, render.TemplateData{
		Title: h.renderer.T(lang, "htmlpage.search.title"),
		Query: query,
		Data:  results,
	})
}

// Includes handles GET /htmlpage/includes. It returns the include markers
// ("htmlpage_{id}" to HTML) the visitor may embed in other templates.
func (h *PublicHandler) Includes(w http.ResponseWriter, r *http.Request) {
	markers, err := h.svc.IncludeMarkers(r.Context(), middleware.GetViewer(r))
	if err != nil {
		h.logger.Error("building include markers", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, markers)
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func (h *PublicHandler) render(w http.ResponseWriter, r *http.Request, status int, name, lang string, data render.TemplateData) {
	if err := h.renderer.Render(w, status, name, lang, data); err != nil {
		h.logger.Error("rendering template", "template", name, "path", r.URL.Path, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
