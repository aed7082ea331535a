// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package render renders the public html page templates.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/olegiv/ocms-htmlpage/internal/i18n"
)

// Template names.
const (
	TemplatePage   = "htmlpage"
	TemplateList   = "htmlpage_list"
	TemplateSearch = "htmlpage_search"
	TemplateError  = "error"
)

// Renderer handles template rendering with caching.
type Renderer struct {
	templates map[string]*template.Template
	catalog   *i18n.Catalog
	now       func() time.Time
}

// Config holds renderer configuration.
type Config struct {
	TemplatesFS fs.FS
	Catalog     *i18n.Catalog
	// Now defaults to time.Now.
	Now func() time.Time
}

// New creates a new Renderer with parsed templates.
func New(cfg Config) (*Renderer, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("render: catalog is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	r := &Renderer{
		templates: make(map[string]*template.Template),
		catalog:   cfg.Catalog,
		now:       cfg.Now,
	}

	if err := r.parseTemplates(cfg.TemplatesFS); err != nil {
		return nil, err
	}
	return r, nil
}

// parseTemplates parses every page template together with the base layout.
func (r *Renderer) parseTemplates(templatesFS fs.FS) error {
	const baseLayout = "layouts/base.html"

	pages, err := fs.Glob(templatesFS, "pages/*.html")
	if err != nil {
		return fmt.Errorf("listing page templates: %w", err)
	}
	if len(pages) == 0 {
		return fmt.Errorf("no page templates found")
	}

	for _, tmplPath := range pages {
		name := strings.TrimSuffix(path.Base(tmplPath), ".html")

		tmpl, err := template.New("").Funcs(r.templateFuncs()).ParseFS(templatesFS, baseLayout, tmplPath)
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return nil
}

// templateFuncs returns custom template functions.
func (r *Renderer) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"t": r.catalog.T,
		"formatDate": func(t time.Time) string {
			return t.Format("Jan 2, 2006")
		},
		// Page content is HTML written by administrators.
		"safe": func(s string) template.HTML {
			return template.HTML(s)
		},
	}
}

// TemplateData holds data passed to templates.
type TemplateData struct {
	Title       string
	Lang        string
	Query       string
	Data        any
	CurrentYear int
}

// MatchLocale negotiates the template language from Accept-Language.
func (r *Renderer) MatchLocale(req *http.Request) string {
	return r.catalog.Match(req.Header.Get("Accept-Language"))
}

// T translates key into lang.
func (r *Renderer) T(lang, key string, args ...any) string {
	return r.catalog.T(lang, key, args...)
}

// Has reports whether a template is registered under name.
func (r *Renderer) Has(name string) bool {
	_, ok := r.templates[name]
	return ok
}

// Render renders a template with the given status and language.
func (r *Renderer) Render(w http.ResponseWriter, status int, name, lang string, data TemplateData) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("template %s not found", name)
	}

	data.Lang = lang
	data.CurrentYear = r.now().Year()

	// Render to buffer first to catch errors
	buf := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(buf, "base", data); err != nil {
		return fmt.Errorf("executing template %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
