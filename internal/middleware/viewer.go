// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/alexedwards/scs/v2"

	"github.com/olegiv/ocms-htmlpage/internal/auth"
	"github.com/olegiv/ocms-htmlpage/internal/model"
)

// UpstreamSecretHeader carries the shared secret that lets an upstream set a
// visitor's roles.
const UpstreamSecretHeader = "X-Htmlpage-Upstream-Secret"

// ContextKeyViewer is the context key for the visitor's auth.Viewer.
const ContextKeyViewer ContextKey = "viewer"

// LoadViewer resolves the visitor's roles from the session. It must run
// inside sm.LoadAndSave.
func LoadViewer(sm *scs.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewer := auth.NewSessionViewer(r.Context(), sm)
			ctx := context.WithValue(r.Context(), ContextKeyViewer, auth.Viewer(viewer))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RolesSyncConfig configures SyncRoles.
type RolesSyncConfig struct {
	// Header holds the comma-separated role names sent by the upstream.
	Header   string
	Verifier *auth.TokenVerifier
	Logger   *slog.Logger
}

// SyncRoles copies the visitor's roles from a header set by a trusted
// upstream into the session. The header is honored only alongside a valid
// UpstreamSecretHeader; otherwise the session is left as is. An empty header
// value clears the roles. It must run inside sm.LoadAndSave.
func SyncRoles(sm *scs.SessionManager, cfg RolesSyncConfig) func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	header := http.CanonicalHeaderKey(cfg.Header)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			values, ok := r.Header[header]
			if !ok || header == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !cfg.Verifier.Verify(r.Header.Get(UpstreamSecretHeader)) {
				cfg.Logger.Warn("roles header ignored, upstream secret rejected",
					"category", model.EventCategoryAuth,
					"ip", clientIP(r),
					"path", r.URL.Path,
				)
				next.ServeHTTP(w, r)
				return
			}

			roles := ParseRoles(strings.Join(values, ","))
			current, _ := sm.Get(r.Context(), auth.SessionKeyRoles).([]string)
			if !slices.Equal(current, roles) {
				// Privilege change: issue a new session token.
				if err := sm.RenewToken(r.Context()); err != nil {
					cfg.Logger.Error("renewing session token", "error", err)
				}
				auth.SetRoles(r.Context(), sm, roles)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ParseRoles splits a comma-separated role list into sorted, unique names.
func ParseRoles(s string) []string {
	roles := []string{}
	for _, role := range strings.Split(s, ",") {
		role = strings.TrimSpace(role)
		if role == "" || slices.Contains(roles, role) {
			continue
		}
		roles = append(roles, role)
	}
	slices.Sort(roles)
	return roles
}

// GetViewer returns the visitor from the request context, or auth.Anonymous.
func GetViewer(r *http.Request) auth.Viewer {
	if v, ok := r.Context().Value(ContextKeyViewer).(auth.Viewer); ok && v != nil {
		return v
	}
	return auth.Anonymous
}
