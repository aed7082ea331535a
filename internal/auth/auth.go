// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package auth decides which visitors may see role-restricted pages and
// verifies admin API tokens.
package auth

import (
	"context"
	"slices"
	"strings"

	"github.com/alexedwards/scs/v2"

	"github.com/olegiv/ocms-htmlpage/internal/model"
)

// SessionKeyRoles is the session key holding the visitor's role names.
const SessionKeyRoles = "roles"

// Viewer is the visitor a page is rendered for.
type Viewer interface {
	HasRole(role string) bool
}

// Anonymous is a viewer holding no roles.
var Anonymous Viewer = Roles(nil)

// Roles is a fixed set of role names.
type Roles []string

// HasRole reports whether role is in the set.
func (r Roles) HasRole(role string) bool {
	return slices.Contains(r, role)
}

// IsRoleRestricted reports whether a page role limits who may see the page.
// Blank roles and "none" are unrestricted.
func IsRoleRestricted(role string) bool {
	role = strings.TrimSpace(role)
	return role != "" && role != model.RoleNone
}

// IsVisible reports whether viewer may see a page carrying role.
// When authentication is disabled every page is visible.
func IsVisible(role string, viewer Viewer, authenticationEnabled bool) bool {
	if !IsRoleRestricted(role) {
		return true
	}
	if !authenticationEnabled {
		return true
	}
	if viewer == nil {
		return false
	}
	return viewer.HasRole(strings.TrimSpace(role))
}

// WorkgroupAllowed reports whether an admin scoped to workgroups may manage a
// page owned by workgroup. Pages in the "all" workgroup are shared.
func WorkgroupAllowed(workgroup string, workgroups []string) bool {
	if workgroup == "" || workgroup == model.WorkgroupAll {
		return true
	}
	return slices.Contains(workgroups, model.WorkgroupAll) || slices.Contains(workgroups, workgroup)
}

// SessionViewer reads the visitor's roles from the session.
type SessionViewer struct {
	sm  *scs.SessionManager
	ctx context.Context
}

// NewSessionViewer creates a viewer for the session bound to ctx.
func NewSessionViewer(ctx context.Context, sm *scs.SessionManager) *SessionViewer {
	return &SessionViewer{sm: sm, ctx: ctx}
}

// HasRole reports whether the session holds role.
func (v *SessionViewer) HasRole(role string) bool {
	roles, ok := v.sm.Get(v.ctx, SessionKeyRoles).([]string)
	if !ok {
		return false
	}
	return slices.Contains(roles, role)
}

// SetRoles stores the visitor's roles in the session.
func SetRoles(ctx context.Context, sm *scs.SessionManager, roles []string) {
	sm.Put(ctx, SessionKeyRoles, roles)
}
