// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRoleRestricted(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{"", false},
		{"   ", false},
		{"none", false},
		{"members", true},
		{" members ", true},
		{"None", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRoleRestricted(tt.role), "role %q", tt.role)
	}
}

func TestIsVisible(t *testing.T) {
	member := Roles{"members"}

	tests := []struct {
		name    string
		role    string
		viewer  Viewer
		authOn  bool
		visible bool
	}{
		{"unrestricted anonymous", "none", Anonymous, true, true},
		{"blank role", "", nil, true, true},
		{"restricted holder", "members", member, true, true},
		{"restricted non-holder", "members", Roles{"staff"}, true, false},
		{"restricted anonymous", "members", Anonymous, true, false},
		{"restricted nil viewer", "members", nil, true, false},
		{"auth disabled fails open", "members", Anonymous, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.visible, IsVisible(tt.role, tt.viewer, tt.authOn))
		})
	}
}

func TestWorkgroupAllowed(t *testing.T) {
	assert.True(t, WorkgroupAllowed("all", []string{"editors"}))
	assert.True(t, WorkgroupAllowed("", nil))
	assert.True(t, WorkgroupAllowed("editors", []string{"editors"}))
	assert.True(t, WorkgroupAllowed("editors", []string{"all"}))
	assert.False(t, WorkgroupAllowed("editors", []string{"marketing"}))
}

func TestSessionViewer(t *testing.T) {
	sm := scs.New()
	sm.Store = memstore.New()

	var hasMembers, hasStaff bool
	login := sm.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetRoles(r.Context(), sm, []string{"members"})
	}))
	check := sm.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := NewSessionViewer(r.Context(), sm)
		hasMembers = v.HasRole("members")
		hasStaff = v.HasRole("staff")
	}))

	rec := httptest.NewRecorder()
	login.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	check.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, hasMembers)
	assert.False(t, hasStaff)
}

func TestSessionViewer_EmptySession(t *testing.T) {
	sm := scs.New()
	sm.Store = memstore.New()

	var has bool
	h := sm.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		has = NewSessionViewer(r.Context(), sm).HasRole("members")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.False(t, has)
}
