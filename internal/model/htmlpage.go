// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model defines the domain types shared across the service.
package model

import (
	"fmt"
	"time"
)

// Status is the publication state of an HtmlPage.
type Status int

// Page statuses. The numeric values are persisted.
const (
	StatusDisabled    Status = 0
	StatusEnabled     Status = 1
	StatusConditioned Status = 2
)

// Sentinel values for role and workgroup keys.
const (
	RoleNone     = "none"
	WorkgroupAll = "all"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusDisabled || s == StatusEnabled || s == StatusConditioned
}

// String returns the lowercase status label.
func (s Status) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusEnabled:
		return "enabled"
	case StatusConditioned:
		return "conditioned"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Statuses lists every status in display order.
func Statuses() []Status {
	return []Status{StatusDisabled, StatusEnabled, StatusConditioned}
}

// HtmlPage is an admin-authored block of HTML shown to site visitors.
type HtmlPage struct {
	ID          int64      `json:"id"`
	Description string     `json:"description"`
	HTMLContent string     `json:"html_content"`
	Status      Status     `json:"status"`
	Workgroup   string     `json:"workgroup"`
	Role        string     `json:"role"`
	DateStart   *time.Time `json:"date_start,omitempty"`
	DateEnd     *time.Time `json:"date_end,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsActiveAt reports whether the page may be served at the given instant.
//
// A conditioned page without a start date is never active, even when an end
// date is set.
func (p *HtmlPage) IsActiveAt(now time.Time) bool {
	if p.Status == StatusConditioned {
		if p.DateStart != nil && p.DateEnd != nil {
			return !now.Before(*p.DateStart) && !now.After(*p.DateEnd)
		}
		if p.DateStart != nil {
			return !now.Before(*p.DateStart)
		}
	}
	return p.Status == StatusEnabled
}

// IsEnabledAt reports whether the page belongs in the search index at now.
func (p *HtmlPage) IsEnabledAt(now time.Time) bool {
	return p.IsActiveAt(now)
}

// Clone returns a deep copy of the page.
func (p *HtmlPage) Clone() *HtmlPage {
	if p == nil {
		return nil
	}
	c := *p
	if p.DateStart != nil {
		t := *p.DateStart
		c.DateStart = &t
	}
	if p.DateEnd != nil {
		t := *p.DateEnd
		c.DateEnd = &t
	}
	return &c
}

// Duplicate returns a new unsaved page carrying the same content and rules.
func (p *HtmlPage) Duplicate() *HtmlPage {
	c := p.Clone()
	c.ID = 0
	c.CreatedAt = time.Time{}
	c.UpdatedAt = time.Time{}
	return c
}
