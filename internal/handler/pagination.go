// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Listing limits shared by the admin API.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ErrInvalidParam is returned for malformed numeric request parameters.
var ErrInvalidParam = errors.New("invalid parameter")

// ParseIDParam parses the {id} URL parameter as a positive integer.
func ParseIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidParam
	}
	return id, nil
}

// ParsePagination reads the offset and limit query parameters. A missing
// limit defaults to DefaultLimit and larger values are capped at MaxLimit.
func ParsePagination(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()

	limit = DefaultLimit
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return 0, 0, ErrInvalidParam
		}
		limit = min(limit, MaxLimit)
	}

	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, ErrInvalidParam
		}
	}
	return offset, limit, nil
}
