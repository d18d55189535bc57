// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"slices"
	"strings"

	"github.com/mireportec/mireportec/utils/textutils"
)

// Filters narrows a report listing. Blank fields don't filter.
type Filters struct {
	SearchTerm   string `form:"q" json:"search_term"`
	Location     string `form:"location" json:"location"`
	Municipality string `form:"municipality" json:"municipality"`
}

// IsEmpty reports whether no field filters anything.
func (f Filters) IsEmpty() bool {
	return strings.TrimSpace(f.SearchTerm) == "" &&
		strings.TrimSpace(f.Location) == "" &&
		strings.TrimSpace(f.Municipality) == ""
}

// Match reports whether r satisfies every non-blank field.
func (f Filters) Match(r *Report) bool {
	if r == nil {
		return false
	}

	if strings.TrimSpace(f.SearchTerm) != "" && !matchTerm(r, f.SearchTerm) {
		return false
	}

	if strings.TrimSpace(f.Location) != "" && !matchLocation(r, f.Location) {
		return false
	}

	if strings.TrimSpace(f.Municipality) != "" && !matchMunicipality(r, f.Municipality) {
		return false
	}

	return true
}

func matchTerm(r *Report, term string) bool {
	if textutils.ContainsFold(r.Description, term) ||
		textutils.ContainsFold(r.ID, term) ||
		textutils.ContainsFold(r.Location.Address, term) {
		return true
	}

	for _, tag := range r.Tags {
		if textutils.ContainsFold(tag, term) {
			return true
		}
	}

	return false
}

func matchLocation(r *Report, loc string) bool {
	if r.Municipality != nil && textutils.ContainsFold(r.Municipality.Province, loc) {
		return true
	}

	return textutils.ContainsFold(r.Location.Address, loc)
}

func matchMunicipality(r *Report, name string) bool {
	return r.Municipality != nil && textutils.ContainsFold(r.Municipality.Name, name)
}

// SortByDate sorts reports newest first. Reports created at the same instant
// keep their relative order.
func SortByDate(reports []*Report) {
	slices.SortStableFunc(reports, func(a, b *Report) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

// Search returns the reports matching f, newest first. The input slice is
// not modified. Nil entries are dropped.
func Search(reports []*Report, f Filters) []*Report {
	ret := make([]*Report, 0, len(reports))

	for _, r := range reports {
		if f.Match(r) {
			ret = append(ret, r)
		}
	}

	SortByDate(ret)

	return ret
}
