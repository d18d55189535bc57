// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

// Package textutils provides text helpers shared by the matching code.
package textutils

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldAccents = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// LowerASCIIFolding normalizes a string by removing accents, lowercasing, and trimming spaces.
// Every province, canton and district comparison goes through it.
func LowerASCIIFolding(s string) string {
	if s == "" {
		return ""
	}

	s, _, _ = transform.String(foldAccents, strings.ToLower(s))

	return strings.TrimSpace(s)
}

// ContainsFold reports whether needle is a substring of haystack after
// lowercasing and trimming both. Accents are kept.
func ContainsFold(haystack, needle string) bool {
	if haystack == "" {
		return false
	}

	return strings.Contains(strings.ToLower(haystack), strings.TrimSpace(strings.ToLower(needle)))
}

// KeyFolding builds a loose identifier out of a free text name: accents are
// stripped, letters upper-cased and anything outside [A-Z0-9] becomes '_'.
func KeyFolding(s string) string {
	s, _, _ = transform.String(foldAccents, strings.ToUpper(s))

	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}

		return '_'
	}, s)
}

// AnyToStringSlice converts an interface{} to []string safely.
func AnyToStringSlice(v any) ([]string, bool) {
	if v == nil {
		return nil, true
	}

	if i, ok := v.([]string); ok {
		return i, true
	}

	if i, ok := v.([]any); ok {
		s := make([]string, len(i))

		for j, e := range i {
			val, ok := e.(string)
			if !ok {
				return nil, false
			}

			s[j] = val
		}

		return s, true
	}

	return nil, false
}

// FormatInt formats an integer with commas for human readability.
func FormatInt(n int64) string {
	in := strconv.FormatInt(n, 10)

	numOfDigits := len(in)
	if n < 0 {
		numOfDigits-- // First character is the - sign (not a digit)
	}

	numOfCommas := (numOfDigits - 1) / 3

	out := make([]byte, len(in)+numOfCommas)
	if n < 0 {
		in, out[0] = in[1:], '-'
	}

	for i, j, k := len(in)-1, len(out)-1, 0; ; i, j = i-1, j-1 {
		out[j] = in[i]
		if i == 0 {
			return string(out)
		}

		if k++; k == 3 {
			j, k = j-1, 0
			out[j] = ','
		}
	}
}
