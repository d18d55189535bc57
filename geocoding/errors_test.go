// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type errorCheckTestCase struct {
	name string
	err  error
	want bool
}

func runErrorCheckTest(t *testing.T, tests []errorCheckTestCase, checkFunc func(error) bool) {
	t.Helper()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkFunc(tt.err); got != tt.want {
				t.Errorf("checkFunc() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRateLimitError(t *testing.T) {
	runErrorCheckTest(t, []errorCheckTestCase{
		{"typed", &GeocodingError{Type: ErrorTypeRateLimit, Message: "slow down"}, true},
		{"message rate limit", errors.New("rate limit exceeded"), true},
		{"message too many requests", errors.New("Too Many Requests"), true},
		{"message 429", errors.New("nominatim returned status 429"), true},
		{"other type", &GeocodingError{Type: ErrorTypeNotFound, Message: "not found"}, false},
		{"unrelated", errors.New("boom"), false},
	}, IsRateLimitError)
}

func TestIsQuotaExceededError(t *testing.T) {
	runErrorCheckTest(t, []errorCheckTestCase{
		{"typed", &GeocodingError{Type: ErrorTypeQuotaExceeded, Message: "quota"}, true},
		{"message over_query_limit", errors.New("google maps status: OVER_QUERY_LIMIT"), true},
		{"message quota exceeded", errors.New("quota exceeded"), true},
		{"other type", &GeocodingError{Type: ErrorTypeRateLimit, Message: "rate"}, false},
		{"unrelated", errors.New("boom"), false},
	}, IsQuotaExceededError)
}

func TestIsTimeoutError(t *testing.T) {
	runErrorCheckTest(t, []errorCheckTestCase{
		{"typed", &GeocodingError{Type: ErrorTypeTimeout, Message: "timeout"}, true},
		{"wrapped deadline", fmt.Errorf("geocoding: %w", context.DeadlineExceeded), true},
		{"cancelled", fmt.Errorf("geocoding: %w", context.Canceled), true},
		{"message timeout", errors.New("request timeout after 10 seconds"), true},
		{"other type", &GeocodingError{Type: ErrorTypeNotFound, Message: "not found"}, false},
		{"unrelated", errors.New("boom"), false},
	}, IsTimeoutError)
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		statusCode int
		wantType   ErrorType
	}{
		{429, ErrorTypeRateLimit},
		{403, ErrorTypeQuotaExceeded},
		{400, ErrorTypeInvalidRequest},
		{404, ErrorTypeNotFound},
		{502, ErrorTypeNetworkError},
		{503, ErrorTypeNetworkError},
		{504, ErrorTypeNetworkError},
		{500, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.statusCode), func(t *testing.T) {
			got := ClassifyHTTPError(tt.statusCode, "nominatim")
			if got.Type != tt.wantType {
				t.Errorf("ClassifyHTTPError() type = %v, want %v", got.Type, tt.wantType)
			}

			if !strings.HasPrefix(got.Error(), "nominatim: ") {
				t.Errorf("expected provider prefix, got %q", got.Error())
			}
		})
	}
}

func TestGeocodingErrorUnwrap(t *testing.T) {
	innerErr := errors.New("inner error")
	geoErr := &GeocodingError{
		Type:    ErrorTypeNotFound,
		Message: "location not found",
		Err:     innerErr,
	}

	if !errors.Is(geoErr, innerErr) {
		t.Error("errors.Is should find wrapped error")
	}

	if geoErr.Error() != "location not found: inner error" {
		t.Errorf("unexpected message %q", geoErr.Error())
	}
}
