// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// GeocodingError is a provider failure along with its class.
type GeocodingError struct {
	Type    ErrorType
	Message string
	Err     error
}

// ErrorType classifies provider failures.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeRateLimit
	ErrorTypeQuotaExceeded
	ErrorTypeTimeout
	ErrorTypeNotFound
	ErrorTypeInvalidRequest
	ErrorTypeNetworkError
	ErrorTypeMalformedResponse
)

// Outcome labels of failed lookups, as recorded in metrics.
const (
	OutcomeRateLimit = "rate_limit"
	OutcomeQuota     = "quota"
	OutcomeTimeout   = "timeout"
	OutcomeNetwork   = "network"
	OutcomeError     = "error"
)

// Outcome tells which kind of failure err is, for metrics.
func Outcome(err error) string {
	var geoErr *GeocodingError

	switch {
	case IsRateLimitError(err):
		return OutcomeRateLimit
	case IsQuotaExceededError(err):
		return OutcomeQuota
	case IsTimeoutError(err):
		return OutcomeTimeout
	case errors.As(err, &geoErr) && geoErr.Type == ErrorTypeNetworkError:
		return OutcomeNetwork
	default:
		return OutcomeError
	}
}

func (e *GeocodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *GeocodingError) Unwrap() error {
	return e.Err
}

// IsRateLimitError reports whether the provider asked us to slow down.
func IsRateLimitError(err error) bool {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeRateLimit
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429")
}

// IsQuotaExceededError reports whether the provider refused because the key
// ran out of quota or is not allowed.
func IsQuotaExceededError(err error) bool {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeQuotaExceeded
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "over_query_limit") || strings.Contains(msg, "quota exceeded")
}

// IsTimeoutError reports whether the lookup ran out of time or was
// cancelled before an answer arrived.
func IsTimeoutError(err error) bool {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) && geoErr.Type == ErrorTypeTimeout {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}

// ClassifyHTTPError maps a non-200 provider status to a GeocodingError.
func ClassifyHTTPError(statusCode int, provider string) *GeocodingError {
	typ := ErrorTypeUnknown

	switch statusCode {
	case http.StatusTooManyRequests:
		typ = ErrorTypeRateLimit
	case http.StatusForbidden:
		typ = ErrorTypeQuotaExceeded
	case http.StatusBadRequest:
		typ = ErrorTypeInvalidRequest
	case http.StatusNotFound:
		typ = ErrorTypeNotFound
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		typ = ErrorTypeNetworkError
	}

	return &GeocodingError{
		Type:    typ,
		Message: fmt.Sprintf("%s: unexpected status %d %s", provider, statusCode, http.StatusText(statusCode)),
	}
}
