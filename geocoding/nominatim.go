// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mireportec/mireportec/utils/htmlutils"
	"golang.org/x/time/rate"
)

// DefaultNominatimURL is the public OpenStreetMap instance.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// NominatimOptions configures a NominatimGeocoder.
type NominatimOptions struct {
	// BaseURL of the Nominatim instance, DefaultNominatimURL when empty
	BaseURL string

	// Language sent as accept-language, "es" when empty
	Language string

	// HTTPClient used for requests. It must send a User-Agent, the public
	// instance rejects anonymous clients.
	HTTPClient *http.Client

	// RequestsPerSecond caps outgoing requests. The public instance allows 1.
	// Negative means unlimited.
	RequestsPerSecond float64
}

// NominatimGeocoder uses the OpenStreetMap Nominatim reverse API.
type NominatimGeocoder struct {
	baseURL    string
	language   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewNominatimGeocoder creates a new Nominatim geocoder.
func NewNominatimGeocoder(options NominatimOptions) *NominatimGeocoder {
	g := &NominatimGeocoder{
		baseURL:    strings.TrimRight(options.BaseURL, "/"),
		language:   options.Language,
		httpClient: options.HTTPClient,
	}

	if g.baseURL == "" {
		g.baseURL = DefaultNominatimURL
	}

	if g.language == "" {
		g.language = "es"
	}

	if g.httpClient == nil {
		g.httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	switch {
	case options.RequestsPerSecond < 0:
		g.limiter = rate.NewLimiter(rate.Inf, 1)
	case options.RequestsPerSecond == 0:
		g.limiter = rate.NewLimiter(rate.Limit(1), 1)
	default:
		g.limiter = rate.NewLimiter(rate.Limit(options.RequestsPerSecond), 1)
	}

	return g
}

// Name implements ReverseGeocoder.
func (g *NominatimGeocoder) Name() string {
	return "nominatim"
}

type nominatimResponse struct {
	Address     map[string]any `json:"address"`
	DisplayName string         `json:"display_name"`
	Error       string         `json:"error"`
}

// Reverse implements ReverseGeocoder.
func (g *NominatimGeocoder) Reverse(ctx context.Context, lat, lng float64) (*Address, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, &GeocodingError{Type: ErrorTypeTimeout, Message: "waiting for nominatim rate limiter", Err: err}
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	params.Set("format", "json")
	params.Set("addressdetails", "1")
	params.Set("accept-language", g.language)

	reqURL := g.baseURL + "/reverse?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating nominatim request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, &GeocodingError{Type: ErrorTypeTimeout, Message: "nominatim request aborted", Err: err}
		}

		return nil, &GeocodingError{Type: ErrorTypeNetworkError, Message: "nominatim request failed", Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyHTTPError(resp.StatusCode, g.Name())
	}

	body, err := htmlutils.AsReader(resp)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeMalformedResponse, Message: "reading nominatim response", Err: err}
	}

	var nr nominatimResponse
	if err := json.NewDecoder(body).Decode(&nr); err != nil {
		return nil, &GeocodingError{Type: ErrorTypeMalformedResponse, Message: "decoding nominatim response", Err: err}
	}

	// Nominatim answers 200 with an error message for points in the sea and such.
	if nr.Error != "" {
		return &Address{}, nil
	}

	addr := &Address{
		Fields:      make(map[string]string, len(nr.Address)),
		DisplayName: nr.DisplayName,
	}

	for k, v := range nr.Address {
		if s, ok := v.(string); ok {
			addr.Fields[k] = s
		}
	}

	return addr, nil
}
