// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultGoogleMapsURL is the Google Maps Geocoding API endpoint.
const DefaultGoogleMapsURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleMapsGeocoder uses Google Maps Geocoding API.
type GoogleMapsGeocoder struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGoogleMapsGeocoder creates a new Google Maps geocoder. A nil client gets
// a plain one with a 10 seconds timeout.
func NewGoogleMapsGeocoder(apiKey string, httpClient *http.Client) *GoogleMapsGeocoder {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}

	return &GoogleMapsGeocoder{
		apiKey:     apiKey,
		baseURL:    DefaultGoogleMapsURL,
		httpClient: httpClient,
	}
}

// Name implements ReverseGeocoder.
func (g *GoogleMapsGeocoder) Name() string {
	return "google_maps"
}

type googleMapsResponse struct {
	Results []struct {
		AddressComponents []struct {
			LongName string   `json:"long_name"`
			Types    []string `json:"types"`
		} `json:"address_components"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
	Status       string `json:"status"` // OK, ZERO_RESULTS, etc.
	ErrorMessage string `json:"error_message"`
}

// Google component types translated to the Nominatim field names used by Extract.
// In Costa Rica level 1 is the province, level 2 the canton and level 3 the district.
var googleComponentFields = map[string]string{
	"administrative_area_level_1": "state",
	"administrative_area_level_2": "county",
	"locality":                    "city",
	"administrative_area_level_3": "village",
	"sublocality":                 "suburb",
	"sublocality_level_1":         "suburb",
	"neighborhood":                "neighbourhood",
}

var adminPrefixes = []string{
	"provincia de ", "cantón de ", "canton de ", "distrito de ",
	"cantón ", "canton ", "distrito ",
}

// stripAdminPrefix removes the "Provincia de" style decorations Google adds to
// administrative names.
func stripAdminPrefix(s string) string {
	lower := strings.ToLower(s)
	for _, p := range adminPrefixes {
		if strings.HasPrefix(lower, p) {
			return strings.TrimSpace(s[len(p):])
		}
	}

	return strings.TrimSpace(strings.TrimSuffix(s, " Province"))
}

// Reverse implements ReverseGeocoder.
func (g *GoogleMapsGeocoder) Reverse(ctx context.Context, lat, lng float64) (*Address, error) {
	params := url.Values{}
	params.Set("latlng", fmt.Sprintf("%f,%f", lat, lng))
	params.Set("key", g.apiKey)
	params.Set("language", "es")

	reqURL := g.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating google maps request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeNetworkError, Message: "geocoding request failed", Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyHTTPError(resp.StatusCode, g.Name())
	}

	var gmResp googleMapsResponse
	if err := json.NewDecoder(resp.Body).Decode(&gmResp); err != nil {
		return nil, &GeocodingError{Type: ErrorTypeMalformedResponse, Message: "decoding response", Err: err}
	}

	switch gmResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return &Address{}, nil
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT", "REQUEST_DENIED":
		return nil, &GeocodingError{
			Type:    ErrorTypeQuotaExceeded,
			Message: fmt.Sprintf("google maps status: %s %s", gmResp.Status, gmResp.ErrorMessage),
		}
	default:
		return nil, fmt.Errorf("google maps status: %s", gmResp.Status)
	}

	if len(gmResp.Results) == 0 {
		return &Address{}, nil
	}

	addr := &Address{
		Fields:      make(map[string]string),
		DisplayName: gmResp.Results[0].FormattedAddress,
	}

	// Results go from the most to the least specific, the first value seen for a field wins.
	for _, result := range gmResp.Results {
		for _, component := range result.AddressComponents {
			for _, t := range component.Types {
				field, ok := googleComponentFields[t]
				if !ok {
					continue
				}

				if _, seen := addr.Fields[field]; !seen {
					addr.Fields[field] = stripAdminPrefix(component.LongName)
				}
			}
		}
	}

	return addr, nil
}
