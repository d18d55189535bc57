// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

// Package geocoding turns coordinates into normalized administrative labels
// (province, canton, district) using an external reverse geocoding provider.
package geocoding

import (
	"context"
	"log"
	"time"

	"github.com/mireportec/mireportec/metrics"
	"github.com/mireportec/mireportec/utils/textutils"
)

// Address is the raw answer of a provider: address components keyed by the
// Nominatim field names (state, county, city, suburb, ...) and the full label.
type Address struct {
	Fields      map[string]string
	DisplayName string
}

// Empty reports whether the provider found nothing for the coordinate.
func (a *Address) Empty() bool {
	return a == nil || (len(a.Fields) == 0 && a.DisplayName == "")
}

// ReverseGeocoder interface for different geocoding providers.
type ReverseGeocoder interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// Reverse looks up the address at lat, lng. Coordinates are not validated.
	Reverse(ctx context.Context, lat, lng float64) (*Address, error)
}

// GeoInfo holds the normalized administrative labels of a coordinate.
// All fields are empty when the lookup failed.
type GeoInfo struct {
	Province    string `json:"province"`
	Canton      string `json:"canton"`
	District    string `json:"district"`
	DisplayName string `json:"display_name"`
}

// IsZero reports whether nothing could be resolved.
func (g GeoInfo) IsZero() bool {
	return g == GeoInfo{}
}

// Candidate fields, first populated one wins.
var (
	ProvinceFields = []string{"state", "province"}
	CantonFields   = []string{"county", "city", "town", "municipality"}
	DistrictFields = []string{"village", "suburb", "neighbourhood", "hamlet", "quarter", "city_district"}
)

func firstPopulated(fields map[string]string, names []string) string {
	for _, name := range names {
		if v := fields[name]; v != "" {
			return v
		}
	}

	return ""
}

// Extract derives the normalized GeoInfo out of a provider address.
func Extract(addr *Address) GeoInfo {
	if addr == nil {
		return GeoInfo{}
	}

	return GeoInfo{
		Province:    textutils.LowerASCIIFolding(firstPopulated(addr.Fields, ProvinceFields)),
		Canton:      textutils.LowerASCIIFolding(firstPopulated(addr.Fields, CantonFields)),
		District:    textutils.LowerASCIIFolding(firstPopulated(addr.Fields, DistrictFields)),
		DisplayName: textutils.LowerASCIIFolding(addr.DisplayName),
	}
}

// Resolver wraps a provider and never fails: any provider error degrades to an
// empty GeoInfo.
type Resolver struct {
	geocoder ReverseGeocoder
	metrics  *metrics.Metrics
}

// NewResolver creates a Resolver. m may be nil.
func NewResolver(geocoder ReverseGeocoder, m *metrics.Metrics) *Resolver {
	return &Resolver{geocoder: geocoder, metrics: m}
}

// GeoInfo resolves lat, lng into normalized administrative labels.
func (r *Resolver) GeoInfo(ctx context.Context, lat, lng float64) GeoInfo {
	start := time.Now()

	addr, err := r.geocoder.Reverse(ctx, lat, lng)
	if err != nil {
		r.metrics.ObserveGeocode(r.geocoder.Name(), Outcome(err), time.Since(start))
		log.Printf("geocoding %f,%f with %s failed: %v", lat, lng, r.geocoder.Name(), err)

		return GeoInfo{}
	}

	if addr.Empty() {
		r.metrics.ObserveGeocode(r.geocoder.Name(), "empty", time.Since(start))

		return GeoInfo{}
	}

	r.metrics.ObserveGeocode(r.geocoder.Name(), "success", time.Since(start))

	return Extract(addr)
}
