// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package municipality

import (
	"context"
	"log"
	"time"

	"github.com/mireportec/mireportec/geocoding"
	"github.com/mireportec/mireportec/metrics"
)

// TierIncomplete is reported when the geocoder could not tell the province
// and canton of a coordinate.
const TierIncomplete = "incomplete"

// Assigner resolves coordinates into municipalities.
type Assigner struct {
	resolver *geocoding.Resolver
	registry *Registry
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// NewAssigner creates an Assigner. A zero timeout means no deadline other
// than the caller's.
func NewAssigner(resolver *geocoding.Resolver, registry *Registry, timeout time.Duration, m *metrics.Metrics) *Assigner {
	return &Assigner{
		resolver: resolver,
		registry: registry,
		timeout:  timeout,
		metrics:  m,
	}
}

// Registry returns the registry the assigner matches against.
func (a *Assigner) Registry() *Registry {
	return a.registry
}

// Assignment is the outcome of assigning a coordinate.
type Assignment struct {
	Municipality *Record           `json:"municipality"`
	GeoInfo      geocoding.GeoInfo `json:"geo_info"`
	Tier         string            `json:"tier"`
}

// Assign returns the municipality for lat, lng, or nil when the location is
// unknown or untracked. It never fails.
func (a *Assigner) Assign(ctx context.Context, lat, lng float64) *Record {
	return a.Explain(ctx, lat, lng).Municipality
}

// Explain is Assign with the intermediate geographic labels.
func (a *Assigner) Explain(ctx context.Context, lat, lng float64) Assignment {
	if a.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	geo := a.resolver.GeoInfo(ctx, lat, lng)

	if geo.Province == "" || geo.Canton == "" {
		log.Printf("incomplete location for %f,%f: %+v", lat, lng, geo)
		a.metrics.ObserveAssignment(TierIncomplete)

		return Assignment{GeoInfo: geo, Tier: TierIncomplete}
	}

	rec, tier := a.registry.ResolveTier(geo)
	a.metrics.ObserveAssignment(tier)

	if rec != nil {
		log.Printf("assigned %f,%f to %s (%s)", lat, lng, rec.Name, tier)
	}

	return Assignment{Municipality: rec, GeoInfo: geo, Tier: tier}
}
