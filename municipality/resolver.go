// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package municipality

import (
	"log"
	"strings"

	"github.com/mireportec/mireportec/geocoding"
	"github.com/mireportec/mireportec/utils/textutils"
)

// Tier names, as reported by ResolveTier.
const (
	TierDistrict    = "district"
	TierDisplayName = "display_name"
	TierCanton      = "canton"
	TierNone        = "none"
	TierNoProvince  = "no_province"
)

// Matcher decides whether a registry entry corresponds to geo. geo is
// normalized.
type Matcher func(e *Entry, geo geocoding.GeoInfo) bool

type tier struct {
	name  string
	match Matcher
}

// Evaluated in order, the first tier with a match wins.
var tiers = []tier{
	{TierDistrict, matchDistrict},
	{TierDisplayName, matchDisplayName},
	{TierCanton, matchCanton},
}

// matchDistrict wants both the district and the canton to be equal.
func matchDistrict(e *Entry, geo geocoding.GeoInfo) bool {
	return e.district != "" && e.district == geo.District && e.canton == geo.Canton
}

// matchDisplayName recovers a district-level body when the structured
// district does not line up with the registry but the full address mentions
// both its district and canton.
func matchDisplayName(e *Entry, geo geocoding.GeoInfo) bool {
	if geo.DisplayName == "" || e.district == "" {
		return false
	}

	return strings.Contains(geo.DisplayName, e.district) && strings.Contains(geo.DisplayName, e.canton)
}

// matchCanton only considers bodies that cover a whole canton.
func matchCanton(e *Entry, geo geocoding.GeoInfo) bool {
	return e.district == "" && e.canton == geo.Canton
}

func normalize(geo geocoding.GeoInfo) geocoding.GeoInfo {
	return geocoding.GeoInfo{
		Province:    textutils.LowerASCIIFolding(geo.Province),
		Canton:      textutils.LowerASCIIFolding(geo.Canton),
		District:    textutils.LowerASCIIFolding(geo.District),
		DisplayName: textutils.LowerASCIIFolding(geo.DisplayName),
	}
}

// Resolve finds the municipality responsible for geo, or nil. The returned
// Record is a copy of a registry entry.
func (r *Registry) Resolve(geo geocoding.GeoInfo) *Record {
	rec, _ := r.ResolveTier(geo)

	return rec
}

// ResolveTier is Resolve that also tells which tier matched.
func (r *Registry) ResolveTier(geo geocoding.GeoInfo) (*Record, string) {
	geo = normalize(geo)

	prov := r.province(geo.Province)
	if prov == nil {
		log.Printf("province %q not found in registry", geo.Province)

		return nil, TierNoProvince
	}

	for _, t := range tiers {
		for _, e := range prov.entries {
			if t.match(e, geo) {
				rec := e.Record

				return &rec, t.name
			}
		}
	}

	log.Printf("no municipality for %s/%s/%s", geo.Province, geo.Canton, geo.District)

	return nil, TierNone
}
