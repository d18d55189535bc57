// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"
	"slices"
)

// Hotspot is a group of reports close to each other, likely about the same
// problem.
type Hotspot struct {
	Reports []*Report `json:"reports"`
}

// clusterReports groups reports so that every member lies within threshold
// meters of some other member of its cluster.
func clusterReports(reports []*Report, threshold float64) [][]*Report {
	clusters := make([][]*Report, 0, len(reports))

	visited := make([]bool, len(reports))

	for i, r := range reports {
		if visited[i] {
			continue
		}

		cluster := []*Report{r}
		visited[i] = true

		// cluster grows while we walk it
		for k := 0; k < len(cluster); k++ {
			p := cluster[k].Location.Point()

			for j, other := range reports {
				if visited[j] {
					continue
				}

				op := other.Location.Point()
				if p.HaversineDistance(&op) <= threshold {
					cluster = append(cluster, other)
					visited[j] = true
				}
			}
		}

		clusters = append(clusters, cluster)
	}

	return clusters
}

// Hotspots groups open reports within distance meters of each other and
// returns the groups with at least minSize reports, biggest first. Resolved
// and rejected reports are left out.
func (s *Service) Hotspots(distance float64, minSize int) ([]Hotspot, error) {
	all, err := s.repo.GetAll()
	if err != nil {
		return nil, fmt.Errorf("loading reports: %w", err)
	}

	open := make([]*Report, 0, len(all))
	for _, r := range all {
		if r.Status != StatusResolved && r.Status != StatusRejected {
			open = append(open, r)
		}
	}

	SortByDate(open)

	ret := []Hotspot{}

	for _, c := range clusterReports(open, distance) {
		if len(c) >= minSize {
			ret = append(ret, Hotspot{Reports: c})
		}
	}

	slices.SortStableFunc(ret, func(a, b Hotspot) int { return len(b.Reports) - len(a.Reports) })

	return ret, nil
}
