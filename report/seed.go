// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// SeedData represents the JSON seed file format.
type SeedData struct {
	Version     string    `json:"version"`
	LastUpdated time.Time `json:"last_updated"`
	Reports     []*Report `json:"reports"`
}

// ExportToJSON exports all reports to a JSON file.
func ExportToJSON(repo Repository, filepath string) (int, error) {
	reports, err := repo.GetAll()
	if err != nil {
		return 0, fmt.Errorf("listing reports: %w", err)
	}

	seed := &SeedData{
		Version:     "1.0",
		LastUpdated: time.Now(),
		Reports:     reports,
	}

	data, err := json.MarshalIndent(seed, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshaling JSON: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0o600); err != nil {
		return 0, fmt.Errorf("writing file: %w", err)
	}

	return len(reports), nil
}

// ImportFromJSON imports reports from a JSON file. Reports already stored
// with the same id are replaced.
func ImportFromJSON(repo Repository, filepath string) (int, error) {
	data, err := os.ReadFile(filepath) // #nosec G304 - filepath is provided by admin
	if err != nil {
		return 0, fmt.Errorf("reading file: %w", err)
	}

	var seed SeedData
	if err := json.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parsing JSON: %w", err)
	}

	imported := 0

	for _, rep := range seed.Reports {
		if rep == nil || rep.ID == "" {
			continue
		}

		if rep.Status == "" {
			rep.Status = StatusUnreviewed
		}

		if rep.UpdatedAt.IsZero() {
			rep.UpdatedAt = rep.CreatedAt
		}

		if err := repo.Save(rep); err != nil {
			return imported, fmt.Errorf("saving report %s: %w", rep.ID, err)
		}

		imported++
	}

	return imported, nil
}

// SeedIfEmpty seeds the database from a JSON file if no reports exist.
func SeedIfEmpty(repo Repository, filepath string) (bool, int, error) {
	count, err := repo.Count()
	if err != nil {
		return false, 0, fmt.Errorf("counting reports: %w", err)
	}

	if count > 0 {
		return false, count, nil
	}

	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return false, 0, nil
	}

	imported, err := ImportFromJSON(repo, filepath)
	if err != nil {
		return false, 0, err
	}

	return true, imported, nil
}
