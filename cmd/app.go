// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/jonboulle/clockwork"
	"github.com/mireportec/mireportec/geocoding"
	"github.com/mireportec/mireportec/metrics"
	"github.com/mireportec/mireportec/municipality"
	"github.com/mireportec/mireportec/report"
	"github.com/mireportec/mireportec/utils/httputils"
)

const (
	dbFile = "mireportec.duckdb"

	geocoderNominatim = "nominatim"
	geocoderGoogle    = "google"
)

// app bundles what the commands share.
type app struct {
	db       *sql.DB
	registry *municipality.Registry
	assigner *municipality.Assigner
	reports  *report.Service
}

func (a *app) Close() error {
	if a.db == nil {
		return nil
	}

	return a.db.Close()
}

func openDB() (*sql.DB, error) {
	dir := config.GetString("db-path")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := sql.Open("duckdb", filepath.Join(dir, dbFile))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return db, nil
}

func httpClientOptions() httputils.ClientOptions {
	return httputils.ClientOptions{
		UserAgent:           "mireportec/" + Version + " (+https://github.com/mireportec/mireportec)",
		EnableHTTPTrace:     config.GetBool("trace-http"),
		EnableHTTPBodyTrace: config.GetBool("trace-http-body"),
	}
}

func newGeocoder(ctx context.Context) (geocoding.ReverseGeocoder, error) {
	client := httputils.NewClient(httpClientOptions())

	switch name := config.GetString("geocoder"); name {
	case geocoderNominatim:
		return geocoding.NewNominatimGeocoder(geocoding.NominatimOptions{
			BaseURL:    config.GetString("nominatim-url"),
			HTTPClient: client,
		}), nil
	case geocoderGoogle:
		key, err := geocoding.GoogleMapsAPIKey(ctx)
		if err != nil {
			return nil, err
		}

		return geocoding.NewGoogleMapsGeocoder(key, client), nil
	default:
		return nil, fmt.Errorf("unknown geocoder %q", name)
	}
}

func newAssigner(ctx context.Context, m *metrics.Metrics) (*municipality.Assigner, error) {
	registry, err := municipality.Open(config.GetString("registry"))
	if err != nil {
		return nil, fmt.Errorf("loading municipality registry: %w", err)
	}

	geocoder, err := newGeocoder(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating geocoder: %w", err)
	}

	resolver := geocoding.NewResolver(geocoder, m)

	return municipality.NewAssigner(resolver, registry, config.GetDuration("geocode-timeout"), m), nil
}

func openRepository() (*sql.DB, report.Repository, error) {
	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}

	repo := report.NewRepository(db)
	if err := repo.CreateSchema(); err != nil {
		_ = db.Close()

		return nil, nil, fmt.Errorf("creating schema: %w", err)
	}

	return db, repo, nil
}

// newApp opens the database and wires the assigner and the report service.
func newApp(ctx context.Context, m *metrics.Metrics) (*app, error) {
	assigner, err := newAssigner(ctx, m)
	if err != nil {
		return nil, err
	}

	db, repo, err := openRepository()
	if err != nil {
		return nil, err
	}

	return &app{
		db:       db,
		registry: assigner.Registry(),
		assigner: assigner,
		reports:  report.NewService(repo, assigner, clockwork.NewRealClock(), m),
	}, nil
}

// newStoreApp opens the database without a geocoder. Its service never
// assigns municipalities.
func newStoreApp() (*app, error) {
	db, repo, err := openRepository()
	if err != nil {
		return nil, err
	}

	return &app{
		db:      db,
		reports: report.NewService(repo, nil, clockwork.NewRealClock(), nil),
	}, nil
}
