// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/mireportec/mireportec/geocoding"
	"github.com/mireportec/mireportec/metrics"
	"github.com/mireportec/mireportec/municipality"
	"github.com/mireportec/mireportec/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// carmenGeocoder answers Carmen, Central, San José north of 9.9 and nothing
// elsewhere.
type carmenGeocoder struct{}

func (carmenGeocoder) Name() string { return "carmen" }

func (carmenGeocoder) Reverse(_ context.Context, lat, _ float64) (*geocoding.Address, error) {
	if lat <= 9.9 {
		return &geocoding.Address{}, nil
	}

	return &geocoding.Address{
		Fields: map[string]string{
			"suburb": "Carmen",
			"county": "Central",
			"state":  "San José",
		},
		DisplayName: "Carmen, Central, San José, Costa Rica",
	}, nil
}

const testRegistry = `{
  "municipalidades": [
    {
      "provincia": "San José",
      "municipalidades": [
        {"nombre": "Municipalidad de San José", "ubicacion": {"canton": "Central"}},
        {"nombre": "Concejo Municipal de Distrito de Carmen", "ubicacion": {"canton": "Central", "distrito": "Carmen"}}
      ]
    }
  ]
}`

func setupServerTest(t *testing.T, opts Options) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := report.NewRepository(db)
	require.NoError(t, repo.CreateSchema())

	registry, err := municipality.Parse([]byte(testRegistry))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	assigner := municipality.NewAssigner(geocoding.NewResolver(carmenGeocoder{}, m), registry, time.Second, m)
	svc := report.NewService(repo, assigner, clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)), m)

	if opts.Gatherer == nil {
		opts.Gatherer = reg
	}

	return NewServer(svc, assigner, opts).Router()
}

func do(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())

	return v
}

func createReport(t *testing.T, router *gin.Engine, lat float64, description string) *report.Report {
	t.Helper()

	w := do(t, router, http.MethodPost, "/api/reports", report.NewReport{
		CitizenID:   "1234567890",
		CitizenName: "Ana",
		Description: description,
		Location:    report.Location{Lat: lat, Lng: -84.0772, Address: "Avenida 3"},
		Tags:        []string{"vía"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	return decode[*report.Report](t, w)
}

func TestCreateAndGetReport(t *testing.T) {
	router := setupServerTest(t, Options{})

	rep := createReport(t, router, 9.9355, "Bache enorme")
	require.NotNil(t, rep.Municipality)
	assert.Equal(t, "Concejo Municipal de Distrito de Carmen", rep.Municipality.Name)
	assert.Equal(t, report.StatusUnreviewed, rep.Status)

	w := do(t, router, http.MethodGet, "/api/reports/"+rep.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, rep.ID, decode[*report.Report](t, w).ID)

	w = do(t, router, http.MethodGet, "/api/reports/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateReportValidation(t *testing.T) {
	router := setupServerTest(t, Options{})

	w := do(t, router, http.MethodPost, "/api/reports", report.NewReport{CitizenID: "12", Description: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/reports", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchReports(t *testing.T) {
	router := setupServerTest(t, Options{})

	createReport(t, router, 9.9355, "Bache enorme")
	createReport(t, router, 9.5, "Alcantarilla sin tapa")

	w := do(t, router, http.MethodGet, "/api/reports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]*report.Report](t, w), 2)

	w = do(t, router, http.MethodGet, "/api/reports?q=BACHE", nil)
	got := decode[[]*report.Report](t, w)
	require.Len(t, got, 1)
	assert.Equal(t, "Bache enorme", got[0].Description)

	w = do(t, router, http.MethodGet, "/api/reports?location=san+jos%C3%A9&municipality=carmen", nil)
	assert.Len(t, decode[[]*report.Report](t, w), 1)

	w = do(t, router, http.MethodGet, "/api/reports/facets", nil)
	facets := decode[report.Facets](t, w)
	assert.Equal(t, []string{"San José"}, facets.Provinces)
}

func TestVoteCommentStatus(t *testing.T) {
	router := setupServerTest(t, Options{})
	rep := createReport(t, router, 9.9355, "Bache enorme")

	w := do(t, router, http.MethodPost, "/api/reports/"+rep.ID+"/votes", gin.H{"user_id": "u1", "value": 1})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]int{"score": 1}, decode[map[string]int](t, w))

	w = do(t, router, http.MethodPost, "/api/reports/"+rep.ID+"/votes", gin.H{"user_id": "u1", "value": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/reports/"+rep.ID+"/comments", report.NewComment{AuthorID: "u2", AuthorName: "Luis", Text: "Lo vi"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, decode[[]report.Comment](t, w), 1)

	w = do(t, router, http.MethodPut, "/api/reports/"+rep.ID+"/status", report.StatusUpdate{Status: report.StatusResolved, Note: "Reparado", Author: "Staff"})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[*report.Report](t, w)
	assert.Equal(t, report.StatusResolved, updated.Status)
	assert.Len(t, updated.MunicipalityNotes, 1)

	w = do(t, router, http.MethodPut, "/api/reports/"+rep.ID+"/status", report.StatusUpdate{Status: "Archivado"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/staff/reports?municipality=CARMEN", nil)
	assert.Len(t, decode[[]*report.Report](t, w), 1)

	w = do(t, router, http.MethodGet, "/api/staff/reports", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateAndDeleteReport(t *testing.T) {
	router := setupServerTest(t, Options{})
	rep := createReport(t, router, 9.9355, "Bache enorme")

	w := do(t, router, http.MethodPut, "/api/reports/"+rep.ID, gin.H{"citizen_id": "9999999999", "description": "otro"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, router, http.MethodPut, "/api/reports/"+rep.ID, gin.H{
		"citizen_id": "1234567890",
		"location":   gin.H{"lat": 9.5, "lng": -84.0},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[*report.Report](t, w)
	assert.Nil(t, updated.Municipality)
	assert.Equal(t, "Bache enorme", updated.Description)

	w = do(t, router, http.MethodGet, "/api/citizens/1234567890/reports", nil)
	assert.Len(t, decode[[]*report.Report](t, w), 1)

	w = do(t, router, http.MethodDelete, "/api/reports/"+rep.ID+"?citizen_id=1234567890", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodDelete, "/api/reports/"+rep.ID+"?citizen_id=1234567890", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNearbyAndCells(t *testing.T) {
	router := setupServerTest(t, Options{})
	createReport(t, router, 9.9355, "Bache enorme")

	w := do(t, router, http.MethodGet, "/api/reports/nearby?lat=9.9350&lng=-84.0770", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]report.Nearby](t, w), 1)

	w = do(t, router, http.MethodGet, "/api/reports/nearby?lat=abc&lng=1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/reports/nearby?lng=1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/reports/cells?res=6", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cells := decode[[]report.CellCount](t, w)
	require.Len(t, cells, 1)
	assert.Equal(t, 1, cells[0].Count)

	w = do(t, router, http.MethodGet, "/api/reports/cells?res=12", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHotspots(t *testing.T) {
	router := setupServerTest(t, Options{})
	createReport(t, router, 9.9355, "Bache enorme")
	createReport(t, router, 9.9357, "Otro bache")

	w := do(t, router, http.MethodGet, "/api/reports/hotspots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	hotspots := decode[[]report.Hotspot](t, w)
	require.Len(t, hotspots, 1)
	assert.Len(t, hotspots[0].Reports, 2)

	w = do(t, router, http.MethodGet, "/api/reports/hotspots?distance=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]report.Hotspot](t, w))

	w = do(t, router, http.MethodGet, "/api/reports/hotspots?min=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMunicipalities(t *testing.T) {
	router := setupServerTest(t, Options{})

	w := do(t, router, http.MethodGet, "/api/municipalities", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var listing struct {
		Provinces      []string              `json:"provinces"`
		Municipalities []municipality.Record `json:"municipalities"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Equal(t, []string{"San José"}, listing.Provinces)
	assert.Len(t, listing.Municipalities, 2)

	w = do(t, router, http.MethodGet, "/api/municipalities/assign?lat=9.9355&lng=-84.0772", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[municipality.Assignment](t, w)
	require.NotNil(t, res.Municipality)
	assert.Equal(t, "Carmen", res.Municipality.District)
	assert.Equal(t, municipality.TierDistrict, res.Tier)

	w = do(t, router, http.MethodGet, "/api/municipalities/assign?lat=9.0&lng=-84.0772", nil)
	res = decode[municipality.Assignment](t, w)
	assert.Nil(t, res.Municipality)
	assert.Equal(t, municipality.TierIncomplete, res.Tier)
}

func TestHealthAndMetrics(t *testing.T) {
	router := setupServerTest(t, Options{})
	createReport(t, router, 9.9355, "Bache enorme")

	w := do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mireportec_reports_created_total 1")
	assert.Contains(t, w.Body.String(), `mireportec_municipality_assignments_total{tier="district"} 1`)
}

func TestRateLimit(t *testing.T) {
	router := setupServerTest(t, Options{RequestsPerSecond: 1})

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/reports", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, router, http.MethodGet, "/api/reports", nil).Code)

	// health checks are not limited
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/healthz", nil).Code)
}
