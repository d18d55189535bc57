// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

// Package api exposes reports and municipality assignment over HTTP.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mireportec/mireportec/municipality"
	"github.com/mireportec/mireportec/report"
	"github.com/mireportec/mireportec/spatial"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const (
	defaultNearbyRadius = 1000
	defaultCellRes      = 7
	defaultHotspotDist  = 50
	defaultHotspotSize  = 2
)

// Options tunes the server.
type Options struct {
	// RequestsPerSecond caps the API as a whole, 0 disables the limit
	RequestsPerSecond int

	// Gatherer serves /metrics, prometheus.DefaultGatherer when nil
	Gatherer prometheus.Gatherer
}

// Server serves the reports API.
type Server struct {
	reports  *report.Service
	assigner *municipality.Assigner
	opts     Options
}

// NewServer creates a Server.
func NewServer(reports *report.Service, assigner *municipality.Assigner, opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	return &Server{
		reports:  reports,
		assigner: assigner,
		opts:     opts,
	}
}

// RateLimitMiddleware rejects requests beyond rps per second with 429.
func RateLimitMiddleware(rps int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), rps)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})

			return
		}

		c.Next()
	}
}

// Router builds the gin engine with every route.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	if s.opts.RequestsPerSecond > 0 {
		api.Use(RateLimitMiddleware(s.opts.RequestsPerSecond))
	}

	api.GET("/reports", s.listReports)
	api.POST("/reports", s.createReport)
	api.GET("/reports/facets", s.facets)
	api.GET("/reports/nearby", s.nearby)
	api.GET("/reports/cells", s.cells)
	api.GET("/reports/hotspots", s.hotspots)
	api.GET("/reports/:id", s.getReport)
	api.PUT("/reports/:id", s.updateReport)
	api.DELETE("/reports/:id", s.deleteReport)
	api.POST("/reports/:id/votes", s.vote)
	api.POST("/reports/:id/comments", s.addComment)
	api.PUT("/reports/:id/status", s.updateStatus)
	api.GET("/citizens/:citizen_id/reports", s.citizenReports)
	api.GET("/staff/reports", s.staffReports)
	api.GET("/municipalities", s.listMunicipalities)
	api.GET("/municipalities/assign", s.assign)

	return r
}

// Run listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)

	go func() {
		log.Printf("listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func writeError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, report.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, report.ErrForbidden):
		ctx.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, report.ErrInvalidStatus),
		errors.Is(err, report.ErrInvalidVote),
		errors.Is(err, report.ErrInvalidCitizen),
		errors.Is(err, report.ErrEmptyText):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("%s %s: %v", ctx.Request.Method, ctx.Request.URL.Path, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) healthz(ctx *gin.Context) {
	if _, err := s.reports.Repository().Count(); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listReports(ctx *gin.Context) {
	var f report.Filters
	if err := ctx.ShouldBindQuery(&f); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	reports, err := s.reports.Search(f)
	if err != nil {
		writeError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, reports)
}

func (s *Server) getReport(ctx *gin.Context) {
	rep, err := s.reports.Get(ctx.Param("id"))
	if err != nil {
		writeError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, rep)
}

func (s *Server) createReport(ctx *gin.Context) {
	var in report.NewReport
	if err := ctx.ShouldBindJSON(&in); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	rep, err := s.reports.Create(ctx.Request.Context(), in)
	if err != nil {
		writeError(ctx, err)

		return
	}

	ctx.JSON(http.StatusCreated, rep)
}

type updateRequest struct {
	CitizenID string `json:"citizen_id"`
	report.Patch
}

func (s *Server) updateReport(ctx *gin.Context) {
	var req updateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	rep, err := s.reports.Update(ctx.Request.Context(), ctx.Param("id"), req.CitizenID, req.Patch)
	if err != nil {
		writeError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, rep)
}

func (s *Server) deleteReport(ctx *gin.Context) {
	if err := s.reports.Delete(ctx.Param("id"), ctx.Query("citizen_id")); err != nil {
		writeError(ctx, err)

		return
	}

	ctx.Status(http.StatusNoContent)
}

type voteRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Value  int    `json:"value"`
}

func (s *Server) vote(ctx *gin.Context) {
	var req voteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	score, err := s.reports.Vote(ctx.Param("id"), req.UserID, req.Value)
	if err != nil {
		writeError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, gin.H{"score": score})
}

func (s *Server) addComment(ctx *gin.Context) {
	var c report.NewComment
	if err := ctx.ShouldBindJSON(&c); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	rep, err := s.reports.AddComment(ctx.Param("id"), c)
	if err != nil {
		writeError(ctx, err)

		return
	}

	ctx.JSON(http.StatusCreated, rep.Comments)
}

func (s *Server) updateStatus(ctx *gin.Context) {
	var u report.StatusUpdate
	if err := ctx.ShouldBindJSON(&u); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	rep, err := s.reports.UpdateStatus(ctx.Param("id"), u)
	if err != nil {
		writeError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, rep)
}

func (s *Server) citizenReports(ctx *gin.Context) {
	reports, err := s.reports.ListByCitizen(ctx.Param("citizen_id"))
	if err != nil {
		writeError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, reports)
}

func (s *Server) staffReports(ctx *gin.Context) {
	name := ctx.Query("municipality")
	if name == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "municipality query parameter is required"})

		return
	}

	reports, err := s.reports.ListForMunicipality(name)
	if err != nil {
		writeError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, reports)
}

func (s *Server) facets(ctx *gin.Context) {
	facets, err := s.reports.Facets()
	if err != nil {
		writeError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, facets)
}

// floatQuery parses a float query parameter, def when absent.
func floatQuery(ctx *gin.Context, name string, def float64, required bool) (float64, bool) {
	raw, ok := ctx.GetQuery(name)
	if !ok || raw == "" {
		if required {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": name + " query parameter is required"})

			return 0, false
		}

		return def, true
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})

		return 0, false
	}

	return v, true
}

func (s *Server) nearby(ctx *gin.Context) {
	lat, ok := floatQuery(ctx, "lat", 0, true)
	if !ok {
		return
	}

	lng, ok := floatQuery(ctx, "lng", 0, true)
	if !ok {
		return
	}

	radius, ok := floatQuery(ctx, "radius", defaultNearbyRadius, false)
	if !ok {
		return
	}

	found, err := s.reports.Nearby(spatial.Point{Lat: lat, Lng: lng}, radius)
	if err != nil {
		writeError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, found)
}

func (s *Server) cells(ctx *gin.Context) {
	res := defaultCellRes

	if raw := ctx.Query("res"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > report.MaxCellResolution {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "res must be between 1 and " + strconv.Itoa(report.MaxCellResolution)})

			return
		}

		res = v
	}

	counts, err := s.reports.Cells(res)
	if err != nil {
		writeError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, counts)
}

func (s *Server) hotspots(ctx *gin.Context) {
	distance, ok := floatQuery(ctx, "distance", defaultHotspotDist, false)
	if !ok {
		return
	}

	minSize := defaultHotspotSize

	if raw := ctx.Query("min"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "min must be a positive integer"})

			return
		}

		minSize = v
	}

	found, err := s.reports.Hotspots(distance, minSize)
	if err != nil {
		writeError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, found)
}

func (s *Server) listMunicipalities(ctx *gin.Context) {
	registry := s.assigner.Registry()

	ctx.JSON(http.StatusOK, gin.H{
		"provinces":      registry.Provinces(),
		"municipalities": registry.All(),
	})
}

func (s *Server) assign(ctx *gin.Context) {
	lat, ok := floatQuery(ctx, "lat", 0, true)
	if !ok {
		return
	}

	lng, ok := floatQuery(ctx, "lng", 0, true)
	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, s.assigner.Explain(ctx.Request.Context(), lat, lng))
}
