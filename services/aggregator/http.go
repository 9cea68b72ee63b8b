// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package aggregator

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/histocube/pkg/cube"
	"github.com/AleutianAI/histocube/pkg/telemetry"
)

// ServiceVersion is the aggregator service version.
const ServiceVersion = "0.1.0"

// Inspector is the read side of a histogram store, as the inspection
// API needs it. Both store backends satisfy it.
type Inspector interface {
	Get(path string) (cube.Handle, bool)
	List(prefix string) ([]string, error)
}

// ErrorResponse is the JSON error body returned by all handlers.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Handlers contains the HTTP handlers for the inspection API.
type Handlers struct {
	svc   *Service
	store Inspector
}

// NewHandlers creates handlers over a service and its store.
func NewHandlers(svc *Service, store Inspector) *Handlers {
	return &Handlers{svc: svc, store: store}
}

// RegisterRoutes registers all aggregator routes with the router group.
//
// Endpoints:
//
//	GET /v1/histocube/health - Health check
//	GET /v1/histocube/status - Current or last run status
//	GET /v1/histocube/histograms?prefix= - List stored histogram paths
//	GET /v1/histocube/histograms/*path - Fetch one histogram as JSON
//
// Example:
//
//	router := gin.New()
//	router.Use(gin.Recovery())
//	v1 := router.Group("/v1")
//	aggregator.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	hc := rg.Group("/histocube")
	{
		hc.GET("/health", handlers.HandleHealth)
		hc.GET("/status", handlers.HandleStatus)
		hc.GET("/histograms", handlers.HandleListHistograms)
		hc.GET("/histograms/*path", handlers.HandleGetHistogram)
	}
}

// NewRouter builds a gin engine with the inspection API and, when
// telemetry is initialized, the Prometheus scrape endpoint.
func NewRouter(handlers *Handlers) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)
	if mh := telemetry.MetricsHandler(); mh != nil {
		router.GET("/metrics", gin.WrapH(mh))
	}
	return router
}

// HandleHealth handles GET /v1/histocube/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": ServiceVersion,
	})
}

// HandleStatus handles GET /v1/histocube/status.
func (h *Handlers) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Status())
}

// HandleListHistograms handles GET /v1/histocube/histograms.
//
// Query Parameters:
//
//	prefix - Optional path prefix filter.
//
// Response:
//
//	200 OK: {"paths": [...], "count": n}
//	500 Internal Server Error: Store read failure
func (h *Handlers) HandleListHistograms(c *gin.Context) {
	paths, err := h.store.List(c.Query("prefix"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to list histograms",
			Code:  "STORE_ERROR",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"paths": paths,
		"count": len(paths),
	})
}

// HandleGetHistogram handles GET /v1/histocube/histograms/*path.
//
// Response:
//
//	200 OK: The histogram record (name, title, axes, bins, entries)
//	404 Not Found: No histogram at that path
func (h *Handlers) HandleGetHistogram(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("path"), "/")
	handle, ok := h.store.Get(path)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Histogram not found",
			Code:  "NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, handle.Histogram())
}
