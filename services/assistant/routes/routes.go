// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes registers the assistant's HTTP surface on a gin engine.
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JoeMat18/simulations-platform/services/assistant/handlers"
)

// serviceName labels the health report.
const serviceName = "floodns-assistant"

// Deps carries the wired dependencies the routes close over. A nil field
// keeps its routes registered but answering 503, so the surface is stable
// whether or not every backing service is reachable.
type Deps struct {
	Pipeline     handlers.AnswerService
	Experiments  handlers.ExperimentStore
	Rerun        handlers.RerunStarter
	Ingester     handlers.RunIngester
	Searcher     handlers.DocumentSearcher
	HealthProbes map[string]handlers.Probe
}

// SetupRoutes registers every route on the router.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck(serviceName, deps.HealthProbes))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		if deps.Pipeline != nil {
			v1.POST("/ask", handlers.HandleAsk(deps.Pipeline))
		} else {
			v1.POST("/ask", unavailable("answer pipeline"))
		}

		experiments := v1.Group("/experiments")
		{
			if deps.Experiments != nil {
				experiments.GET("", handlers.ListExperiments(deps.Experiments))
				experiments.POST("", handlers.CreateExperiment(deps.Experiments))
				experiments.GET("/:id", handlers.GetExperiment(deps.Experiments))
				experiments.PUT("/:id", handlers.UpdateExperiment(deps.Experiments))
				experiments.DELETE("/:id", handlers.DeleteExperiment(deps.Experiments))
				experiments.GET("/:id/archive", handlers.ArchiveExperiment(deps.Experiments))
			} else {
				h := unavailable("experiment store")
				experiments.GET("", h)
				experiments.POST("", h)
				experiments.GET("/:id", h)
				experiments.PUT("/:id", h)
				experiments.DELETE("/:id", h)
				experiments.GET("/:id/archive", h)
			}
			if deps.Rerun != nil {
				experiments.POST("/:id/rerun", handlers.RerunExperiment(deps.Rerun))
			} else {
				experiments.POST("/:id/rerun", unavailable("re-run manager"))
			}
		}

		documents := v1.Group("/documents")
		{
			if deps.Ingester != nil {
				documents.POST("/ingest", handlers.IngestDocuments(deps.Ingester))
			} else {
				documents.POST("/ingest", unavailable("document ingestion"))
			}
			if deps.Searcher != nil {
				documents.GET("/search", handlers.SearchDocuments(deps.Searcher))
			} else {
				documents.GET("/search", unavailable("vector search"))
			}
		}
	}
}

// unavailable answers 503 for routes whose backing dependency is not wired.
func unavailable(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": resource + " is not available",
		})
	}
}
