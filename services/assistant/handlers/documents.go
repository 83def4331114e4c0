// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/JoeMat18/simulations-platform/services/assistant/datatypes"
	"github.com/JoeMat18/simulations-platform/services/assistant/ingest"
	"github.com/JoeMat18/simulations-platform/services/assistant/retrieval"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

// RunIngester indexes run directories. ingest.Ingester satisfies it.
type RunIngester interface {
	IngestRunDir(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// DocumentSearcher runs vector search over the ingested corpus.
// retrieval.Store satisfies it.
type DocumentSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]datatypes.SimulationDocumentResult, error)
}

// IngestDocuments indexes every artifact under a run directory into the
// vector store.
func IngestDocuments(ing RunIngester) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "IngestDocuments")
		defer span.End()

		var req ingest.Request
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		span.SetAttributes(
			attribute.String("ingest.run_dir", req.RunDir),
			attribute.String("ingest.experiment", req.ExperimentName),
		)

		result, err := ing.IngestRunDir(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if errors.Is(err, ingest.ErrInvalidRunDir) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			slog.Error("Ingestion failed", "run_dir", req.RunDir, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		slog.Info("Ingested run directory via API",
			"run_dir", req.RunDir,
			"experiment", req.ExperimentName,
			"chunks", result.Chunks,
			"imported", result.Imported,
		)
		c.JSON(http.StatusCreated, gin.H{
			"status":   "success",
			"run_dir":  req.RunDir,
			"files":    result.Files,
			"chunks":   result.Chunks,
			"imported": result.Imported,
			"replaced": result.Replaced,
		})
	}
}

// SearchDocuments runs a nearVector query over the ingested corpus. The
// query rides in ?q= and the result count in ?limit= (default 5, capped).
func SearchDocuments(searcher DocumentSearcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "SearchDocuments")
		defer span.End()

		query := c.Query("q")
		if query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'q' is required"})
			return
		}

		limit := defaultSearchLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'limit' must be a positive integer"})
				return
			}
			limit = parsed
		}
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}
		span.SetAttributes(attribute.Int("search.limit", limit))

		results, err := searcher.Search(ctx, query, limit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if errors.Is(err, retrieval.ErrNoEmbedder) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Vector search is not configured"})
				return
			}
			slog.Error("Document search failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
			return
		}
		if results == nil {
			results = []datatypes.SimulationDocumentResult{}
		}
		span.SetAttributes(attribute.Int("search.results", len(results)))

		c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
	}
}
