// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/JoeMat18/simulations-platform/services/assistant/datatypes"
	"github.com/JoeMat18/simulations-platform/services/assistant/rerun"
	"github.com/JoeMat18/simulations-platform/services/assistant/store"
)

// archiveFilename is the fixed download name for run directory archives.
const archiveFilename = "simulation_output.zip"

// ExperimentStore is the slice of the experiment store the CRUD handlers
// drive. store.ExperimentStore satisfies it.
type ExperimentStore interface {
	List(ctx context.Context) ([]datatypes.Experiment, error)
	Create(ctx context.Context, req *datatypes.CreateExperimentRequest) (*datatypes.Experiment, error)
	Get(ctx context.Context, id string) (*datatypes.Experiment, error)
	Update(ctx context.Context, id string, req *datatypes.UpdateExperimentRequest) (*datatypes.Experiment, error)
	Delete(ctx context.Context, id string) error
}

// RerunStarter launches background re-executions. rerun.Manager satisfies it.
type RerunStarter interface {
	ReRun(ctx context.Context, id string) (string, error)
}

// ListExperiments returns every experiment record, newest first.
func ListExperiments(st ExperimentStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "ListExperiments")
		defer span.End()

		experiments, err := st.List(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to list experiments", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list experiments"})
			return
		}
		if experiments == nil {
			experiments = []datatypes.Experiment{}
		}
		span.SetAttributes(attribute.Int("experiment.count", len(experiments)))

		c.JSON(http.StatusOK, gin.H{"experiments": experiments, "count": len(experiments)})
	}
}

// CreateExperiment registers a new experiment record in state Created.
func CreateExperiment(st ExperimentStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "CreateExperiment")
		defer span.End()

		var req datatypes.CreateExperimentRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		exp, err := st.Create(ctx, &req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			status := experimentErrorStatus(err)
			if status == http.StatusInternalServerError {
				slog.Error("Failed to create experiment", "simulation_name", req.SimulationName, "error", err)
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		span.SetAttributes(attribute.String("experiment.id", exp.ID))

		c.JSON(http.StatusCreated, exp)
	}
}

// GetExperiment fetches one experiment by id.
func GetExperiment(st ExperimentStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "GetExperiment")
		defer span.End()

		id := c.Param("id")
		span.SetAttributes(attribute.String("experiment.id", id))

		exp, err := st.Get(ctx, id)
		if err != nil {
			span.RecordError(err)
			c.JSON(experimentErrorStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, exp)
	}
}

// UpdateExperiment edits an experiment's simulation name and params tuple.
func UpdateExperiment(st ExperimentStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "UpdateExperiment")
		defer span.End()

		id := c.Param("id")
		span.SetAttributes(attribute.String("experiment.id", id))

		var req datatypes.UpdateExperimentRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		exp, err := st.Update(ctx, id, &req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(experimentErrorStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, exp)
	}
}

// DeleteExperiment removes an experiment record.
func DeleteExperiment(st ExperimentStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "DeleteExperiment")
		defer span.End()

		id := c.Param("id")
		span.SetAttributes(attribute.String("experiment.id", id))

		if err := st.Delete(ctx, id); err != nil {
			span.RecordError(err)
			c.JSON(experimentErrorStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": id})
	}
}

// RerunExperiment starts a background re-execution and returns 202 with the
// job id. The experiment is already in Re-Running state when the response
// goes out; clients poll GET /v1/experiments/:id for the terminal state.
func RerunExperiment(mgr RerunStarter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "RerunExperiment")
		defer span.End()

		id := c.Param("id")
		span.SetAttributes(attribute.String("experiment.id", id))

		jobID, err := mgr.ReRun(ctx, id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(experimentErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		span.SetAttributes(attribute.String("rerun.job_id", jobID))

		c.JSON(http.StatusAccepted, gin.H{
			"job_id":        jobID,
			"experiment_id": id,
			"state":         datatypes.StateReRunning,
		})
	}
}

// ArchiveExperiment streams the experiment's run directory as a zip download.
//
// Only Finished experiments with a recorded run directory can be archived;
// anything else is a 409 so clients can distinguish "not ready" from "gone".
func ArchiveExperiment(st ExperimentStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "ArchiveExperiment")
		defer span.End()

		id := c.Param("id")
		span.SetAttributes(attribute.String("experiment.id", id))

		exp, err := st.Get(ctx, id)
		if err != nil {
			span.RecordError(err)
			c.JSON(experimentErrorStatus(err), gin.H{"error": err.Error()})
			return
		}

		if exp.State != datatypes.StateFinished || exp.RunDir == "" {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Archive is only available for finished experiments with a run directory",
				"state": exp.State,
			})
			return
		}
		if info, err := os.Stat(exp.RunDir); err != nil || !info.IsDir() {
			span.SetStatus(codes.Error, "run directory unavailable")
			slog.Error("Run directory unavailable for archive", "id", id, "run_dir", exp.RunDir)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Run directory is unavailable"})
			return
		}

		c.Header("Content-Type", "application/zip")
		c.Header("Content-Disposition", `attachment; filename="`+archiveFilename+`"`)
		c.Status(http.StatusOK)

		if err := writeRunDirZip(c.Writer, exp.RunDir); err != nil {
			// Headers are gone; all we can do is cut the stream and log.
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Archive stream failed", "id", id, "run_dir", exp.RunDir, "error", err)
			c.Abort()
			return
		}
		slog.Info("Streamed experiment archive", "id", id, "run_dir", exp.RunDir)
	}
}

// writeRunDirZip walks the run directory into a deflated zip stream. Entry
// names are relative to the run directory with forward slashes, matching the
// layout the simulator produced.
func writeRunDirZip(w io.Writer, runDir string) error {
	zw := zip.NewWriter(w)

	err := filepath.WalkDir(runDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(runDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		entry, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(entry, f)
		return err
	})
	if err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

// experimentErrorStatus maps store and rerun errors onto HTTP status codes.
func experimentErrorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, rerun.ErrAlreadyRunning):
		return http.StatusConflict
	case isValidationError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// isValidationError spots request validation failures surfaced by the
// datatypes validators.
func isValidationError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "invalid create request") ||
		strings.Contains(err.Error(), "invalid update request")
}
