// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ingest turns simulation run directories into SimulationDocument
// objects in the vector store.
//
// Artifacts are split into chunks sized for the answer pipeline's excerpting,
// embedded through an OpenAI-compatible API, and batch-imported with
// deterministic ids so re-ingesting a run replaces its chunks instead of
// duplicating them.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/JoeMat18/simulations-platform/pkg/validation"
	"github.com/JoeMat18/simulations-platform/services/assistant/observability"
	"github.com/JoeMat18/simulations-platform/services/assistant/retrieval"
)

// ingestTracer is the OpenTelemetry tracer for ingestion operations.
var ingestTracer = otel.Tracer("floodns.assistant.ingest")

// ErrInvalidRunDir is returned when the requested run directory is missing,
// not a directory, or fails path validation. Handlers map it to 400.
var ErrInvalidRunDir = errors.New("invalid run directory")

// maxArtifactBytes caps one artifact file. Bigger files are skipped with a
// warning rather than ballooning the corpus.
const maxArtifactBytes = 10 * 1024 * 1024

// completionMarker is the simulator's done-flag, not simulation data.
const completionMarker = "finished.txt"

// ingestibleExtensions are the artifact types worth indexing from a run
// directory.
var ingestibleExtensions = map[string]bool{
	".csv":        true,
	".txt":        true,
	".log":        true,
	".md":         true,
	".json":       true,
	".properties": true,
}

// VectorWriter is the slice of the retrieval store ingestion drives.
// retrieval.Store satisfies it.
type VectorWriter interface {
	EnsureSchema(ctx context.Context) error
	ImportBatch(ctx context.Context, objects []*models.Object) (int, error)
	DeleteExperiment(ctx context.Context, name string) (int64, error)
}

// DocumentEmbedder generates vectors for chunk batches.
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Request names a run directory and the experiment its artifacts belong to.
// An empty ExperimentName ingests into the single-experiment corpus.
type Request struct {
	RunDir           string `json:"run_dir"`
	ExperimentName   string `json:"experiment_name,omitempty"`
	ExperimentParams string `json:"experiment_params,omitempty"`
}

// Result summarizes one ingestion.
type Result struct {
	Files    int   `json:"files"`
	Chunks   int   `json:"chunks"`
	Imported int   `json:"imported"`
	Replaced int64 `json:"replaced"`
}

// Ingester walks run directories into the vector store.
//
// Thread Safety: Safe for concurrent use, though concurrent ingestion of the
// same experiment races on the delete-then-import cycle.
type Ingester struct {
	store    VectorWriter
	embedder DocumentEmbedder
	logger   *slog.Logger
}

// NewIngester creates an Ingester. The embedder may be nil; chunks are then
// imported without vectors and only filtered retrieval works, which is all
// the answer pipeline needs.
func NewIngester(store VectorWriter, embedder DocumentEmbedder) *Ingester {
	return &Ingester{
		store:    store,
		embedder: embedder,
		logger:   slog.Default(),
	}
}

// IngestRunDir indexes every ingestible artifact under the run directory.
//
// Chunks for a named experiment replace that experiment's previous chunks;
// ids are deterministic, so re-running ingestion is idempotent. An empty
// directory is not an error, it just produces an empty Result.
func (ing *Ingester) IngestRunDir(ctx context.Context, req Request) (*Result, error) {
	ctx, span := ingestTracer.Start(ctx, "Ingester.IngestRunDir")
	defer span.End()

	if err := validation.ValidateRunDir(req.RunDir); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRunDir, err)
	}
	info, err := os.Stat(req.RunDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRunDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRunDir, req.RunDir)
	}
	span.SetAttributes(
		attribute.String("ingest.run_dir", req.RunDir),
		attribute.String("ingest.experiment", req.ExperimentName),
	)

	if err := ing.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	chunks, files, err := ing.collectChunks(req.RunDir)
	if err != nil {
		return nil, err
	}

	result := &Result{Files: files, Chunks: len(chunks)}
	if len(chunks) == 0 {
		ing.logger.Warn("No ingestible artifacts found",
			slog.String("run_dir", req.RunDir))
		return result, nil
	}

	vectors, err := ing.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	if req.ExperimentName != "" {
		replaced, err := ing.store.DeleteExperiment(ctx, req.ExperimentName)
		if err != nil {
			return nil, fmt.Errorf("replace previous chunks: %w", err)
		}
		result.Replaced = replaced
	}

	objects := make([]*models.Object, len(chunks))
	for i, chunk := range chunks {
		id, contentHash := chunkID(req.ExperimentName, chunk.filename, chunk.index)
		obj := &models.Object{
			Class: retrieval.SimulationDocumentClassName,
			ID:    id,
			Properties: map[string]interface{}{
				"filename":          chunk.filename,
				"text":              chunk.text,
				"experiment_name":   req.ExperimentName,
				"experiment_params": req.ExperimentParams,
				"chunk_index":       chunk.index,
				"content_hash":      contentHash,
			},
		}
		if vectors != nil {
			obj.Vector = vectors[i]
		}
		objects[i] = obj
	}

	imported, err := ing.store.ImportBatch(ctx, objects)
	result.Imported = imported
	if err != nil {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordIngestedChunks(len(chunks), false)
		}
		return result, err
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordIngestedChunks(imported, true)
		if failed := len(chunks) - imported; failed > 0 {
			m.RecordIngestedChunks(failed, false)
		}
	}

	ing.logger.Info("Ingested run directory",
		slog.String("run_dir", req.RunDir),
		slog.String("experiment", req.ExperimentName),
		slog.Int("files", result.Files),
		slog.Int("chunks", result.Chunks),
		slog.Int("imported", result.Imported),
		slog.Int64("replaced", result.Replaced),
	)
	return result, nil
}

// chunkRecord is one split piece of an artifact awaiting import.
type chunkRecord struct {
	filename string
	index    int
	text     string
}

// collectChunks walks the run directory and splits every ingestible artifact.
// Filenames are recorded relative to the run directory with forward slashes,
// matching what the answer pipeline displays in source manifests.
func (ing *Ingester) collectChunks(runDir string) ([]chunkRecord, int, error) {
	var chunks []chunkRecord
	files := 0

	err := filepath.WalkDir(runDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if name == completionMarker {
			return nil
		}
		if !ingestibleExtensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxArtifactBytes {
			ing.logger.Warn("Skipping oversized artifact",
				slog.String("path", path),
				slog.Int64("size", info.Size()))
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read artifact %s: %w", path, err)
		}
		if len(content) == 0 {
			return nil
		}

		rel, err := filepath.Rel(runDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		pieces, err := splitterFor(name).SplitText(string(content))
		if err != nil {
			return fmt.Errorf("split artifact %s: %w", rel, err)
		}

		files++
		for i, piece := range pieces {
			chunks = append(chunks, chunkRecord{filename: rel, index: i, text: piece})
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("walk run directory: %w", err)
	}
	return chunks, files, nil
}

// embedChunks returns one vector per chunk, or nil when no embedder is
// configured.
func (ing *Ingester) embedChunks(ctx context.Context, chunks []chunkRecord) ([][]float32, error) {
	if ing.embedder == nil {
		ing.logger.Warn("No embedder configured; importing chunks without vectors")
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.text
	}
	vectors, err := ing.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	return vectors, nil
}

// chunkID derives the deterministic object id and content hash for a chunk.
// The id depends on experiment, filename and position only, so re-ingesting
// a run overwrites in place.
func chunkID(experiment, filename string, index int) (strfmt.UUID, string) {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", experiment, filename, index)))
	id, _ := uuid.FromBytes(hash[:16])
	return strfmt.UUID(id.String()), hex.EncodeToString(hash[:])
}
