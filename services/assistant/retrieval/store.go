// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JoeMat18/simulations-platform/services/assistant/datatypes"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// SimulationDocumentClassName is the Weaviate class holding ingested
// simulation artifacts.
const SimulationDocumentClassName = "SimulationDocument"

// maxPoolDocuments caps a full-corpus pull. The pipeline's aggregation is
// sized for complete pools, so the cap only guards against runaway corpora.
const maxPoolDocuments = 10000

// ImportBatchSize is the number of objects sent per batch import call.
const ImportBatchSize = 100

// ErrNoEmbedder is returned by Search when the store was built without a
// query embedder.
var ErrNoEmbedder = errors.New("no query embedder configured")

// QueryEmbedder turns a search query into the vector Weaviate searches with.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Schema returns the SimulationDocument class definition. Vectors come from
// the ingestion pipeline, so the class itself has no vectorizer.
func Schema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       SimulationDocumentClassName,
		Description: "Chunked FloodNS simulation artifacts (CSV logs, configs, summaries)",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "filename",
				DataType:        []string{"text"},
				Description:     "Artifact filename relative to the run directory",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "text",
				DataType:    []string{"text"},
				Description: "Chunk content",
			},
			{
				Name:            "experiment_name",
				DataType:        []string{"text"},
				Description:     "Owning experiment; empty for the single-experiment corpus",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "experiment_params",
				DataType:    []string{"text"},
				Description: "Comma-joined simulation parameters of the owning experiment",
			},
			{
				Name:        "chunk_index",
				DataType:    []string{"int"},
				Description: "Position of this chunk within its artifact",
			},
			{
				Name:            "content_hash",
				DataType:        []string{"text"},
				Description:     "SHA-256 of experiment, filename and chunk, for idempotent re-ingest",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
		},
	}
}

// Store runs typed queries against the SimulationDocument class.
//
// All calls go through the client's retry layer; errors that survive it are
// wrapped with the failing operation name. Safe for concurrent use.
type Store struct {
	client   *Client
	embedder QueryEmbedder
}

// NewStore creates a Store. The embedder may be nil when vector search is
// not needed (the answer pipeline pulls full pools without it).
func NewStore(client *Client, embedder QueryEmbedder) *Store {
	return &Store{client: client, embedder: embedder}
}

// EnsureSchema creates the SimulationDocument class if it does not exist.
// Idempotent; meant to run at startup and before ingestion.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.client.Execute(ctx, "EnsureSchema", func() error {
		_, err := s.client.Weaviate().Schema().ClassGetter().
			WithClassName(SimulationDocumentClassName).Do(ctx)
		if err == nil {
			slog.Debug("SimulationDocument schema already exists")
			return nil
		}

		slog.Info("Creating SimulationDocument schema")
		if err := s.client.Weaviate().Schema().ClassCreator().WithClass(Schema()).Do(ctx); err != nil {
			return fmt.Errorf("creating SimulationDocument schema: %w", err)
		}
		return nil
	})
}

// AllMultiExperiment returns every document that carries an experiment name,
// ordered by experiment, filename and chunk position.
func (s *Store) AllMultiExperiment(ctx context.Context) (datatypes.DocumentPool, error) {
	filter := filters.Where().
		WithPath([]string{"experiment_name"}).
		WithOperator(filters.NotEqual).
		WithValueString("")

	return s.queryPool(ctx, "AllMultiExperiment", filter)
}

// AllSingleExperiment returns the unlabeled corpus: documents ingested
// without an owning experiment.
func (s *Store) AllSingleExperiment(ctx context.Context) (datatypes.DocumentPool, error) {
	filter := filters.Where().
		WithPath([]string{"experiment_name"}).
		WithOperator(filters.Equal).
		WithValueString("")

	return s.queryPool(ctx, "AllSingleExperiment", filter)
}

// ForExperiments returns every document belonging to the named experiments.
func (s *Store) ForExperiments(ctx context.Context, names []string) (datatypes.DocumentPool, error) {
	filter := filters.Where().
		WithPath([]string{"experiment_name"}).
		WithOperator(filters.ContainsAny).
		WithValueString(names...)

	return s.queryPool(ctx, "ForExperiments", filter)
}

// queryPool runs a filtered full pull and maps the results to a DocumentPool.
func (s *Store) queryPool(ctx context.Context, operation string, filter *filters.WhereBuilder) (datatypes.DocumentPool, error) {
	// Deterministic pool order: experiment, then file, then chunk position.
	sorts := []graphql.Sort{
		{Path: []string{"experiment_name"}, Order: graphql.Asc},
		{Path: []string{"filename"}, Order: graphql.Asc},
		{Path: []string{"chunk_index"}, Order: graphql.Asc},
	}

	fields := []graphql.Field{
		{Name: "filename"},
		{Name: "text"},
		{Name: "experiment_name"},
		{Name: "experiment_params"},
		{Name: "chunk_index"},
	}

	var pool datatypes.DocumentPool
	err := s.client.Execute(ctx, operation, func() error {
		result, err := s.client.Weaviate().GraphQL().Get().
			WithClassName(SimulationDocumentClassName).
			WithFields(fields...).
			WithWhere(filter).
			WithSort(sorts...).
			WithLimit(maxPoolDocuments).
			Do(ctx)
		if err != nil {
			return err
		}

		parsed, err := datatypes.ParseGraphQLResponse[datatypes.SimulationDocumentQueryResponse](result)
		if err != nil {
			return err
		}

		pool = pool[:0]
		for _, r := range parsed.Get.SimulationDocument {
			pool = append(pool, r.ToDocument())
		}
		return nil
	})
	if err != nil {
		slog.Error("Document pool query failed", "operation", operation, "error", err)
		return nil, err
	}
	return pool, nil
}

// Search runs a vector search over the corpus and returns the closest
// chunks with their certainty scores.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]datatypes.SimulationDocumentResult, error) {
	if s.embedder == nil {
		return nil, ErrNoEmbedder
	}
	if limit <= 0 {
		limit = 5
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	nearVector := s.client.Weaviate().GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	fields := []graphql.Field{
		{Name: "filename"},
		{Name: "text"},
		{Name: "experiment_name"},
		{Name: "experiment_params"},
		{Name: "chunk_index"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
		}},
	}

	var hits []datatypes.SimulationDocumentResult
	err = s.client.Execute(ctx, "Search", func() error {
		result, err := s.client.Weaviate().GraphQL().Get().
			WithClassName(SimulationDocumentClassName).
			WithFields(fields...).
			WithNearVector(nearVector).
			WithLimit(limit).
			Do(ctx)
		if err != nil {
			return err
		}

		parsed, err := datatypes.ParseGraphQLResponse[datatypes.SimulationDocumentQueryResponse](result)
		if err != nil {
			return err
		}
		hits = parsed.Get.SimulationDocument
		return nil
	})
	if err != nil {
		slog.Error("Vector search failed", "error", err)
		return nil, err
	}
	return hits, nil
}

// ImportBatch imports objects in batches of ImportBatchSize and returns how
// many were accepted. Object IDs are deterministic, so re-importing the same
// run overwrites rather than duplicates.
func (s *Store) ImportBatch(ctx context.Context, objects []*models.Object) (int, error) {
	imported := 0
	for i := 0; i < len(objects); i += ImportBatchSize {
		end := i + ImportBatchSize
		if end > len(objects) {
			end = len(objects)
		}
		batch := objects[i:end]

		err := s.client.Execute(ctx, "ImportBatch", func() error {
			result, err := s.client.Weaviate().Batch().ObjectsBatcher().
				WithObjects(batch...).Do(ctx)
			if err != nil {
				return fmt.Errorf("batch import failed: %w", err)
			}
			for _, obj := range result {
				if obj.Result != nil && obj.Result.Errors == nil {
					imported++
				}
			}
			return nil
		})
		if err != nil {
			return imported, err
		}
		slog.Info("Imported document batch", "count", len(batch), "total_imported", imported)
	}
	return imported, nil
}

// DeleteExperiment removes every document belonging to one experiment and
// returns how many objects went away. Used before re-ingesting a run.
func (s *Store) DeleteExperiment(ctx context.Context, name string) (int64, error) {
	filter := filters.Where().
		WithPath([]string{"experiment_name"}).
		WithOperator(filters.Equal).
		WithValueString(name)

	var deleted int64
	err := s.client.Execute(ctx, "DeleteExperiment", func() error {
		resp, err := s.client.Weaviate().Batch().ObjectsBatchDeleter().
			WithClassName(SimulationDocumentClassName).
			WithWhere(filter).
			WithOutput("minimal").
			Do(ctx)
		if err != nil {
			return err
		}
		if resp != nil && resp.Results != nil {
			deleted = resp.Results.Successful
		}
		return nil
	})
	if err != nil {
		slog.Error("Experiment document deletion failed", "experiment", name, "error", err)
		return 0, err
	}
	slog.Info("Deleted experiment documents", "experiment", name, "count", deleted)
	return deleted, nil
}

// DocumentCounts returns per-experiment document counts. Documents from the
// unlabeled corpus appear under the empty-string key.
func (s *Store) DocumentCounts(ctx context.Context) (map[string]int, error) {
	fields := []graphql.Field{
		{Name: "groupedBy", Fields: []graphql.Field{
			{Name: "value"},
		}},
		{Name: "meta", Fields: []graphql.Field{
			{Name: "count"},
		}},
	}

	counts := make(map[string]int)
	err := s.client.Execute(ctx, "DocumentCounts", func() error {
		result, err := s.client.Weaviate().GraphQL().Aggregate().
			WithClassName(SimulationDocumentClassName).
			WithGroupBy("experiment_name").
			WithFields(fields...).
			Do(ctx)
		if err != nil {
			return err
		}

		parsed, err := datatypes.ParseGraphQLResponse[datatypes.SimulationDocumentAggregateResponse](result)
		if err != nil {
			return err
		}
		for _, group := range parsed.Aggregate.SimulationDocument {
			counts[group.GroupedBy.Value] = group.Meta.Count
		}
		return nil
	})
	if err != nil {
		slog.Error("Document count aggregation failed", "error", err)
		return nil, err
	}
	return counts, nil
}
