// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// defaultEmbeddingModel is used when EMBEDDING_MODEL is unset. Local
// OpenAI-compatible services accept arbitrary model names; the hosted API
// resolves this one.
const defaultEmbeddingModel = "text-embedding-3-small"

// embedBatchSize bounds one embeddings request. Run directories chunk into
// hundreds of pieces; batching keeps request bodies reasonable for local
// embedding services.
const embedBatchSize = 128

// EmbedderConfig configures the OpenAI-compatible embeddings client.
type EmbedderConfig struct {
	// BaseURL points at the embeddings API, e.g. a local service's /v1
	// root. Empty uses the hosted OpenAI endpoint.
	BaseURL string

	// APIKey authenticates requests. Local services usually accept any
	// non-empty value.
	APIKey string

	// Model is the embedding model name. Defaults to text-embedding-3-small.
	Model string
}

// Embedder generates vectors through an OpenAI-compatible embeddings API.
//
// It serves both sides of the vector store: EmbedDocuments during ingestion
// and EmbedQuery for search (it satisfies retrieval.QueryEmbedder).
//
// Thread Safety: Safe for concurrent use.
type Embedder struct {
	client *openai.Client
	model  string
}

// NewEmbedder creates an embedder with defaults applied.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultEmbeddingModel
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &Embedder{
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
	}, nil
}

// EmbedQuery embeds a single search query.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding service returned no vector")
	}
	return vectors[0], nil
}

// EmbedDocuments embeds a batch of chunk texts. Results are returned in
// input order regardless of how the service orders its response.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		batch := texts[start:end]

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return nil, fmt.Errorf("create embeddings: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("embedding service returned %d vectors for %d texts",
				len(resp.Data), len(batch))
		}
		for _, data := range resp.Data {
			if data.Index < 0 || data.Index >= len(batch) {
				return nil, fmt.Errorf("embedding service returned out-of-range index %d", data.Index)
			}
			vectors[start+data.Index] = data.Embedding
		}
	}
	return vectors, nil
}
