// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeMat18/simulations-platform/services/assistant/datatypes"
	"github.com/JoeMat18/simulations-platform/services/assistant/ingest"
	"github.com/JoeMat18/simulations-platform/services/assistant/retrieval"
)

// =============================================================================
// Mocks
// =============================================================================

// MockIngester implements RunIngester.
type MockIngester struct {
	Result  *ingest.Result
	Err     error
	LastReq ingest.Request
}

func (m *MockIngester) IngestRunDir(_ context.Context, req ingest.Request) (*ingest.Result, error) {
	m.LastReq = req
	return m.Result, m.Err
}

// MockSearcher implements DocumentSearcher.
type MockSearcher struct {
	Results   []datatypes.SimulationDocumentResult
	Err       error
	LastQuery string
	LastLimit int
}

func (m *MockSearcher) Search(_ context.Context, query string, limit int) ([]datatypes.SimulationDocumentResult, error) {
	m.LastQuery = query
	m.LastLimit = limit
	return m.Results, m.Err
}

func documentsRouter(ing RunIngester, searcher DocumentSearcher) *gin.Engine {
	router := gin.New()
	v1 := router.Group("/v1")
	v1.POST("/documents/ingest", IngestDocuments(ing))
	v1.GET("/documents/search", SearchDocuments(searcher))
	return router
}

// =============================================================================
// Ingest Tests
// =============================================================================

func TestIngestDocuments_Success(t *testing.T) {
	ing := &MockIngester{Result: &ingest.Result{Files: 3, Chunks: 12, Imported: 12, Replaced: 4}}
	router := documentsRouter(ing, &MockSearcher{})

	body, _ := json.Marshal(ingest.Request{
		RunDir:         "/data/runs/seed_42",
		ExperimentName: "ring-4-ecmp",
	})
	w := performRequest(router, http.MethodPost, "/v1/documents/ingest", body)

	require.Equal(t, http.StatusCreated, w.Code)
	got := decodeBody(t, w)
	assert.Equal(t, "success", got["status"])
	assert.Equal(t, float64(12), got["imported"])
	assert.Equal(t, float64(4), got["replaced"])
	assert.Equal(t, "ring-4-ecmp", ing.LastReq.ExperimentName)
}

func TestIngestDocuments_InvalidRunDir(t *testing.T) {
	ing := &MockIngester{Err: fmt.Errorf("%w: /nope does not exist", ingest.ErrInvalidRunDir)}
	router := documentsRouter(ing, &MockSearcher{})

	body, _ := json.Marshal(ingest.Request{RunDir: "/nope"})
	w := performRequest(router, http.MethodPost, "/v1/documents/ingest", body)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestDocuments_MalformedBody(t *testing.T) {
	router := documentsRouter(&MockIngester{}, &MockSearcher{})

	w := performRequest(router, http.MethodPost, "/v1/documents/ingest", []byte("not json"))

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestDocuments_StoreFailure(t *testing.T) {
	ing := &MockIngester{Err: errors.New("weaviate batch import failed")}
	router := documentsRouter(ing, &MockSearcher{})

	body, _ := json.Marshal(ingest.Request{RunDir: "/data/runs/seed_42"})
	w := performRequest(router, http.MethodPost, "/v1/documents/ingest", body)

	require.Equal(t, http.StatusInternalServerError, w.Code)
}

// =============================================================================
// Search Tests
// =============================================================================

func TestSearchDocuments_Success(t *testing.T) {
	searcher := &MockSearcher{Results: []datatypes.SimulationDocumentResult{
		{Filename: "flow_bandwidth.csv", Text: "0,0,3,10.0"},
	}}
	router := documentsRouter(&MockIngester{}, searcher)

	w := performRequest(router, http.MethodGet, "/v1/documents/search?q=bandwidth&limit=3", nil)

	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody(t, w)
	assert.Equal(t, float64(1), got["count"])
	assert.Equal(t, "bandwidth", searcher.LastQuery)
	assert.Equal(t, 3, searcher.LastLimit)
}

func TestSearchDocuments_MissingQuery(t *testing.T) {
	router := documentsRouter(&MockIngester{}, &MockSearcher{})

	w := performRequest(router, http.MethodGet, "/v1/documents/search", nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchDocuments_BadLimit(t *testing.T) {
	router := documentsRouter(&MockIngester{}, &MockSearcher{})

	w := performRequest(router, http.MethodGet, "/v1/documents/search?q=x&limit=zero", nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchDocuments_LimitCapped(t *testing.T) {
	searcher := &MockSearcher{}
	router := documentsRouter(&MockIngester{}, searcher)

	w := performRequest(router, http.MethodGet, "/v1/documents/search?q=x&limit=500", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxSearchLimit, searcher.LastLimit)
}

func TestSearchDocuments_DefaultLimit(t *testing.T) {
	searcher := &MockSearcher{}
	router := documentsRouter(&MockIngester{}, searcher)

	w := performRequest(router, http.MethodGet, "/v1/documents/search?q=topology", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultSearchLimit, searcher.LastLimit)
}

func TestSearchDocuments_NoEmbedder(t *testing.T) {
	searcher := &MockSearcher{Err: retrieval.ErrNoEmbedder}
	router := documentsRouter(&MockIngester{}, searcher)

	w := performRequest(router, http.MethodGet, "/v1/documents/search?q=x", nil)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSearchDocuments_EmptyResultsIsArray(t *testing.T) {
	router := documentsRouter(&MockIngester{}, &MockSearcher{})

	w := performRequest(router, http.MethodGet, "/v1/documents/search?q=nothing", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"results":[]`)
}
