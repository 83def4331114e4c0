// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeMat18/simulations-platform/services/assistant/datatypes"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// performRequest runs one request through a router and returns the recorder.
func performRequest(router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// decodeBody unmarshals a JSON response body into a map.
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// =============================================================================
// Mocks
// =============================================================================

// MockAnswerService implements AnswerService.
type MockAnswerService struct {
	Response *datatypes.AskResponse
	Err      error
	LastReq  *datatypes.AskRequest
}

func (m *MockAnswerService) Answer(_ context.Context, req *datatypes.AskRequest) (*datatypes.AskResponse, error) {
	m.LastReq = req
	return m.Response, m.Err
}

func askRouter(svc AnswerService) *gin.Engine {
	router := gin.New()
	router.POST("/v1/ask", HandleAsk(svc))
	return router
}

// =============================================================================
// HandleAsk Tests
// =============================================================================

func TestHandleAsk_Success(t *testing.T) {
	svc := &MockAnswerService{
		Response: &datatypes.AskResponse{
			Answer:    "42 nodes.\n\n<sources>\nRetrieved ALL 1 documents from single experiment:\n</sources>",
			SessionId: "sess_test",
			Intent:    "BandwidthStatistics",
		},
	}
	router := askRouter(svc)

	body, _ := json.Marshal(datatypes.AskRequest{Question: "How many nodes?"})
	w := performRequest(router, http.MethodPost, "/v1/ask", body)

	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody(t, w)
	assert.Equal(t, "sess_test", got["session_id"])
	assert.Contains(t, got["answer"], "<sources>")
	require.NotNil(t, svc.LastReq)
	assert.Equal(t, "How many nodes?", svc.LastReq.Question)
}

func TestHandleAsk_MalformedBody(t *testing.T) {
	router := askRouter(&MockAnswerService{})

	w := performRequest(router, http.MethodPost, "/v1/ask", []byte("{not json"))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request body", decodeBody(t, w)["error"])
}

func TestHandleAsk_ValidationFailure(t *testing.T) {
	svc := &MockAnswerService{Err: errors.New("request validation failed: Question is required")}
	router := askRouter(svc)

	body, _ := json.Marshal(datatypes.AskRequest{Question: ""})
	w := performRequest(router, http.MethodPost, "/v1/ask", body)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeBody(t, w)["error"], "validation failed")
}

func TestHandleAsk_PipelineError(t *testing.T) {
	svc := &MockAnswerService{Err: errors.New("framework context corrupted")}
	router := askRouter(svc)

	body, _ := json.Marshal(datatypes.AskRequest{Question: "anything"})
	w := performRequest(router, http.MethodPost, "/v1/ask", body)

	require.Equal(t, http.StatusInternalServerError, w.Code)
}
