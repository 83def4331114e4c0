// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
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

// mockAnswerService is a minimal handlers.AnswerService.
type mockAnswerService struct{}

func (m *mockAnswerService) Answer(_ context.Context, req *datatypes.AskRequest) (*datatypes.AskResponse, error) {
	return &datatypes.AskResponse{Answer: "mock answer", SessionId: req.SessionId}, nil
}

func TestSetupRoutes_RegistersFullSurface(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, Deps{Pipeline: &mockAnswerService{}})

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/ask"},
		{"GET", "/v1/experiments"},
		{"POST", "/v1/experiments"},
		{"GET", "/v1/experiments/:id"},
		{"PUT", "/v1/experiments/:id"},
		{"DELETE", "/v1/experiments/:id"},
		{"POST", "/v1/experiments/:id/rerun"},
		{"GET", "/v1/experiments/:id/archive"},
		{"POST", "/v1/documents/ingest"},
		{"GET", "/v1/documents/search"},
	}

	registered := router.Routes()
	for _, want := range expected {
		found := false
		for _, r := range registered {
			if r.Method == want.method && r.Path == want.path {
				found = true
				break
			}
		}
		assert.True(t, found, "route %s %s not registered", want.method, want.path)
	}
}

func TestSetupRoutes_MissingStoreAnswers503(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, Deps{Pipeline: &mockAnswerService{}})

	req := httptest.NewRequest(http.MethodGet, "/v1/experiments", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "experiment store")
}

func TestSetupRoutes_HealthAlwaysAnswers(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, Deps{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
