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
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthRouter(probes map[string]Probe) *gin.Engine {
	router := gin.New()
	router.GET("/health", HealthCheck("floodns-assistant", probes))
	return router
}

func TestHealthCheck_AllDependenciesOK(t *testing.T) {
	probes := map[string]Probe{
		"mongodb":  func(context.Context) error { return nil },
		"weaviate": func(context.Context) error { return nil },
	}
	w := performRequest(healthRouter(probes), http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody(t, w)
	assert.Equal(t, "ok", got["status"])
	assert.Equal(t, "floodns-assistant", got["service"])

	deps, ok := got["dependencies"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", deps["mongodb"])
	assert.Equal(t, "ok", deps["weaviate"])
}

func TestHealthCheck_DegradedStaysAlive(t *testing.T) {
	probes := map[string]Probe{
		"mongodb":  func(context.Context) error { return errors.New("connection refused") },
		"weaviate": func(context.Context) error { return nil },
	}
	w := performRequest(healthRouter(probes), http.MethodGet, "/health", nil)

	// A dead dependency degrades the report but never the liveness code.
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody(t, w)
	assert.Equal(t, "degraded", got["status"])

	deps := got["dependencies"].(map[string]any)
	assert.Equal(t, "unavailable", deps["mongodb"])
	assert.Equal(t, "ok", deps["weaviate"])
}

func TestHealthCheck_NoProbes(t *testing.T) {
	w := performRequest(healthRouter(nil), http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}
