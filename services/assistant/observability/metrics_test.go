// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// newTestMetrics builds an AssistantMetrics on a private registry so tests
// never touch the default registry.
func newTestMetrics(t *testing.T) *AssistantMetrics {
	t.Helper()
	return newMetrics(prometheus.NewRegistry())
}

// TestLabelConstants pins the metric label vocabulary; dashboards key on
// these strings.
func TestLabelConstants(t *testing.T) {
	assert.Equal(t, "floodns", metricsNamespace)
	assert.Equal(t, "assistant", assistantSubsystem)

	assert.Equal(t, "answered", string(OutcomeAnswered))
	assert.Equal(t, "degraded", string(OutcomeDegraded))
	assert.Equal(t, "empty_pool", string(OutcomeEmptyPool))
	assert.Equal(t, "error", string(OutcomeError))

	assert.Equal(t, "success", string(StoreSuccess))
	assert.Equal(t, "miss", string(StoreMiss))
	assert.Equal(t, "error", string(StoreError))

	assert.Equal(t, "success", string(RerunSuccess))
	assert.Equal(t, "error", string(RerunError))
	assert.Equal(t, "stale", string(RerunStale))
}

// TestRecordQuestion verifies question counts land under the right intent
// and outcome labels.
func TestRecordQuestion(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordQuestion("general", OutcomeAnswered)
	m.RecordQuestion("general", OutcomeAnswered)
	m.RecordQuestion("reasoning", OutcomeDegraded)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.QuestionsTotal.WithLabelValues("general", "answered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuestionsTotal.WithLabelValues("reasoning", "degraded")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.QuestionsTotal.WithLabelValues("general", "error")))
}

// TestRecordGeneration verifies one call covers both the duration histogram
// and the success/error counter.
func TestRecordGeneration(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordGeneration("ollama", 1.5, true)
	m.RecordGeneration("ollama", 0.2, false)
	m.RecordGeneration("huggingface", 3.0, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationRequestsTotal.WithLabelValues("ollama", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationRequestsTotal.WithLabelValues("ollama", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationRequestsTotal.WithLabelValues("huggingface", "success")))
	assert.NotZero(t, testutil.CollectAndCount(m.GenerationDuration))
}

// TestRecordStoreOperation verifies operation/status label pairs.
func TestRecordStoreOperation(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordStoreOperation("get", StoreSuccess)
	m.RecordStoreOperation("get", StoreMiss)
	m.RecordStoreOperation("delete", StoreError)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("get", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("get", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("delete", "error")))
}

// TestRerunLifecycle verifies the active gauge pairs up with start/end and
// terminal results are counted.
func TestRerunLifecycle(t *testing.T) {
	m := newTestMetrics(t)

	m.RerunStarted()
	m.RerunStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveReruns))

	m.RerunEnded()
	m.RecordRerun(RerunSuccess)
	m.RerunEnded()
	m.RecordRerun(RerunError)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveReruns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RerunsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RerunsTotal.WithLabelValues("error")))
}

// TestRecordIngestedChunks verifies a partial import splits chunks across
// the success and failed labels.
func TestRecordIngestedChunks(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordIngestedChunks(8, true)
	m.RecordIngestedChunks(2, false)

	assert.Equal(t, 8.0, testutil.ToFloat64(m.IngestedChunksTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IngestedChunksTotal.WithLabelValues("failed")))
}

// TestRecordFallback verifies fallback answers count against the backend
// that failed.
func TestRecordFallback(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordFallback("huggingface")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbackAnswersTotal.WithLabelValues("huggingface")))
}

// TestMiddleware_RecordsRequests verifies the middleware counts requests by
// route pattern once metrics are initialized.
func TestMiddleware_RecordsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	DefaultMetrics = newTestMetrics(t)
	defer func() { DefaultMetrics = nil }()

	router := gin.New()
	router.Use(Middleware())
	router.GET("/v1/experiments/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/experiments/abc123", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	got := testutil.ToFloat64(DefaultMetrics.HTTPRequestsTotal.WithLabelValues("GET", "/v1/experiments/:id", "200"))
	assert.Equal(t, 1.0, got)
}

// TestMiddleware_UninitializedMetrics verifies requests pass through when
// InitMetrics was never called.
func TestMiddleware_UninitializedMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	DefaultMetrics = nil

	router := gin.New()
	router.Use(Middleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}
