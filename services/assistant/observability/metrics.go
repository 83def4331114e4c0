// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability holds the Prometheus metrics for the assistant
// service and the gin middleware that records per-route request metrics.
//
// Metrics live in the AssistantMetrics singleton, initialized once at
// startup by InitMetrics. Call sites read DefaultMetrics and skip recording
// when it is nil, so code paths under test run without touching the default
// registry.
package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace   = "floodns"
	assistantSubsystem = "assistant"
)

// Outcome labels the terminal state of a processed question.
type Outcome string

const (
	// OutcomeAnswered means the generation backend produced the answer.
	OutcomeAnswered Outcome = "answered"

	// OutcomeDegraded means the backend failed and a degraded answer
	// (placeholder or deterministic fallback) was returned instead.
	OutcomeDegraded Outcome = "degraded"

	// OutcomeEmptyPool means retrieval found no documents to answer from.
	OutcomeEmptyPool Outcome = "empty_pool"

	// OutcomeError means retrieval itself failed.
	OutcomeError Outcome = "error"
)

// StoreStatus labels the result of an experiment store operation.
type StoreStatus string

const (
	// StoreSuccess means the operation completed.
	StoreSuccess StoreStatus = "success"

	// StoreMiss means the target experiment does not exist.
	StoreMiss StoreStatus = "miss"

	// StoreError means the database call failed.
	StoreError StoreStatus = "error"
)

// RerunResult labels the terminal state of a simulation re-run.
type RerunResult string

const (
	// RerunSuccess means the simulation finished and was recorded.
	RerunSuccess RerunResult = "success"

	// RerunError means the simulation failed or its state could not be
	// recorded.
	RerunError RerunResult = "error"

	// RerunStale means the janitor flipped a run stuck past its deadline.
	RerunStale RerunResult = "stale"
)

// AssistantMetrics holds every Prometheus metric the assistant records.
type AssistantMetrics struct {
	// QuestionsTotal counts answered questions by detected intent and
	// outcome.
	QuestionsTotal *prometheus.CounterVec

	// PipelineDuration measures end-to-end answer pipeline latency.
	PipelineDuration *prometheus.HistogramVec

	// GenerationRequestsTotal counts generation backend calls.
	GenerationRequestsTotal *prometheus.CounterVec

	// GenerationDuration measures generation backend latency.
	GenerationDuration *prometheus.HistogramVec

	// FallbackAnswersTotal counts answers produced by the deterministic
	// fallback after a backend failure.
	FallbackAnswersTotal *prometheus.CounterVec

	// RetrievedDocuments observes pool sizes per retrieval mode
	// (multi, single, scoped).
	RetrievedDocuments *prometheus.HistogramVec

	// StoreOperationsTotal counts experiment store operations.
	StoreOperationsTotal *prometheus.CounterVec

	// RerunsTotal counts simulation re-runs by terminal result.
	RerunsTotal *prometheus.CounterVec

	// ActiveReruns tracks currently executing simulation re-runs.
	ActiveReruns prometheus.Gauge

	// IngestedChunksTotal counts document chunks written to the vector
	// store.
	IngestedChunksTotal *prometheus.CounterVec

	// HTTPRequestsTotal counts HTTP requests by method, route and status.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP request latency.
	HTTPRequestDuration *prometheus.HistogramVec
}

// DefaultMetrics is the singleton instance of AssistantMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *AssistantMetrics

// InitMetrics creates and registers the assistant metrics on the default
// Prometheus registry. Call once at startup; a second call panics on
// duplicate registration.
func InitMetrics() *AssistantMetrics {
	DefaultMetrics = newMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// newMetrics builds the metric set on the given registerer. Tests pass a
// private registry.
func newMetrics(reg prometheus.Registerer) *AssistantMetrics {
	factory := promauto.With(reg)
	return &AssistantMetrics{
		QuestionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "questions_total",
				Help:      "Total questions processed by intent and outcome",
			},
			[]string{"intent", "outcome"},
		),

		PipelineDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "pipeline_duration_seconds",
				Help:      "Answer pipeline duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"intent"},
		),

		GenerationRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "generation_requests_total",
				Help:      "Total generation backend requests by backend and status",
			},
			[]string{"backend", "status"},
		),

		GenerationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "generation_duration_seconds",
				Help:      "Generation backend request duration in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"backend"},
		),

		FallbackAnswersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "fallback_answers_total",
				Help:      "Total deterministic fallback answers by failed backend",
			},
			[]string{"backend"},
		),

		RetrievedDocuments: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "retrieved_documents",
				Help:      "Documents retrieved per question by retrieval mode",
				Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 250},
			},
			[]string{"mode"},
		),

		StoreOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "store_operations_total",
				Help:      "Total experiment store operations by operation and status",
			},
			[]string{"operation", "status"},
		),

		RerunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "reruns_total",
				Help:      "Total simulation re-runs by result",
			},
			[]string{"result"},
		),

		ActiveReruns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "active_reruns",
				Help:      "Number of simulation re-runs currently executing",
			},
		),

		IngestedChunksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "ingested_chunks_total",
				Help:      "Total document chunks ingested by status",
			},
			[]string{"status"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"method", "path", "status"},
		),
	}
}

// RecordQuestion records one processed question.
func (m *AssistantMetrics) RecordQuestion(intent string, outcome Outcome) {
	m.QuestionsTotal.WithLabelValues(intent, string(outcome)).Inc()
}

// RecordPipelineDuration records end-to-end answer pipeline latency.
func (m *AssistantMetrics) RecordPipelineDuration(intent string, seconds float64) {
	m.PipelineDuration.WithLabelValues(intent).Observe(seconds)
}

// RecordRetrieval records the pool size one retrieval produced.
func (m *AssistantMetrics) RecordRetrieval(mode string, documents int) {
	m.RetrievedDocuments.WithLabelValues(mode).Observe(float64(documents))
}

// RecordGeneration records one generation backend call, covering both its
// latency and its success/error count.
func (m *AssistantMetrics) RecordGeneration(backend string, seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.GenerationDuration.WithLabelValues(backend).Observe(seconds)
	m.GenerationRequestsTotal.WithLabelValues(backend, status).Inc()
}

// RecordFallback records a deterministic fallback answer served after the
// named backend failed.
func (m *AssistantMetrics) RecordFallback(backend string) {
	m.FallbackAnswersTotal.WithLabelValues(backend).Inc()
}

// RecordStoreOperation records one experiment store operation.
func (m *AssistantMetrics) RecordStoreOperation(operation string, status StoreStatus) {
	m.StoreOperationsTotal.WithLabelValues(operation, string(status)).Inc()
}

// RecordRerun records a simulation re-run reaching a terminal state.
func (m *AssistantMetrics) RecordRerun(result RerunResult) {
	m.RerunsTotal.WithLabelValues(string(result)).Inc()
}

// RerunStarted increments the active re-runs gauge.
func (m *AssistantMetrics) RerunStarted() {
	m.ActiveReruns.Inc()
}

// RerunEnded decrements the active re-runs gauge.
func (m *AssistantMetrics) RerunEnded() {
	m.ActiveReruns.Dec()
}

// RecordIngestedChunks records document chunks that were imported into the
// vector store (success=true) or rejected/failed (success=false).
func (m *AssistantMetrics) RecordIngestedChunks(count int, success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	m.IngestedChunksTotal.WithLabelValues(status).Add(float64(count))
}

// Middleware records request count and duration per route. Paths are the
// registered route patterns, not raw URLs, to keep label cardinality bounded.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		m := DefaultMetrics
		if m == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
