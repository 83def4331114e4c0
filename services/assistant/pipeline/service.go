// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JoeMat18/simulations-platform/services/assistant/datatypes"
	"github.com/JoeMat18/simulations-platform/services/assistant/framework"
	"github.com/JoeMat18/simulations-platform/services/assistant/observability"
	"github.com/JoeMat18/simulations-platform/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// pipelineTracer is the OpenTelemetry tracer for Service operations.
var pipelineTracer = otel.Tracer("floodns.assistant.pipeline")

// reasoningExcerptLimit is the per-document excerpt size for the reasoning
// path, which keeps more context than the standard aggregation.
const reasoningExcerptLimit = 1500

// User-facing degradation strings. These are answers, not errors: every
// failure in the pipeline ends in readable text.
const (
	emptyPoolMessage          = "I couldn't find any simulation data to answer your question."
	emptyPoolReasoningMessage = "I couldn't find any simulation data to reason about."
	localUnavailableMessage   = "There was an error calling the local model through Ollama."
	remoteUnavailableMessage  = "I'm sorry, I couldn't access the language model service. Please try again later."
	retrievalTroubleMessage   = "I had trouble searching through the simulation data. Please try again or ask an administrator to check the vector search configuration."
)

// Retriever supplies document pools from the vector store.
//
// AllMultiExperiment returns every document across all ingested experiments;
// AllSingleExperiment returns the single-experiment corpus used when no
// multi-experiment data exists; ForExperiments narrows retrieval to the
// named experiments. Implementations must be safe for concurrent use.
type Retriever interface {
	AllMultiExperiment(ctx context.Context) (datatypes.DocumentPool, error)
	AllSingleExperiment(ctx context.Context) (datatypes.DocumentPool, error)
	ForExperiments(ctx context.Context, names []string) (datatypes.DocumentPool, error)
}

// Config carries the pipeline's behavioral switches.
type Config struct {
	// UseLocalModel selects the degradation policy for failed generation:
	// the local backend degrades to a fixed placeholder, the remote backend
	// degrades to the deterministic fallback.
	UseLocalModel bool
}

// Service runs the answer-generation pipeline: classification, retrieval,
// aggregation, prompt construction, generation dispatch, and composition of
// the final answer envelope. It is stateless per query; every invocation
// owns its own pool and bundle, so the service is safe for concurrent use.
//
// Usage:
//
//	svc := pipeline.NewService(retriever, generator, fw, cfg)
//	resp, err := svc.Answer(ctx, &req)
type Service struct {
	retriever Retriever
	generator llm.LLMClient
	framework *framework.Context
	cfg       Config
}

// NewService creates a Service with the provided dependencies.
//
// Parameters:
//   - retriever: Supplies document pools from the vector store. Must not be nil.
//   - generator: The generation backend selected at startup. Must not be nil.
//   - fw: The framework concepts context loaded at process start. Must not be nil.
//   - cfg: Behavioral switches; see Config.
func NewService(retriever Retriever, generator llm.LLMClient, fw *framework.Context, cfg Config) *Service {
	return &Service{
		retriever: retriever,
		generator: generator,
		framework: fw,
		cfg:       cfg,
	}
}

// Answer handles one question end-to-end.
//
// The processing flow is:
//  1. Ensure request defaults and validate
//  2. Classify the query (reasoning questions branch off here)
//  3. Retrieve the document pool (scoped, or multi falling back to single)
//  4. Aggregate the pool into a bounded context bundle
//  5. Build the prompt and dispatch to the generation backend
//  6. Compose the answer envelope with its sources block
//
// Every degradation ends in a readable answer: an empty pool, a retrieval
// failure, or an unreachable backend all produce text rather than an error.
// The only error returns are request validation failures.
func (s *Service) Answer(ctx context.Context, req *datatypes.AskRequest) (*datatypes.AskResponse, error) {
	ctx, span := pipelineTracer.Start(ctx, "PipelineService.Answer")
	defer span.End()
	start := time.Now()

	// Step 1: Defaults and validation
	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	sessionId := req.EnsureSessionId()

	// Step 2: Classification
	classification := Classify(req.Question)
	span.SetAttributes(
		attribute.String("session.id", sessionId),
		attribute.String("query.classification", string(classification)),
		attribute.Int("query.scoped_experiments", len(req.Experiments)),
	)
	slog.Info("Processing question",
		"session_id", sessionId,
		"classification", classification,
		"scoped_experiments", len(req.Experiments),
	)
	defer func() {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordPipelineDuration(string(classification), time.Since(start).Seconds())
		}
	}()

	if classification == ClassificationReasoning {
		return s.answerWithReasoning(ctx, req, sessionId, classification)
	}

	// Step 3: Retrieval
	pool, mode, err := s.retrieve(ctx, req.Experiments)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		slog.Error("Document retrieval failed", "session_id", sessionId, "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordQuestion(string(classification), observability.OutcomeError)
		}
		return canned(sessionId, classification, retrievalTroubleMessage), nil
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRetrieval(mode, len(pool))
	}

	// Step 4: Aggregation
	bundle, err := Aggregate(pool)
	if err != nil {
		// Nothing retrieved; the backend is never called for an empty pool.
		span.SetAttributes(attribute.Bool("retrieval.empty", true))
		if m := observability.DefaultMetrics; m != nil {
			m.RecordQuestion(string(classification), observability.OutcomeEmptyPool)
		}
		return canned(sessionId, classification, emptyPoolMessage), nil
	}
	span.SetAttributes(
		attribute.Int("pool.documents", bundle.DocumentCount),
		attribute.Bool("pool.multi_experiment", bundle.MultiExperiment),
	)

	// Step 5: Prompt and dispatch
	prompt := BuildPrompt(bundle, s.framework.Text(), req.Question)
	raw, degraded := s.dispatch(ctx, prompt, req.Question, pool)

	// Step 6: Compose
	answer := ComposeSources(raw, bundle)

	outcome := observability.OutcomeAnswered
	if degraded {
		outcome = observability.OutcomeDegraded
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordQuestion(string(classification), outcome)
	}

	return &datatypes.AskResponse{
		Answer:        answer,
		SessionId:     sessionId,
		Intent:        string(classification),
		DocumentCount: bundle.DocumentCount,
		Experiments:   bundle.Experiments,
	}, nil
}

// answerWithReasoning handles queries that asked for visible step-by-step
// reasoning. Successful answers put the reasoning segment in a <thinking>
// block ahead of the result and carry the same sources envelope as every
// other answer; the reasoning prompt keeps its own generous excerpts.
func (s *Service) answerWithReasoning(ctx context.Context, req *datatypes.AskRequest, sessionId string, classification Classification) (*datatypes.AskResponse, error) {
	ctx, span := pipelineTracer.Start(ctx, "PipelineService.answerWithReasoning")
	defer span.End()

	pool, mode, err := s.retrieve(ctx, req.Experiments)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		slog.Error("Document retrieval failed", "session_id", sessionId, "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordQuestion(string(classification), observability.OutcomeError)
		}
		return canned(sessionId, classification, retrievalTroubleMessage), nil
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRetrieval(mode, len(pool))
	}

	// The bundle serves the provenance block only; the prompt context is
	// rebuilt below with the larger reasoning excerpts.
	bundle, err := Aggregate(pool)
	if err != nil {
		span.SetAttributes(attribute.Bool("retrieval.empty", true))
		if m := observability.DefaultMetrics; m != nil {
			m.RecordQuestion(string(classification), observability.OutcomeEmptyPool)
		}
		return canned(sessionId, classification, emptyPoolReasoningMessage), nil
	}

	prompt := BuildReasoningPrompt(reasoningContext(s.framework.Text(), pool), req.Question)

	backend := s.backendName()
	genStart := time.Now()
	raw, err := s.generator.Generate(ctx, prompt, s.generationParams())
	if m := observability.DefaultMetrics; m != nil {
		m.RecordGeneration(backend, time.Since(genStart).Seconds(), err == nil)
	}
	if err != nil {
		span.RecordError(err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordQuestion(string(classification), observability.OutcomeDegraded)
		}
		slog.Warn("Reasoning generation failed", "session_id", sessionId, "backend", backend, "error", err)
		answer := fmt.Sprintf("I had trouble applying step-by-step reasoning to your question. Error: %v", err)
		return canned(sessionId, classification, answer), nil
	}

	reasoning, result := SplitReasoning(raw)
	answer := ComposeSources(result, bundle)
	if reasoning != "" {
		answer = ComposeThinking(reasoning, answer)
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordQuestion(string(classification), observability.OutcomeAnswered)
	}

	return &datatypes.AskResponse{
		Answer:        answer,
		SessionId:     sessionId,
		Intent:        string(classification),
		DocumentCount: bundle.DocumentCount,
		Experiments:   bundle.Experiments,
	}, nil
}

// retrieve resolves the document pool for a question. Scoped questions go to
// the named experiments; otherwise multi-experiment data is preferred and
// the single-experiment corpus is the fallback when none exists.
func (s *Service) retrieve(ctx context.Context, experiments []string) (datatypes.DocumentPool, string, error) {
	ctx, span := pipelineTracer.Start(ctx, "PipelineService.retrieve")
	defer span.End()

	if len(experiments) > 0 {
		pool, err := s.retriever.ForExperiments(ctx, experiments)
		return pool, "scoped", err
	}

	pool, err := s.retriever.AllMultiExperiment(ctx)
	if err != nil {
		return nil, "multi", err
	}
	if len(pool) > 0 {
		return pool, "multi", nil
	}

	pool, err = s.retriever.AllSingleExperiment(ctx)
	return pool, "single", err
}

// dispatch calls the generation backend and applies the degradation policy
// on failure: the local backend yields a fixed placeholder, the remote
// backend yields the deterministic fallback computed from the pool. The
// returned bool reports whether degradation happened.
func (s *Service) dispatch(ctx context.Context, prompt, query string, pool datatypes.DocumentPool) (string, bool) {
	ctx, span := pipelineTracer.Start(ctx, "PipelineService.dispatch")
	defer span.End()

	backend := s.backendName()
	span.SetAttributes(attribute.String("llm.backend", backend))

	start := time.Now()
	text, err := s.generator.Generate(ctx, prompt, s.generationParams())
	if m := observability.DefaultMetrics; m != nil {
		m.RecordGeneration(backend, time.Since(start).Seconds(), err == nil)
	}
	if err == nil {
		return text, false
	}

	span.RecordError(err)
	span.SetAttributes(attribute.Bool("llm.degraded", true))
	slog.Warn("Generation backend unavailable, degrading",
		"backend", backend,
		"backend_error", llm.IsBackendUnavailable(err),
		"error", err,
	)

	if s.cfg.UseLocalModel {
		return localUnavailableMessage, true
	}
	if len(pool) > 0 && query != "" {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordFallback(backend)
		}
		return Fallback(query, pool), true
	}
	return remoteUnavailableMessage, true
}

func (s *Service) backendName() string {
	if s.cfg.UseLocalModel {
		return "ollama"
	}
	return "huggingface"
}

func (s *Service) generationParams() llm.GenerationParams {
	return llm.GenerationParams{
		MaxTokens:         llm.Int(150),
		Temperature:       llm.Float32(0.7),
		RepetitionPenalty: llm.Float32(1.1),
	}
}

// reasoningContext combines the framework concepts with generous per-file
// excerpts for the reasoning prompt.
func reasoningContext(frameworkContext string, pool datatypes.DocumentPool) string {
	var sections []string
	for _, doc := range pool {
		if doc.Text == "" {
			continue
		}
		filename := doc.Filename
		if filename == "" {
			filename = "unknown file"
		}
		sections = append(sections, fmt.Sprintf("From %s:\n%s...", filename, truncateRunes(doc.Text, reasoningExcerptLimit)))
	}
	return fmt.Sprintf("## FloodNS Framework Concepts:\n%s\n\n## Simulation Data:\n%s",
		frameworkContext, strings.Join(sections, "\n\n"))
}

// canned builds a response whose answer is a fixed user-facing message.
func canned(sessionId string, classification Classification, answer string) *datatypes.AskResponse {
	return &datatypes.AskResponse{
		Answer:    answer,
		SessionId: sessionId,
		Intent:    string(classification),
	}
}
