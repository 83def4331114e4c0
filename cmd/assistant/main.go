// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command assistant starts the FloodNS question-answering HTTP server.
//
// It reads configuration from environment variables and blocks until
// shutdown.
//
// # Environment Variables
//
//   - ASSISTANT_PORT: HTTP server port (default: 8610)
//   - USE_LOCAL_MODEL: "true" answers with local Ollama, otherwise HuggingFace
//   - MODEL_NAME: generation model identifier (read by the backend clients)
//   - OLLAMA_BASE_URL, HF_API_BASE_URL, HF_TOKEN: backend endpoints and auth
//   - WEAVIATE_SERVICE_URL: vector store URL (optional)
//   - MONGODB_URI: experiment store connection string (optional)
//   - EMBEDDING_BASE_URL, EMBEDDING_MODEL, EMBEDDING_API_KEY: embeddings API
//   - FLOODNS_RUNS_DIR: working directory for simulation re-runs
//   - RERUN_STALE_AFTER: janitor cutoff for stuck re-runs (default: 3h)
//   - FRAMEWORK_DOC_PATH: framework concepts document (default: floodns/doc/framework.md)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: floodns-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o assistant ./cmd/assistant
//
//	# Run
//	./assistant
//
//	# Or via container
//	docker compose up assistant
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/JoeMat18/simulations-platform/services/assistant"
	"github.com/JoeMat18/simulations-platform/services/llm"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := assistant.Config{
		Port:             getEnvInt("ASSISTANT_PORT", 8610),
		UseLocalModel:    llm.UseLocalModel(),
		WeaviateURL:      os.Getenv("WEAVIATE_SERVICE_URL"),
		MongoURI:         os.Getenv("MONGODB_URI"),
		OTelEndpoint:     getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "floodns-otel-collector:4317"),
		FrameworkDocPath: getEnvString("FRAMEWORK_DOC_PATH", "floodns/doc/framework.md"),
		EmbeddingBaseURL: os.Getenv("EMBEDDING_BASE_URL"),
		EmbeddingModel:   os.Getenv("EMBEDDING_MODEL"),
		EmbeddingAPIKey:  os.Getenv("EMBEDDING_API_KEY"),
		RunsDir:          os.Getenv("FLOODNS_RUNS_DIR"),
		RerunStaleAfter:  getEnvDuration("RERUN_STALE_AFTER", 0),
	}

	slog.Info("Starting assistant",
		"port", cfg.Port,
		"use_local_model", cfg.UseLocalModel,
		"weaviate_url", cfg.WeaviateURL,
	)

	svc, err := assistant.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create assistant: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("Assistant error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
