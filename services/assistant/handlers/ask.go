// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers holds the assistant's gin HTTP handlers. Each handler is
// a closure over the narrow interface it drives, so tests run them against
// fakes with httptest.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/JoeMat18/simulations-platform/services/assistant/datatypes"
)

// handlersTracer is the OpenTelemetry tracer for HTTP handlers.
var handlersTracer = otel.Tracer("floodns.assistant.handlers")

// AnswerService runs the question pipeline. pipeline.Service satisfies it.
type AnswerService interface {
	Answer(ctx context.Context, req *datatypes.AskRequest) (*datatypes.AskResponse, error)
}

// HandleAsk answers one question about the ingested simulation data.
//
// The pipeline degrades internally, so the only client errors are malformed
// bodies and validation failures; everything else is a 200 with an answer.
func HandleAsk(svc AnswerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "HandleAsk")
		defer span.End()

		var request datatypes.AskRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind ask request JSON", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		span.SetAttributes(
			attribute.String("session_id", request.SessionId),
			attribute.Int("scoped_experiments", len(request.Experiments)),
		)

		response, err := svc.Answer(ctx, &request)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if strings.Contains(err.Error(), "validation failed") {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			slog.Error("Answer pipeline failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, response)
	}
}
