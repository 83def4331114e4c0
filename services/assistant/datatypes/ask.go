// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Limits
// =============================================================================

// MaxQuestionBytes bounds the accepted question size. The limit is in bytes,
// not runes, so oversized multi-byte payloads cannot slip past it.
const MaxQuestionBytes = 32 * 1024

// MaxScopedExperiments bounds how many experiment names one ask may target.
const MaxScopedExperiments = 32

// =============================================================================
// Shared Validator Instance
// =============================================================================

// askValidate is the validator instance for ask datatypes.
// Initialized in init() with custom validators.
var askValidate *validator.Validate

func init() {
	askValidate = validator.New()
	_ = askValidate.RegisterValidation("maxbytes", validateQuestionBytes)
}

// validateQuestionBytes enforces MaxQuestionBytes on string fields.
func validateQuestionBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQuestionBytes
}

// =============================================================================
// Request / Response
// =============================================================================

// AskRequest is a question about one or more simulation experiments.
//
// Experiments optionally narrows retrieval to the named experiments; when
// empty, the service answers over whatever scope the retrieval layer holds.
type AskRequest struct {
	Question    string   `json:"question" validate:"required,maxbytes"`
	SessionId   string   `json:"session_id,omitempty"`
	Experiments []string `json:"experiments,omitempty" validate:"max=32"`
	Timestamp   int64    `json:"timestamp,omitempty"`
}

// Validate checks the request against the shared validator rules.
func (r *AskRequest) Validate() error {
	if err := askValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid ask request: %w", err)
	}
	return nil
}

// EnsureDefaults fills the timestamp when the caller omitted it.
func (r *AskRequest) EnsureDefaults() {
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().Unix()
	}
}

// EnsureSessionId returns the request's session id, generating one when absent.
func (r *AskRequest) EnsureSessionId() string {
	if r.SessionId == "" {
		r.SessionId = fmt.Sprintf("sess_%s", uuid.NewString())
	}
	return r.SessionId
}

// AskResponse carries the answer envelope back to the caller. The Answer
// string embeds the <sources> block and, for reasoning questions, a leading
// <thinking> block; clients parse that envelope for collapsible rendering.
type AskResponse struct {
	Answer        string   `json:"answer"`
	SessionId     string   `json:"session_id"`
	Intent        string   `json:"intent"`
	DocumentCount int      `json:"document_count"`
	Experiments   []string `json:"experiments,omitempty"`
}
