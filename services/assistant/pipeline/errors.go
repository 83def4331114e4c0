// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import "fmt"

// =============================================================================
// Error Types
// =============================================================================

// EmptyRetrievalError is returned when retrieval produced no documents for
// the question's scope. The pipeline short-circuits before any backend call
// and handlers map it to a canned answer rather than an HTTP failure.
//
// # Fields
//
//   - Experiments: The experiment names the question was scoped to. Empty
//     when the question ran against the whole corpus.
type EmptyRetrievalError struct {
	Experiments []string
}

// Error implements the error interface for EmptyRetrievalError.
func (e *EmptyRetrievalError) Error() string {
	if len(e.Experiments) == 0 {
		return "empty retrieval: no documents in corpus"
	}
	return fmt.Sprintf("empty retrieval: no documents for experiments %v", e.Experiments)
}

// IsEmptyRetrieval checks if an error is an EmptyRetrievalError.
func IsEmptyRetrieval(err error) bool {
	_, ok := err.(*EmptyRetrievalError)
	return ok
}

// MalformedTabularError is returned by the deterministic fallback when a CSV
// artifact cannot be parsed well enough to extract the requested figure. The
// dispatcher treats it as a signal to degrade to the general manifest answer.
type MalformedTabularError struct {
	Filename string
	Reason   string
}

// Error implements the error interface for MalformedTabularError.
func (e *MalformedTabularError) Error() string {
	return fmt.Sprintf("malformed tabular data in %s: %s", e.Filename, e.Reason)
}

// IsMalformedTabular checks if an error is a MalformedTabularError.
func IsMalformedTabular(err error) bool {
	_, ok := err.(*MalformedTabularError)
	return ok
}
