// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package framework loads the FloodNS concepts document that is embedded as
// static context in every generation prompt.
package framework

import (
	"fmt"
	"log/slog"
	"os"
)

// FallbackSummary substitutes for the concepts document when it cannot be
// read, so prompts always carry non-empty framework context.
const FallbackSummary = "Framework document could not be loaded. Key concepts include: Network, Node, Link, Flow, Connection, Event, Aftermath, and Simulator."

// Context holds the framework concepts text. It is read once at process
// start and immutable afterwards, so it is safe for concurrent use.
type Context struct {
	text string
}

// Text returns the concepts document, or the substitute summary when the
// document was unreadable at load time.
func (c *Context) Text() string {
	return c.text
}

// LoadError reports an unreadable concepts document. Loading still yields a
// usable Context with the substitute summary; the error exists so callers
// can log what happened.
type LoadError struct {
	Path string
	Err  error
}

// Error implements the error interface for LoadError.
func (e *LoadError) Error() string {
	return fmt.Sprintf("framework document unreadable at %q: %v", e.Path, e.Err)
}

// Unwrap returns the underlying read error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError checks if an error is a *LoadError.
func IsLoadError(err error) bool {
	_, ok := err.(*LoadError)
	return ok
}

// Load reads the concepts document at path. The returned Context is always
// usable: on read failure it carries the substitute summary and the error
// describes what went wrong.
func Load(path string) (*Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Framework document could not be loaded, using substitute summary",
			"path", path, "error", err)
		return &Context{text: FallbackSummary}, &LoadError{Path: path, Err: err}
	}
	slog.Info("Loaded framework concepts document", "path", path, "bytes", len(data))
	return &Context{text: string(data)}, nil
}

// Static builds a Context from literal text. Used by tests and by callers
// that inject their own concepts document.
func Static(text string) *Context {
	return &Context{text: text}
}
