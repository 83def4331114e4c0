// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// database queries, file paths, or subprocess calls. Using these validators
// prevents injection attacks (query injection, command injection, path traversal).
package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// experimentIDPattern matches MongoDB ObjectID hex strings: exactly 24
// lowercase hexadecimal characters.
var experimentIDPattern = regexp.MustCompile(`^[0-9a-f]{24}$`)

// simulationNamePattern matches human-readable simulation names.
// Allows: letters, digits, spaces, underscores, hyphens, dots.
// Max length: 128 characters.
var simulationNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._\-]{0,127}$`)

// routingAlgorithms are the schedulers the simulator accepts.
var routingAlgorithms = map[string]bool{
	"ecmp":                true,
	"ilp_solver":          true,
	"simulated_annealing": true,
}

// allowedCoreFailures and allowedRingSizes mirror the values the platform's
// experiment editor offers; the job launcher rejects anything else.
var (
	allowedCoreFailures = map[int]bool{1: true, 4: true, 8: true}
	allowedRingSizes    = map[int]bool{2: true, 4: true, 8: true}
)

// ValidateExperimentID validates a MongoDB ObjectID hex string before it is
// used in a query filter.
//
// Returns an error if the id is empty or not a 24-char lowercase hex string.
//
// Example:
//
//	if err := validation.ValidateExperimentID(id); err != nil {
//	    return nil, fmt.Errorf("invalid experiment id: %w", err)
//	}
//	// Safe to convert with primitive.ObjectIDFromHex
func ValidateExperimentID(id string) error {
	if id == "" {
		return fmt.Errorf("experiment id cannot be empty")
	}
	if !experimentIDPattern.MatchString(id) {
		return fmt.Errorf("invalid experiment id format: %q (must be 24 lowercase hex chars)", id)
	}
	return nil
}

// ValidateSimulationName validates a user-supplied simulation name before it
// is stored or rendered.
func ValidateSimulationName(name string) error {
	if name == "" {
		return fmt.Errorf("simulation name cannot be empty")
	}
	if !simulationNamePattern.MatchString(name) {
		return fmt.Errorf("invalid simulation name: %q (letters, digits, spaces, dots, underscores, hyphens; max 128 chars)", name)
	}
	return nil
}

// ValidateRoutingAlgorithm checks the routing field against the simulator's
// known algorithms. The value is passed to a subprocess, so unknown values
// are rejected rather than forwarded.
func ValidateRoutingAlgorithm(alg string) error {
	if !routingAlgorithms[alg] {
		return fmt.Errorf("unknown routing algorithm: %q (must be ecmp, ilp_solver, or simulated_annealing)", alg)
	}
	return nil
}

// ValidateParamsTuple validates the packed "num_jobs,num_cores,ring_size,routing,seed"
// tuple end to end: arity, numeric fields, allowed core/ring values, known
// routing algorithm, and a non-negative seed.
func ValidateParamsTuple(packed string) error {
	parts := strings.Split(packed, ",")
	if len(parts) != 5 {
		return fmt.Errorf("params tuple must have 5 fields, got %d", len(parts))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	numJobs, err := strconv.Atoi(parts[0])
	if err != nil || numJobs < 1 {
		return fmt.Errorf("num_jobs must be a positive integer, got %q", parts[0])
	}
	numCores, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("num_cores must be an integer, got %q", parts[1])
	}
	if !allowedCoreFailures[numCores] {
		return fmt.Errorf("num_cores must be one of 1, 4, 8; got %d", numCores)
	}
	ringSize, err := strconv.Atoi(parts[2])
	if err != nil {
		return fmt.Errorf("ring_size must be an integer, got %q", parts[2])
	}
	if !allowedRingSizes[ringSize] {
		return fmt.Errorf("ring_size must be one of 2, 4, 8; got %d", ringSize)
	}
	if err := ValidateRoutingAlgorithm(parts[3]); err != nil {
		return err
	}
	seed, err := strconv.Atoi(parts[4])
	if err != nil || seed < 0 {
		return fmt.Errorf("seed must be a non-negative integer, got %q", parts[4])
	}
	return nil
}

// ValidateRunDir validates a run directory path before it is walked, zipped,
// or handed to the simulator. Rejects empty paths and any path containing a
// parent-directory traversal once cleaned.
func ValidateRunDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("run directory cannot be empty")
	}
	cleaned := filepath.Clean(dir)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return fmt.Errorf("run directory escapes its root: %q", dir)
	}
	if strings.ContainsRune(dir, '\x00') {
		return fmt.Errorf("run directory contains a NUL byte")
	}
	return nil
}
