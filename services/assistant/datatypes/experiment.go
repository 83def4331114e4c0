// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JoeMat18/simulations-platform/pkg/validation"
)

// Experiment lifecycle states as stored in the experiments collection.
const (
	StateCreated   = "Created"
	StateRunning   = "Running"
	StateReRunning = "Re-Running"
	StateFinished  = "Finished"
	StateError     = "Error"
)

// Experiment is one simulation record. Params keeps the platform's packed
// "num_jobs,num_cores,ring_size,routing,seed" tuple; ExperimentParams parses it.
type Experiment struct {
	ID             string `json:"id"`
	SimulationName string `json:"simulation_name"`
	Params         string `json:"params"`
	Date           string `json:"date,omitempty"`
	StartTime      string `json:"start_time,omitempty"`
	EndTime        string `json:"end_time,omitempty"`
	State          string `json:"state"`
	RunDir         string `json:"run_dir,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ExperimentParams is the unpacked form of Experiment.Params.
type ExperimentParams struct {
	NumJobs  int
	NumCores int
	RingSize int
	Routing  string
	Seed     int
}

// ParseExperimentParams splits the packed five-field tuple. It rejects tuples
// with the wrong arity or non-numeric fields but leaves domain checks (valid
// routing algorithm, allowed core counts) to pkg/validation.
func ParseExperimentParams(packed string) (ExperimentParams, error) {
	parts := strings.Split(packed, ",")
	if len(parts) != 5 {
		return ExperimentParams{}, fmt.Errorf("params tuple must have 5 fields, got %d", len(parts))
	}
	numJobs, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return ExperimentParams{}, fmt.Errorf("invalid num_jobs %q: %w", parts[0], err)
	}
	numCores, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return ExperimentParams{}, fmt.Errorf("invalid num_cores %q: %w", parts[1], err)
	}
	ringSize, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return ExperimentParams{}, fmt.Errorf("invalid ring_size %q: %w", parts[2], err)
	}
	seed, err := strconv.Atoi(strings.TrimSpace(parts[4]))
	if err != nil {
		return ExperimentParams{}, fmt.Errorf("invalid seed %q: %w", parts[4], err)
	}
	return ExperimentParams{
		NumJobs:  numJobs,
		NumCores: numCores,
		RingSize: ringSize,
		Routing:  strings.TrimSpace(parts[3]),
		Seed:     seed,
	}, nil
}

// Packed reassembles the five-field tuple in storage order.
func (p ExperimentParams) Packed() string {
	return fmt.Sprintf("%d,%d,%d,%s,%d", p.NumJobs, p.NumCores, p.RingSize, p.Routing, p.Seed)
}

// CreateExperimentRequest is the POST /v1/experiments payload.
type CreateExperimentRequest struct {
	SimulationName string `json:"simulation_name" validate:"required,max=128"`
	Params         string `json:"params" validate:"required"`
	RunDir         string `json:"run_dir,omitempty"`
}

// Validate checks the request against the shared validator rules and the
// simulation name character set.
func (r *CreateExperimentRequest) Validate() error {
	if err := askValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid create request: %w", err)
	}
	if err := validation.ValidateSimulationName(r.SimulationName); err != nil {
		return fmt.Errorf("invalid create request: %w", err)
	}
	return nil
}

// UpdateExperimentRequest is the PUT /v1/experiments/:id payload.
type UpdateExperimentRequest struct {
	SimulationName string `json:"simulation_name" validate:"required,max=128"`
	Params         string `json:"params" validate:"required"`
}

// Validate checks the request against the shared validator rules and the
// simulation name character set.
func (r *UpdateExperimentRequest) Validate() error {
	if err := askValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid update request: %w", err)
	}
	if err := validation.ValidateSimulationName(r.SimulationName); err != nil {
		return fmt.Errorf("invalid update request: %w", err)
	}
	return nil
}
