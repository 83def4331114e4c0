// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rerun re-executes simulations in the background.
//
// Manager.ReRun flips the experiment to Re-Running, launches the simulator
// through an injected Runner, and records the terminal state (Finished plus
// end time, or Error plus message) when the job completes. A filesystem
// watcher picks up the simulator's completion marker so completion is
// recorded without waiting for the wrapper process to exit, and a Janitor
// sweeps records stuck in Re-Running past a deadline.
package rerun

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"strconv"
	"time"

	"github.com/JoeMat18/simulations-platform/pkg/validation"
	"github.com/JoeMat18/simulations-platform/services/assistant/datatypes"
)

// simulationModel is the traffic model handed to the job launcher. The
// platform's experiments all replay the BLOOM training workload.
const simulationModel = "BLOOM"

// maxCapturedOutput bounds how much simulator output is kept for error
// messages. Long runs print per-epoch progress that would otherwise grow
// without limit.
const maxCapturedOutput = 64 * 1024

// Runner launches one simulation job and blocks until it completes.
//
// Implementations must be safe for concurrent use; the manager may run
// several experiments at once.
type Runner interface {
	Run(ctx context.Context, exp *datatypes.Experiment, params datatypes.ExperimentParams) error
}

// RunnerConfig configures the exec-based FloodNS job launcher.
type RunnerConfig struct {
	// Command is the executable to launch. Defaults to "python3".
	Command string

	// BaseArgs precede the per-experiment flags. Defaults to invoking the
	// floodns job launcher module.
	BaseArgs []string

	// WorkDir is the working directory for the launched process. The
	// floodns tree resolves its run directories relative to it.
	WorkDir string

	// Timeout bounds one simulation run. Defaults to 2h.
	Timeout time.Duration

	// Logger receives structured run logs. Defaults to slog.Default().
	Logger *slog.Logger
}

func (c *RunnerConfig) applyDefaults() {
	if c.Command == "" {
		c.Command = "python3"
	}
	if len(c.BaseArgs) == 0 {
		c.BaseArgs = []string{"-m", "floodns.external.simulation.main"}
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// FloodNSRunner launches simulation jobs as subprocesses.
//
// Thread Safety: Safe for concurrent use. Each run creates its own process.
type FloodNSRunner struct {
	config RunnerConfig
	logger *slog.Logger
}

// NewFloodNSRunner creates a runner with defaults applied.
func NewFloodNSRunner(config RunnerConfig) *FloodNSRunner {
	config.applyDefaults()
	return &FloodNSRunner{
		config: config,
		logger: config.Logger,
	}
}

// Run launches one simulation job and waits for it to exit.
//
// The experiment's run directory is validated before the process starts; the
// params tuple is assumed to have already passed validation.ValidateParamsTuple.
// Failures carry the tail of the process output so the error lands in the
// experiment record with enough context to diagnose.
func (r *FloodNSRunner) Run(ctx context.Context, exp *datatypes.Experiment, params datatypes.ExperimentParams) error {
	if exp.RunDir != "" {
		if err := validation.ValidateRunDir(exp.RunDir); err != nil {
			return fmt.Errorf("refusing to launch simulation: %w", err)
		}
	}

	args := append(slices.Clone(r.config.BaseArgs),
		"--seed", strconv.Itoa(params.Seed),
		"--n_core_failures", strconv.Itoa(params.NumCores),
		"--ring_size", strconv.Itoa(params.RingSize),
		"--model", simulationModel,
		"--alg", params.Routing,
	)

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.config.Command, args...)
	if r.config.WorkDir != "" {
		cmd.Dir = r.config.WorkDir
	}

	var output bytes.Buffer
	limited := &limitedWriter{w: &output, limit: maxCapturedOutput}
	cmd.Stdout = limited
	cmd.Stderr = limited

	r.logger.Info("Launching simulation job",
		slog.String("experiment_id", exp.ID),
		slog.String("routing", params.Routing),
		slog.Int("seed", params.Seed),
		slog.Int("n_core_failures", params.NumCores),
		slog.Int("ring_size", params.RingSize),
	)

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		r.logger.Warn("Simulation timed out",
			slog.String("experiment_id", exp.ID),
			slog.Duration("timeout", r.config.Timeout),
		)
		return fmt.Errorf("simulation timed out after %s", r.config.Timeout)
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return fmt.Errorf("floodns exited with status %d: %s",
				exitErr.ExitCode(), outputTail(output.Bytes()))
		}
		return fmt.Errorf("launch floodns: %w", err)
	}

	r.logger.Info("Simulation job completed",
		slog.String("experiment_id", exp.ID),
		slog.Duration("duration", duration),
		slog.Int("output_bytes", output.Len()),
	)
	return nil
}

// outputTail keeps the last few lines of process output for error messages.
func outputTail(out []byte) string {
	const tailBytes = 512
	out = bytes.TrimSpace(out)
	if len(out) > tailBytes {
		out = out[len(out)-tailBytes:]
	}
	return string(out)
}

// limitedWriter drops writes past its limit, keeping the head of the output.
type limitedWriter struct {
	w         *bytes.Buffer
	limit     int
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	remaining := lw.limit - lw.w.Len()
	if remaining <= 0 {
		lw.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		lw.truncated = true
		if _, err := lw.w.Write(p[:remaining]); err != nil {
			return 0, err
		}
		return len(p), nil
	}
	return lw.w.Write(p)
}
