// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rerun

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JoeMat18/simulations-platform/services/assistant/observability"
)

const (
	// DefaultStaleAfter is how long an experiment may sit in Re-Running
	// before the janitor declares it dead. Longer than the runner timeout
	// so a legitimately slow run is never flipped while its process lives.
	DefaultStaleAfter = 3 * time.Hour

	// DefaultSweepInterval is how often the janitor sweeps.
	DefaultSweepInterval = 10 * time.Minute
)

// Janitor flips experiments stuck in Re-Running past a deadline to Error.
//
// A crashed process or a killed pod can leave records in Re-Running forever;
// the sweep keeps the experiment list honest.
type Janitor struct {
	store      ExperimentStates
	staleAfter time.Duration
	interval   time.Duration
	clock      func() time.Time
	logger     *slog.Logger
}

// NewJanitor creates a janitor. Non-positive durations fall back to the
// package defaults.
func NewJanitor(store ExperimentStates, staleAfter, interval time.Duration) *Janitor {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Janitor{
		store:      store,
		staleAfter: staleAfter,
		interval:   interval,
		clock:      time.Now,
		logger:     slog.Default(),
	}
}

// Run sweeps on the configured interval until the context ends. Should be
// run in a goroutine.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("Re-run janitor started",
		slog.Duration("stale_after", j.staleAfter),
		slog.Duration("interval", j.interval),
	)

	for {
		select {
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil {
				j.logger.Warn("Janitor sweep failed",
					slog.String("error", err.Error()))
			}
		case <-ctx.Done():
			j.logger.Debug("Re-run janitor stopping")
			return
		}
	}
}

// Sweep flips every experiment stuck in Re-Running past the deadline to
// Error and returns how many it flipped.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	cutoff := j.clock().Add(-j.staleAfter)
	stale, err := j.store.ListStaleReRunning(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale re-running experiments: %w", err)
	}

	flipped := 0
	for _, exp := range stale {
		message := fmt.Sprintf("re-run exceeded the %s deadline without completing", j.staleAfter)
		if err := j.store.MarkError(ctx, exp.ID, message); err != nil {
			j.logger.Warn("Failed to flip stale experiment",
				slog.String("experiment_id", exp.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if m := observability.DefaultMetrics; m != nil {
			m.RecordRerun(observability.RerunStale)
		}
		j.logger.Info("Flipped stale re-run to Error",
			slog.String("experiment_id", exp.ID),
			slog.String("simulation_name", exp.SimulationName),
		)
		flipped++
	}
	return flipped, nil
}
