// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rerun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/JoeMat18/simulations-platform/pkg/validation"
	"github.com/JoeMat18/simulations-platform/services/assistant/datatypes"
	"github.com/JoeMat18/simulations-platform/services/assistant/observability"
)

// rerunTracer is the OpenTelemetry tracer for re-run operations.
var rerunTracer = otel.Tracer("floodns.assistant.rerun")

// ErrAlreadyRunning is returned when a re-run is requested for an experiment
// that is already in Re-Running state. Handlers map it to 409.
var ErrAlreadyRunning = errors.New("experiment re-run already in progress")

// ExperimentStates is the slice of the experiment store the re-run machinery
// drives. store.ExperimentStore satisfies it.
type ExperimentStates interface {
	Get(ctx context.Context, id string) (*datatypes.Experiment, error)
	UpdateState(ctx context.Context, id, state string) error
	MarkFinished(ctx context.Context, id string, endTime time.Time) error
	MarkError(ctx context.Context, id, message string) error
	ListStaleReRunning(ctx context.Context, cutoff time.Time) ([]datatypes.Experiment, error)
}

// Manager owns background simulation re-runs.
//
// ReRun returns as soon as the experiment is flipped to Re-Running; the
// simulation itself runs in a detached goroutine that outlives the HTTP
// request. All state flows through the store, so the answer pipeline never
// participates.
//
// Thread Safety: Safe for concurrent use.
type Manager struct {
	store  ExperimentStates
	runner Runner
	clock  func() time.Time
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewManager creates a re-run manager.
func NewManager(store ExperimentStates, runner Runner) *Manager {
	return &Manager{
		store:  store,
		runner: runner,
		clock:  time.Now,
		logger: slog.Default(),
	}
}

// ReRun starts a background re-execution of the experiment and returns a job
// id for correlation. The experiment moves to Re-Running before this returns;
// the terminal transition (Finished or Error) happens when the job completes.
//
// Returns ErrAlreadyRunning if the experiment is already in Re-Running;
// store.ErrNotFound and store.ErrInvalidID pass through from the lookup.
func (m *Manager) ReRun(ctx context.Context, id string) (string, error) {
	ctx, span := rerunTracer.Start(ctx, "RerunManager.ReRun")
	defer span.End()

	exp, err := m.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if exp.State == datatypes.StateReRunning {
		return "", fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}

	if err := m.store.UpdateState(ctx, id, datatypes.StateReRunning); err != nil {
		return "", fmt.Errorf("mark experiment re-running: %w", err)
	}

	jobID := uuid.NewString()
	span.SetAttributes(
		attribute.String("experiment.id", id),
		attribute.String("rerun.job_id", jobID),
	)
	m.logger.Info("Experiment re-run started",
		slog.String("experiment_id", id),
		slog.String("job_id", jobID),
	)

	if mm := observability.DefaultMetrics; mm != nil {
		mm.RerunStarted()
	}
	m.wg.Add(1)
	// The job must survive the request that started it.
	go m.execute(context.WithoutCancel(ctx), jobID, exp)

	return jobID, nil
}

// Wait blocks until all in-flight re-runs have reached a terminal state.
// The server calls it during graceful shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// execute runs one re-run to its terminal state.
func (m *Manager) execute(ctx context.Context, jobID string, exp *datatypes.Experiment) {
	defer m.wg.Done()
	defer func() {
		if mm := observability.DefaultMetrics; mm != nil {
			mm.RerunEnded()
		}
	}()

	if err := validation.ValidateParamsTuple(exp.Params); err != nil {
		m.fail(ctx, exp.ID, jobID, fmt.Sprintf("invalid params tuple: %v", err))
		return
	}
	params, err := datatypes.ParseExperimentParams(exp.Params)
	if err != nil {
		m.fail(ctx, exp.ID, jobID, fmt.Sprintf("parse params tuple: %v", err))
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- m.runner.Run(runCtx, exp, params)
	}()

	marker := m.watchForCompletion(runCtx, exp.RunDir)

	select {
	case err := <-runErr:
		if err != nil {
			m.fail(ctx, exp.ID, jobID, err.Error())
			return
		}
	case <-marker:
		// The simulator wrote its completion marker; the wrapper process
		// may still be flushing logs. Reap it and record completion now.
		m.logger.Info("Completion marker detected before process exit",
			slog.String("experiment_id", exp.ID),
			slog.String("run_dir", exp.RunDir),
		)
		cancel()
		<-runErr
	}

	if err := m.store.MarkFinished(ctx, exp.ID, m.clock()); err != nil {
		m.logger.Warn("Failed to record finished state",
			slog.String("experiment_id", exp.ID),
			slog.String("error", err.Error()),
		)
		if mm := observability.DefaultMetrics; mm != nil {
			mm.RecordRerun(observability.RerunError)
		}
		return
	}
	if mm := observability.DefaultMetrics; mm != nil {
		mm.RecordRerun(observability.RerunSuccess)
	}
	m.logger.Info("Experiment re-run finished",
		slog.String("experiment_id", exp.ID),
		slog.String("job_id", jobID),
	)
}

// watchForCompletion returns a channel that closes when the simulator's
// completion marker is written to the run directory. When the directory is
// unset or the watcher cannot start, it returns nil so the caller's select
// falls back to waiting on process exit alone.
func (m *Manager) watchForCompletion(ctx context.Context, runDir string) <-chan struct{} {
	if runDir == "" {
		return nil
	}
	watcher, err := NewRunWatcher(runDir, m.logger)
	if err != nil {
		m.logger.Warn("Run directory watcher unavailable",
			slog.String("run_dir", runDir),
			slog.String("error", err.Error()),
		)
		return nil
	}
	go watcher.Watch(ctx)
	return watcher.Done()
}

// fail records a terminal Error state with the failure message.
func (m *Manager) fail(ctx context.Context, id, jobID, message string) {
	if mm := observability.DefaultMetrics; mm != nil {
		mm.RecordRerun(observability.RerunError)
	}
	if err := m.store.MarkError(ctx, id, message); err != nil {
		m.logger.Warn("Failed to record error state",
			slog.String("experiment_id", id),
			slog.String("error", err.Error()),
		)
	}
	m.logger.Error("Experiment re-run failed",
		slog.String("experiment_id", id),
		slog.String("job_id", jobID),
		slog.String("reason", message),
	)
}
