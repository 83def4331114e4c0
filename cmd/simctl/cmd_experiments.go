// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/JoeMat18/simulations-platform/pkg/ux"
	"github.com/JoeMat18/simulations-platform/pkg/validation"
	"github.com/JoeMat18/simulations-platform/services/assistant/datatypes"
	"github.com/spf13/cobra"
)

type experimentListResponse struct {
	Experiments []datatypes.Experiment `json:"experiments"`
	Count       int                    `json:"count"`
}

type rerunResponse struct {
	JobID        string `json:"job_id"`
	ExperimentID string `json:"experiment_id"`
	State        string `json:"state"`
}

type healthResponse struct {
	Status       string            `json:"status"`
	Service      string            `json:"service"`
	Dependencies map[string]string `json:"dependencies"`
}

// experimentID validates the id argument before it rides into a request path.
func experimentID(args []string) string {
	if err := validation.ValidateExperimentID(args[0]); err != nil {
		log.Fatalf("Error: %v", err)
	}
	return args[0]
}

func runListExperiments(cmd *cobra.Command, args []string) {
	var list experimentListResponse
	if err := getJSON("/v1/experiments", &list); err != nil {
		log.Fatalf("Error: %v", err)
	}

	if list.Count == 0 {
		ux.Muted("No experiments recorded.")
		return
	}

	ux.Title(fmt.Sprintf("Experiments (%d)", list.Count))
	for _, exp := range list.Experiments {
		fmt.Printf("%s %s  %s  %s %s\n",
			ux.StateIcon(exp.State).Render(),
			ux.Styles.Muted.Render(exp.ID),
			ux.Styles.Bold.Render(exp.SimulationName),
			exp.State,
			ux.Styles.Muted.Render(exp.Date),
		)
	}
}

func runShowExperiment(cmd *cobra.Command, args []string) {
	id := experimentID(args)

	var exp datatypes.Experiment
	if err := getJSON("/v1/experiments/"+id, &exp); err != nil {
		log.Fatalf("Error: %v", err)
	}

	ux.Title(exp.SimulationName)
	ux.KeyValue("id", exp.ID)
	ux.KeyValue("state", fmt.Sprintf("%s %s", ux.StateIcon(exp.State).Render(), exp.State))
	ux.KeyValue("params", exp.Params)
	if exp.Date != "" {
		ux.KeyValue("date", exp.Date)
	}
	if exp.StartTime != "" {
		ux.KeyValue("started", exp.StartTime)
	}
	if exp.EndTime != "" {
		ux.KeyValue("ended", exp.EndTime)
	}
	if exp.RunDir != "" {
		ux.KeyValue("run_dir", exp.RunDir)
	}
	if exp.Error != "" {
		ux.KeyValue("error", ux.Styles.Error.Render(exp.Error))
	}
}

func runRerunExperiment(cmd *cobra.Command, args []string) {
	id := experimentID(args)

	var rerun rerunResponse
	if err := postJSON("/v1/experiments/"+id+"/rerun", map[string]any{}, &rerun); err != nil {
		log.Fatalf("Error: %v", err)
	}

	ux.Success(fmt.Sprintf("Re-run started for %s", rerun.ExperimentID))
	ux.KeyValue("job_id", rerun.JobID)
	ux.KeyValue("state", rerun.State)
}

func runDeleteExperiment(cmd *cobra.Command, args []string) {
	id := experimentID(args)

	var result map[string]any
	if err := deleteJSON("/v1/experiments/"+id, &result); err != nil {
		log.Fatalf("Error: %v", err)
	}
	ux.Success(fmt.Sprintf("Deleted experiment %s", id))
}

func runArchiveExperiment(cmd *cobra.Command, args []string) {
	id := experimentID(args)

	output := archiveOutput
	if output == "" {
		output = "simulation_output.zip"
	}

	resp, err := apiClient.Get(getAssistantBaseURL() + "/v1/experiments/" + id + "/archive")
	if err != nil {
		log.Fatalf("Error: failed to reach assistant: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		log.Fatalf("Error: assistant returned an error (status %d): %s", resp.StatusCode, string(body))
	}

	out, err := os.Create(output)
	if err != nil {
		log.Fatalf("Error: failed to create %s: %v", output, err)
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		log.Fatalf("Error: failed to write archive: %v", err)
	}

	ux.Success(fmt.Sprintf("Wrote %s (%d bytes)", output, written))
}

func runStatusCommand(cmd *cobra.Command, args []string) {
	var health healthResponse
	if err := getJSON("/health", &health); err != nil {
		log.Fatalf("Error: %v", err)
	}

	if health.Status == "ok" {
		ux.Success(fmt.Sprintf("%s is healthy", health.Service))
	} else {
		ux.Warning(fmt.Sprintf("%s is %s", health.Service, health.Status))
	}

	for name, state := range health.Dependencies {
		icon := ux.IconSuccess
		if state != "ok" {
			icon = ux.IconWarning
		}
		fmt.Printf("  %s %s %s\n", icon.Render(), name, ux.Styles.Muted.Render(state))
	}
}
