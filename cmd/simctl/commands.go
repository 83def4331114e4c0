// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	askExperiments []string
	askSession     string
	chatSession    string
	ingestName     string
	ingestParams   string
	searchLimit    int
	archiveOutput  string

	rootCmd = &cobra.Command{
		Use:   "simctl",
		Short: "A cli for the FloodNS simulations platform",
		Long: `simctl talks to the FloodNS assistant service: ask questions about
				simulation results, manage experiments, and ingest run directories
				into the vector store.`,
	}

	// --- Ask / Chat ---
	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Asks a single question about the ingested simulation results",
		Run:   runAskCommand, // Defined in cmd_ask.go
	}
	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Starts an interactive question session against the assistant",
		Run:   runChatCommand, // Defined in cmd_chat.go
	}

	// --- Experiments ---
	experimentsCmd = &cobra.Command{
		Use:     "experiments",
		Short:   "Manage simulation experiments",
		Aliases: []string{"exp"},
	}
	listExperimentsCmd = &cobra.Command{
		Use:   "list",
		Short: "List all experiments with their state",
		Run:   runListExperiments, // Defined in cmd_experiments.go
	}
	showExperimentCmd = &cobra.Command{
		Use:   "show [experiment_id]",
		Short: "Show the full record of one experiment",
		Args:  cobra.ExactArgs(1),
		Run:   runShowExperiment, // Defined in cmd_experiments.go
	}
	rerunExperimentCmd = &cobra.Command{
		Use:   "rerun [experiment_id]",
		Short: "Re-execute a finished or failed experiment",
		Args:  cobra.ExactArgs(1),
		Run:   runRerunExperiment, // Defined in cmd_experiments.go
	}
	deleteExperimentCmd = &cobra.Command{
		Use:   "delete [experiment_id]",
		Short: "Delete an experiment record",
		Args:  cobra.ExactArgs(1),
		Run:   runDeleteExperiment, // Defined in cmd_experiments.go
	}
	archiveExperimentCmd = &cobra.Command{
		Use:   "archive [experiment_id]",
		Short: "Download a zip of a finished experiment's run directory",
		Args:  cobra.ExactArgs(1),
		Run:   runArchiveExperiment, // Defined in cmd_experiments.go
	}

	// --- Documents ---
	ingestCmd = &cobra.Command{
		Use:   "ingest [run_dir]",
		Short: "Ingest a FloodNS run directory into the vector store",
		Args:  cobra.ExactArgs(1),
		Run:   runIngestCommand, // Defined in cmd_ingest.go
	}
	searchCmd = &cobra.Command{
		Use:   "search [query]",
		Short: "Vector search over the ingested simulation documents",
		Run:   runSearchCommand, // Defined in cmd_ingest.go
	}

	// --- Service ---
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show assistant health and dependency status",
		Run:   runStatusCommand, // Defined in cmd_experiments.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringSliceVarP(&askExperiments, "experiments", "e", nil,
		"Restrict the answer to these experiment names (repeatable)")
	askCmd.Flags().StringVar(&askSession, "session", "", "Session ID for follow-up questions")

	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatSession, "resume", "", "Resume a conversation using a specific session ID.")

	rootCmd.AddCommand(experimentsCmd)
	experimentsCmd.AddCommand(listExperimentsCmd)
	experimentsCmd.AddCommand(showExperimentCmd)
	experimentsCmd.AddCommand(rerunExperimentCmd)
	experimentsCmd.AddCommand(deleteExperimentCmd)
	experimentsCmd.AddCommand(archiveExperimentCmd)
	archiveExperimentCmd.Flags().StringVarP(&archiveOutput, "output", "o", "",
		"Output filename (default: simulation_output.zip)")

	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestName, "experiment", "", "Experiment name to index the documents under")
	ingestCmd.Flags().StringVar(&ingestParams, "params", "", "Packed experiment params (num_jobs,num_cores,ring_size,routing,seed)")

	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVar(&searchLimit, "limit", 5, "Maximum number of results")

	rootCmd.AddCommand(statusCmd)
}
