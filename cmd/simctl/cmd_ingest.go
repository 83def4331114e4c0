// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/JoeMat18/simulations-platform/pkg/ux"
	"github.com/JoeMat18/simulations-platform/services/assistant/datatypes"
	"github.com/spf13/cobra"
)

type ingestResponse struct {
	Status   string `json:"status"`
	RunDir   string `json:"run_dir"`
	Files    int    `json:"files"`
	Chunks   int    `json:"chunks"`
	Imported int    `json:"imported"`
	Replaced int64  `json:"replaced"`
}

type searchResponse struct {
	Results []datatypes.SimulationDocumentResult `json:"results"`
	Count   int                                  `json:"count"`
}

func runIngestCommand(cmd *cobra.Command, args []string) {
	runDir := args[0]

	payload := map[string]any{
		"run_dir":           runDir,
		"experiment_name":   ingestName,
		"experiment_params": ingestParams,
	}

	var result ingestResponse
	err := ux.WithSpinner("Ingesting "+runDir, func() error {
		return postJSON("/v1/documents/ingest", payload, &result)
	})
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	ux.KeyValue("files", strconv.Itoa(result.Files))
	ux.KeyValue("chunks", strconv.Itoa(result.Chunks))
	ux.KeyValue("imported", strconv.Itoa(result.Imported))
	if result.Replaced > 0 {
		ux.KeyValue("replaced", strconv.FormatInt(result.Replaced, 10))
	}
}

func runSearchCommand(cmd *cobra.Command, args []string) {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		ux.Error("Usage: simctl search <query>")
		return
	}

	path := fmt.Sprintf("/v1/documents/search?q=%s&limit=%d", url.QueryEscape(query), searchLimit)
	var result searchResponse
	if err := getJSON(path, &result); err != nil {
		log.Fatalf("Error: %v", err)
	}

	if result.Count == 0 {
		ux.Muted("No matching documents.")
		return
	}

	ux.Title(fmt.Sprintf("Results (%d)", result.Count))
	for i, doc := range result.Results {
		fmt.Printf("%d. %s %s\n", i+1,
			ux.Styles.Bold.Render(doc.Filename),
			ux.Styles.Muted.Render(fmt.Sprintf("(%s, certainty %.3f)", doc.ExperimentName, doc.Additional.Certainty)),
		)
		ux.Muted(excerpt(doc.Text, 160))
	}
}

// excerpt truncates text to at most n runes for list display.
func excerpt(text string, n int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
