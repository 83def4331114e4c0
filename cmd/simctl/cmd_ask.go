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
	"strings"

	"github.com/JoeMat18/simulations-platform/pkg/ux"
	"github.com/JoeMat18/simulations-platform/services/assistant/datatypes"
	"github.com/spf13/cobra"
)

func runAskCommand(cmd *cobra.Command, args []string) {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		ux.Error("Usage: simctl ask <question>")
		return
	}

	spin := ux.NewSpinner("Thinking")
	spin.Start()
	askResp, err := sendAskRequest(question, askSession, askExperiments)
	spin.Stop()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	printAnswer(askResp)
}

func sendAskRequest(question, sessionID string, experiments []string) (datatypes.AskResponse, error) {
	var askResp datatypes.AskResponse
	payload := datatypes.AskRequest{
		Question:    question,
		SessionId:   sessionID,
		Experiments: experiments,
	}
	err := postJSON("/v1/ask", payload, &askResp)
	return askResp, err
}

func printAnswer(askResp datatypes.AskResponse) {
	answer, sources := splitSources(askResp.Answer)

	fmt.Println()
	ux.Title("Answer")
	fmt.Println(answer)

	if sources != "" {
		fmt.Println()
		fmt.Println(ux.Styles.Subtitle.Render("Sources"))
		ux.Muted(sources)
	}

	fmt.Println()
	ux.Muted(fmt.Sprintf("intent=%s documents=%d session=%s",
		askResp.Intent, askResp.DocumentCount, askResp.SessionId))
}

// splitSources separates the answer body from its <sources> provenance block.
func splitSources(answer string) (string, string) {
	start := strings.Index(answer, "<sources>")
	if start == -1 {
		return strings.TrimSpace(answer), ""
	}
	end := strings.Index(answer, "</sources>")
	if end == -1 || end < start {
		return strings.TrimSpace(answer), ""
	}
	body := strings.TrimSpace(answer[:start])
	sources := strings.TrimSpace(answer[start+len("<sources>") : end])
	return body, sources
}
