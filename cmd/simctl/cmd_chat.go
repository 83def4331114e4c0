// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/JoeMat18/simulations-platform/pkg/ux"
	"github.com/spf13/cobra"
)

func runChatCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	reader := NewInteractiveInputReader(50)
	if err := runChatLoop(ctx, reader, chatSession); err != nil && err != context.Canceled {
		log.Fatalf("Chat error: %v", err)
	}
}

// runChatLoop drives the question/answer exchange until exit, EOF, or
// context cancellation. The session ID from each answer feeds the next
// question so the assistant sees a continuous session.
func runChatLoop(ctx context.Context, reader InputReader, sessionID string) error {
	ux.Title("FloodNS assistant")
	ux.Muted("Ask about your simulation results. Type 'exit' or 'quit' to leave.")
	if sessionID != "" {
		ux.Muted("Resuming session " + sessionID)
	}
	fmt.Println()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if p, ok := reader.(*InteractiveInputReader); ok {
			p.SetPrompt("you> ")
		} else {
			fmt.Print("you> ")
		}

		line, err := reader.ReadLine()
		if err == io.EOF {
			fmt.Println()
			ux.Muted("Session ended.")
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		if isExitCommand(line) {
			ux.Muted("Session ended.")
			return nil
		}

		spin := ux.NewSpinner("Thinking")
		spin.Start()
		askResp, err := sendAskRequest(line, sessionID, nil)
		spin.Stop()
		if err != nil {
			ux.Error(err.Error())
			continue
		}

		sessionID = askResp.SessionId
		printAnswer(askResp)
		fmt.Println()
	}
}

func isExitCommand(input string) bool {
	return input == "exit" || input == "quit"
}
