// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Config is the optional simctl.yaml file.
type Config struct {
	AssistantURL string `yaml:"assistant_url"`
}

const (
	DefaultAssistantHost = "localhost"
	DefaultAssistantPort = 8610
)

// apiClient is shared by all commands. Generation can be slow on CPU-only
// hosts, so the timeout is generous.
var apiClient = &http.Client{Timeout: 3 * time.Minute}

func getAssistantBaseURL() string {
	// 1. Priority: environment variable (used by tests & container overrides)
	if url := os.Getenv("FLOODNS_ASSISTANT_URL"); url != "" {
		return url
	}
	// 2. Config file value
	if config.AssistantURL != "" {
		return config.AssistantURL
	}
	// 3. Default: standard host/port
	return fmt.Sprintf("http://%s:%d", DefaultAssistantHost, DefaultAssistantPort)
}

// getJSON performs a GET against the assistant and decodes the response into out.
func getJSON(path string, out any) error {
	resp, err := apiClient.Get(getAssistantBaseURL() + path)
	if err != nil {
		return fmt.Errorf("failed to reach assistant: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// postJSON performs a POST with a JSON payload and decodes the response into out.
func postJSON(path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to create request body: %w", err)
	}

	resp, err := apiClient.Post(getAssistantBaseURL()+path, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to reach assistant: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// deleteJSON performs a DELETE and decodes the response into out.
func deleteJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodDelete, getAssistantBaseURL()+path, nil)
	if err != nil {
		return err
	}

	resp, err := apiClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach assistant: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("assistant returned an error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode assistant response: %w", err)
	}
	return nil
}
