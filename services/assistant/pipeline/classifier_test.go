// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestClassify_General verifies that queries without reasoning or bandwidth
// cues classify as general.
func TestClassify_General(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"plain question", "What topology does the simulation use?"},
		{"node count", "How many nodes are in the network?"},
		{"empty query", ""},
		{"bandwidth alone", "Tell me about the bandwidth"},
		{"stat alone", "What is the average job duration?"},
		{"speed alone", "How fast did the simulation run?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ClassificationGeneral, Classify(tt.query))
		})
	}
}

// TestClassify_BandwidthStats verifies the bandwidth-statistics rule:
// bandwidth vocabulary plus a file or statistical cue, or a file cue plus a
// statistical cue on its own.
func TestClassify_BandwidthStats(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"bandwidth and stat", "What is the average bandwidth?"},
		{"bandwidth and file", "Show me the bandwidth in flow_bandwidth.csv"},
		{"throughput and stat", "Calculate the throughput please"},
		{"file and stat without bandwidth word", "What is the mean value in the flow file?"},
		{"data rate and max", "What was the max data rate?"},
		{"case insensitive", "AVERAGE BANDWIDTH across experiments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ClassificationBandwidthStats, Classify(tt.query))
		})
	}
}

// TestClassify_Reasoning verifies that reasoning phrases are detected and
// checked before the bandwidth rule.
func TestClassify_Reasoning(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"step by step", "Walk me through this step by step"},
		{"explain your thinking", "Explain your thinking about the results"},
		{"show your work", "Show your work for the node count"},
		{"reasoning word", "What's the reasoning behind the link failures?"},
		{"uppercase", "Please go STEP BY STEP here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ClassificationReasoning, Classify(tt.query))
		})
	}
}

// TestClassify_ReasoningWinsOverBandwidth verifies precedence: a query that
// matches both categories classifies as reasoning.
func TestClassify_ReasoningWinsOverBandwidth(t *testing.T) {
	query := "Explain your thinking: what is the average bandwidth in flow_bandwidth.csv?"
	assert.Equal(t, ClassificationReasoning, Classify(query))
}
