// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"testing"

	"github.com/JoeMat18/simulations-platform/services/assistant/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestComposeSources_MultiExperiment verifies the multi-experiment sources
// envelope lists every experiment/file pair.
func TestComposeSources_MultiExperiment(t *testing.T) {
	pool := datatypes.DocumentPool{
		{Filename: "a.csv", Text: "alpha", ExperimentName: "exp_1"},
		{Filename: "b.csv", Text: "beta", ExperimentName: "exp_2"},
	}
	bundle, err := Aggregate(pool)
	require.NoError(t, err)

	composed := ComposeSources("THE ANSWER", bundle)

	want := "THE ANSWER\n\n<sources>\n" +
		"\nRetrieved ALL 2 documents from 2 experiments (exp_1, exp_2):\n" +
		"- exp_1/a.csv\n" +
		"- exp_2/b.csv\n" +
		"\n</sources>"
	assert.Equal(t, want, composed)
}

// TestComposeSources_SingleExperiment verifies the single-experiment sources
// envelope lists filenames and context previews.
func TestComposeSources_SingleExperiment(t *testing.T) {
	pool := datatypes.DocumentPool{
		{Filename: "node_info.csv", Text: "0,host\n1,host"},
		{Filename: "link_info.csv", Text: "0,1,13.0"},
	}
	bundle, err := Aggregate(pool)
	require.NoError(t, err)

	composed := ComposeSources("THE ANSWER", bundle)

	want := "THE ANSWER\n\n<sources>\n" +
		"\nRetrieved ALL 2 documents from single experiment:\n" +
		"- node_info.csv\n" +
		"- link_info.csv\n" +
		"\nUsed context:\n" +
		"0,host\n1,host...\n" +
		"0,1,13.0...\n" +
		"\n</sources>"
	assert.Equal(t, want, composed)
}

// TestComposeThinking verifies the reasoning envelope format.
func TestComposeThinking(t *testing.T) {
	composed := ComposeThinking("first this, then that", "42 nodes")

	assert.Equal(t, "<thinking>\nfirst this, then that\n</thinking>\n\n42 nodes", composed)
}

// TestSplitReasoning_ThinkTags verifies extraction from explicit thinking
// tags emitted by reasoning models.
func TestSplitReasoning_ThinkTags(t *testing.T) {
	reasoning, result := SplitReasoning("<think>\ncount the rows\n</think>\n\nThere are 3 nodes.")

	assert.Equal(t, "count the rows", reasoning)
	assert.Equal(t, "There are 3 nodes.", result)
}

// TestSplitReasoning_FinalAnswerMarker verifies the marker-based split used
// for models without thinking tags.
func TestSplitReasoning_FinalAnswerMarker(t *testing.T) {
	reasoning, result := SplitReasoning("Step 1: count rows.\nStep 2: dedupe.\nFinal Answer: 3 nodes.")

	assert.Equal(t, "Step 1: count rows.\nStep 2: dedupe.", reasoning)
	assert.Equal(t, "3 nodes.", result)
}

// TestSplitReasoning_RepeatedMarker verifies that the split happens at the
// last marker when the reasoning itself mentions one.
func TestSplitReasoning_RepeatedMarker(t *testing.T) {
	reasoning, result := SplitReasoning("Working toward the Final Answer: step 1 counts rows.\nFinal Answer: 3 nodes.")

	assert.Equal(t, "Working toward the Final Answer: step 1 counts rows.", reasoning)
	assert.Equal(t, "3 nodes.", result)
}

// TestSplitReasoning_NoMarker verifies that unmarked responses become the
// result with no reasoning segment.
func TestSplitReasoning_NoMarker(t *testing.T) {
	reasoning, result := SplitReasoning("  Just an answer. ")

	assert.Empty(t, reasoning)
	assert.Equal(t, "Just an answer.", result)
}

// TestSplitReasoning_UnclosedThinkTag verifies that a dangling open tag
// falls through to the other strategies.
func TestSplitReasoning_UnclosedThinkTag(t *testing.T) {
	reasoning, result := SplitReasoning("<think>never closed")

	assert.Empty(t, reasoning)
	assert.Equal(t, "<think>never closed", result)
}
