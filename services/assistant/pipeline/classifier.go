// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline implements the answer-generation pipeline for simulation
// experiment questions: query classification, context aggregation with
// size-adaptive excerpting, prompt construction, generation dispatch, and the
// deterministic tabular fallback used when no generative backend is reachable.
package pipeline

import "strings"

// Classification tags a query with the intent the pipeline detected.
type Classification string

const (
	// ClassificationReasoning marks queries that ask for explicit
	// step-by-step justification.
	ClassificationReasoning Classification = "reasoning"

	// ClassificationBandwidthStats marks queries about bandwidth statistics
	// over the flow_bandwidth artifacts.
	ClassificationBandwidthStats Classification = "bandwidth_statistics"

	// ClassificationGeneral is everything else.
	ClassificationGeneral Classification = "general"
)

// reasoningPhrases signal a request for visible step-by-step reasoning.
var reasoningPhrases = []string{
	"step by step",
	"explain your thinking",
	"show your work",
	"reasoning",
}

// Keyword families for the bandwidth-statistics rule.
var (
	bandwidthKeywords = []string{"bandwidth", "throughput", "speed", "data rate"}
	fileKeywords      = []string{"flow", "flow_bandwidth", "flow bandwidth", "flow_bandwidth.csv"}
	statKeywords      = []string{"average", "avg", "mean", "statistics", "calculate", "median", "min", "max"}
)

// Classify tags a query with exactly one Classification. Matching is
// case-insensitive substring containment; reasoning is checked first, so a
// query that also mentions bandwidth statistics still classifies as reasoning.
// Pure and never fails.
func Classify(query string) Classification {
	q := strings.ToLower(query)

	if containsAny(q, reasoningPhrases) {
		return ClassificationReasoning
	}
	if isBandwidthQuery(q) {
		return ClassificationBandwidthStats
	}
	return ClassificationGeneral
}

// isBandwidthQuery implements the bandwidth-statistics rule: bandwidth
// vocabulary together with either a flow-artifact cue or a statistical cue,
// or a flow-artifact cue together with a statistical cue on its own.
func isBandwidthQuery(lowered string) bool {
	bandwidthMatch := containsAny(lowered, bandwidthKeywords)
	fileMatch := containsAny(lowered, fileKeywords)
	statMatch := containsAny(lowered, statKeywords)

	return (bandwidthMatch && (fileMatch || statMatch)) || (fileMatch && statMatch)
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
