// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// multiExperimentPrompt is the template for questions spanning several
// experiments. Placeholders, in order: experiment count, experiment names,
// document count, experiment details, framework context, document count,
// context blob, user question.
const multiExperimentPrompt = `You are an AI assistant performing COMPREHENSIVE COMPARATIVE ANALYSIS across multiple network simulation experiments.

IMPORTANT: You have access to ALL simulation data from ALL selected experiments. Use this complete dataset to provide thorough comparative analysis.

**ANALYSIS SCOPE:**
- %d different experiments: %s
- %d total data files analyzed
- Complete data coverage for accurate comparison

**EXPERIMENT DETAILS:**
%s

**ANALYSIS INSTRUCTIONS:**
- Compare data across ALL experiments
- Identify patterns, differences, and performance metrics
- For "which performed best" questions, analyze all relevant metrics and provide rankings
- Extract specific numbers and statistics from the data
- Clearly identify which experiment each data point comes from

## FloodNS Framework Concepts:
%s

## COMPLETE Multi-Experiment Dataset (%d files):
%s

**User Question:** %s

**Provide comprehensive comparative analysis based on ALL available simulation data:**`

// singleExperimentPrompt is the template for questions scoped to one
// experiment's data. Placeholders, in order: document count, framework
// context, document count, context blob, user question.
const singleExperimentPrompt = `You are an AI assistant performing COMPREHENSIVE ANALYSIS of network simulation data.

IMPORTANT: You have access to ALL simulation files from this experiment. Use this complete dataset to provide thorough analysis.

**ANALYSIS SCOPE:**
- %d total data files analyzed
- Complete data coverage for accurate analysis

**ANALYSIS INSTRUCTIONS:**
- Analyze ALL available data files for comprehensive insights
- Extract specific numbers, statistics and factual information from the provided data
- If the data contains CSV content, analyze the structure and count unique entries if needed
- For node counts, count unique node IDs. For bandwidth questions, look for numerical values
- Provide detailed analysis based on ALL available simulation data

## FloodNS Framework Concepts:
%s

## COMPLETE Single-Experiment Dataset (%d files):
%s

**User Question:** %s

**Provide comprehensive analysis based on ALL available simulation data:**`

// reasoningPrompt is the template for step-by-step reasoning questions.
// The final-answer marker it demands is what SplitReasoning separates on
// when the model emits no thinking tags of its own.
const reasoningPrompt = `You are an AI assistant that explains its reasoning step by step before answering questions about network simulation data.

%s

**User Question:** %s

Think through the problem step by step, then state your final answer on a new line beginning with "Final Answer:".`

// BuildPrompt renders the generation prompt for a bundle. Pure and
// deterministic: the multi-experiment template is used iff the bundle spans
// more than one experiment, and all counts, manifests, and context come from
// the bundle alone.
func BuildPrompt(bundle *ContextBundle, frameworkContext, query string) string {
	if bundle.MultiExperiment {
		return fmt.Sprintf(multiExperimentPrompt,
			len(bundle.Experiments),
			strings.Join(bundle.Experiments, ", "),
			bundle.DocumentCount,
			experimentDetails(bundle),
			frameworkContext,
			bundle.DocumentCount,
			bundle.Context,
			query,
		)
	}
	return fmt.Sprintf(singleExperimentPrompt,
		bundle.DocumentCount,
		frameworkContext,
		bundle.DocumentCount,
		bundle.Context,
		query,
	)
}

// BuildReasoningPrompt renders the step-by-step reasoning prompt from an
// already-combined context block (framework concepts plus excerpted data).
func BuildReasoningPrompt(combinedContext, query string) string {
	return fmt.Sprintf(reasoningPrompt, combinedContext, query)
}

// experimentDetails renders one manifest line per experiment:
// name, parameter string, file count, and the sorted file list.
func experimentDetails(bundle *ContextBundle) string {
	lines := make([]string, 0, len(bundle.Groups))
	for _, g := range bundle.Groups {
		files := make([]string, len(g.Filenames))
		copy(files, g.Filenames)
		sort.Strings(files)
		lines = append(lines, fmt.Sprintf("**%s** (Parameters: %s): %d files - %s",
			g.Name, g.Params, len(files), strings.Join(files, ", ")))
	}
	return strings.Join(lines, "\n")
}
