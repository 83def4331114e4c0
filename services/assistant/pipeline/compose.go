// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"fmt"
	"strings"
)

const finalAnswerMarker = "Final Answer:"

// ComposeSources appends the provenance envelope to an answer. Every
// document that contributed context is listed, never a sample, so callers can
// audit exactly what informed the answer. Multi-experiment answers list
// experiment/file pairs; single-experiment answers list filenames plus a
// short preview of the context that was used.
func ComposeSources(answer string, bundle *ContextBundle) string {
	var sourcesInfo string
	if bundle.MultiExperiment {
		lines := make([]string, 0, len(bundle.Provenance))
		for _, entry := range bundle.Provenance {
			experiment := entry.Experiment
			if experiment == "" {
				experiment = "Unknown"
			}
			lines = append(lines, fmt.Sprintf("- %s/%s", experiment, orUnknown(entry.Filename)))
		}
		sourcesInfo = fmt.Sprintf("\nRetrieved ALL %d documents from %d experiments (%s):\n%s\n",
			bundle.DocumentCount,
			len(bundle.Experiments),
			strings.Join(bundle.Experiments, ", "),
			strings.Join(lines, "\n"))
	} else {
		lines := make([]string, 0, len(bundle.Provenance))
		previews := make([]string, 0, len(bundle.Provenance))
		for _, entry := range bundle.Provenance {
			lines = append(lines, "- "+orUnknown(entry.Filename))
			previews = append(previews, entry.Preview+"...")
		}
		sourcesInfo = fmt.Sprintf("\nRetrieved ALL %d documents from single experiment:\n%s\n\nUsed context:\n%s\n",
			bundle.DocumentCount,
			strings.Join(lines, "\n"),
			strings.Join(previews, "\n"))
	}

	return fmt.Sprintf("%s\n\n<sources>\n%s\n</sources>", answer, sourcesInfo)
}

// ComposeThinking wraps a reasoning segment ahead of the final result in a
// delimited block the presentation layer can render collapsibly.
func ComposeThinking(reasoning, result string) string {
	return fmt.Sprintf("<thinking>\n%s\n</thinking>\n\n%s", reasoning, result)
}

// SplitReasoning separates a model response into its reasoning segment and
// final result. Responses from thinking models carry explicit <think> tags;
// otherwise the "Final Answer:" marker demanded by the reasoning prompt is
// used. When neither is present the whole response is the result and the
// reasoning segment is empty.
func SplitReasoning(text string) (reasoning, result string) {
	if open := strings.Index(text, "<think>"); open >= 0 {
		if end := strings.Index(text, "</think>"); end > open {
			reasoning = strings.TrimSpace(text[open+len("<think>") : end])
			result = strings.TrimSpace(text[end+len("</think>"):])
			return reasoning, result
		}
	}

	if idx := strings.LastIndex(text, finalAnswerMarker); idx >= 0 {
		reasoning = strings.TrimSpace(text[:idx])
		result = strings.TrimSpace(text[idx+len(finalAnswerMarker):])
		return reasoning, result
	}

	return "", strings.TrimSpace(text)
}
