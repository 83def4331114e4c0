// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/JoeMat18/simulations-platform/services/assistant/datatypes"
)

// Excerpt limits by pool size. Large pools get short excerpts so the whole
// corpus still fits one prompt; small pools keep more of each file.
const (
	excerptLarge  = 400
	excerptMedium = 600
	excerptFull   = 1000

	largePoolThreshold  = 50
	mediumPoolThreshold = 20

	// csvStructuralMinLines is the line count above which a delimited file
	// is excerpted structurally (header rows + tail rows) instead of by
	// prefix truncation, so tail statistics survive the cut.
	csvStructuralMinLines = 10

	csvHeadLines = 5
	csvTailLines = 3
)

// ProvenanceEntry records one document's contribution to a context bundle.
type ProvenanceEntry struct {
	Experiment    string
	Filename      string
	ExcerptLength int
	Preview       string
}

// Label renders the entry's source label: "experiment - filename" when the
// document carried an experiment name, otherwise just the filename.
func (e ProvenanceEntry) Label() string {
	if e.Experiment != "" {
		return e.Experiment + " - " + e.Filename
	}
	return e.Filename
}

// ContextBundle is the aggregator's output: the concatenated context blob
// plus everything the prompt builder and answer composer need to describe it.
type ContextBundle struct {
	// Context is the excerpted documents joined with blank lines, in pool
	// order.
	Context string

	// Provenance records (source, excerpt length, preview) for every
	// document that contributed text, in pool order.
	Provenance []ProvenanceEntry

	// MultiExperiment is true iff the pool spans more than one experiment.
	MultiExperiment bool

	// DocumentCount is the size of the originating pool, including
	// documents whose empty text excluded them from Context.
	DocumentCount int

	// Experiments holds the distinct experiment names in first-seen order.
	Experiments []string

	// Groups holds the per-experiment file manifests used by the
	// multi-experiment prompt template.
	Groups []datatypes.ExperimentGroup
}

// Aggregate builds a ContextBundle from a document pool.
//
// Excerpt sizing is adaptive in multi-experiment mode: documents are cut to
// 400 characters when the pool holds more than 50 documents, 600 when it
// holds more than 20, and 1000 otherwise. Single-experiment pools always use
// 1000. Delimited files longer than ten lines are excerpted structurally
// (first five lines, an ellipsis marker, last three lines) rather than
// truncated, whatever their size.
//
// Returns *EmptyRetrievalError when the pool is empty; there is nothing to
// aggregate and callers must not reach a generation backend.
func Aggregate(pool datatypes.DocumentPool) (*ContextBundle, error) {
	if len(pool) == 0 {
		return nil, &EmptyRetrievalError{}
	}
	warnConflictingParams(pool)

	bundle := &ContextBundle{
		MultiExperiment: pool.IsMultiExperiment(),
		DocumentCount:   len(pool),
		Experiments:     pool.ExperimentNames(),
		Groups:          pool.GroupByExperiment(),
	}

	var sections []string
	for _, doc := range pool {
		if doc.Text == "" {
			continue
		}
		filename := doc.Filename
		if filename == "" {
			filename = "unknown file"
		}

		limit := excerptFull
		if bundle.MultiExperiment {
			limit = excerptLimit(len(pool))
		}
		excerpt := buildExcerpt(filename, doc.Text, limit)

		var section string
		if doc.ExperimentName != "" {
			section = fmt.Sprintf("From %s - %s (Parameters: %s):\n%s...",
				doc.ExperimentName, filename, doc.ExperimentParams, excerpt)
		} else {
			section = fmt.Sprintf("From %s:\n%s...", filename, excerpt)
		}
		sections = append(sections, section)

		bundle.Provenance = append(bundle.Provenance, ProvenanceEntry{
			Experiment:    doc.ExperimentName,
			Filename:      doc.Filename,
			ExcerptLength: utf8.RuneCountInString(excerpt),
			Preview:       truncateRunes(doc.Text, 100),
		})
	}
	bundle.Context = strings.Join(sections, "\n\n")

	return bundle, nil
}

// warnConflictingParams logs when documents within one experiment disagree on
// their params string. The manifest keeps the first-seen value; a mismatch
// usually means a stale chunk survived re-ingestion.
func warnConflictingParams(pool datatypes.DocumentPool) {
	seen := make(map[string]string, len(pool))
	warned := make(map[string]bool)
	for _, doc := range pool {
		if doc.ExperimentName == "" {
			continue
		}
		params, ok := seen[doc.ExperimentName]
		if !ok {
			seen[doc.ExperimentName] = doc.ExperimentParams
			continue
		}
		if params != doc.ExperimentParams && !warned[doc.ExperimentName] {
			slog.Warn("Documents disagree on experiment params, keeping first seen",
				"experiment", doc.ExperimentName,
				"kept", params,
				"ignored", doc.ExperimentParams)
			warned[doc.ExperimentName] = true
		}
	}
}

// excerptLimit picks the per-document excerpt length for multi-experiment
// pools from the pool size.
func excerptLimit(poolSize int) int {
	switch {
	case poolSize > largePoolThreshold:
		return excerptLarge
	case poolSize > mediumPoolThreshold:
		return excerptMedium
	default:
		return excerptFull
	}
}

// buildExcerpt returns the context excerpt for one document. Delimited files
// with more than csvStructuralMinLines lines keep their header and tail rows;
// everything else is a prefix of at most limit characters.
func buildExcerpt(filename, text string, limit int) string {
	if strings.HasSuffix(filename, ".csv") && strings.Contains(text, "\n") {
		lines := strings.Split(text, "\n")
		if len(lines) > csvStructuralMinLines {
			parts := make([]string, 0, csvHeadLines+1+csvTailLines)
			parts = append(parts, lines[:csvHeadLines]...)
			parts = append(parts, "...")
			parts = append(parts, lines[len(lines)-csvTailLines:]...)
			return strings.Join(parts, "\n")
		}
	}
	return truncateRunes(text, limit)
}

// truncateRunes cuts s to at most limit characters without splitting a rune.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
