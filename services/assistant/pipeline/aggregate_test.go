// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/JoeMat18/simulations-platform/services/assistant/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// multiPool builds a pool of n documents spread across two experiments, each
// with a long plain-text body.
func multiPool(n int) datatypes.DocumentPool {
	pool := make(datatypes.DocumentPool, 0, n)
	for i := 0; i < n; i++ {
		exp := "exp_a"
		if i%2 == 1 {
			exp = "exp_b"
		}
		pool = append(pool, datatypes.Document{
			Filename:         fmt.Sprintf("file_%d.txt", i),
			Text:             strings.Repeat("x", 2000),
			ExperimentName:   exp,
			ExperimentParams: "2,4,2,ecmp,0",
		})
	}
	return pool
}

// TestAggregate_EmptyPool verifies that an empty pool yields the typed
// empty-retrieval error and no bundle.
func TestAggregate_EmptyPool(t *testing.T) {
	bundle, err := Aggregate(nil)

	assert.Nil(t, bundle)
	require.Error(t, err)
	assert.True(t, IsEmptyRetrieval(err))
}

// TestAggregate_ExcerptThresholds verifies the size-adaptive excerpt table
// at its boundaries for multi-experiment pools.
func TestAggregate_ExcerptThresholds(t *testing.T) {
	tests := []struct {
		name       string
		poolSize   int
		wantLength int
	}{
		{"51 documents use 400", 51, 400},
		{"50 documents use 600", 50, 600},
		{"21 documents use 600", 21, 600},
		{"20 documents use 1000", 20, 1000},
		{"3 documents use 1000", 3, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bundle, err := Aggregate(multiPool(tt.poolSize))
			require.NoError(t, err)
			require.True(t, bundle.MultiExperiment)

			for _, entry := range bundle.Provenance {
				assert.Equal(t, tt.wantLength, entry.ExcerptLength)
			}
		})
	}
}

// TestAggregate_SingleExperimentAlwaysFullExcerpt verifies that pools
// without multiple experiments keep the full 1000-character excerpt even
// when large.
func TestAggregate_SingleExperimentAlwaysFullExcerpt(t *testing.T) {
	pool := make(datatypes.DocumentPool, 0, 60)
	for i := 0; i < 60; i++ {
		pool = append(pool, datatypes.Document{
			Filename: fmt.Sprintf("file_%d.txt", i),
			Text:     strings.Repeat("y", 2000),
		})
	}

	bundle, err := Aggregate(pool)
	require.NoError(t, err)
	assert.False(t, bundle.MultiExperiment)

	for _, entry := range bundle.Provenance {
		assert.Equal(t, 1000, entry.ExcerptLength)
	}
}

// TestAggregate_StructuralCSVExcerpt verifies that delimited files longer
// than ten lines keep their first five and last three lines around an
// ellipsis marker instead of being truncated.
func TestAggregate_StructuralCSVExcerpt(t *testing.T) {
	var lines []string
	for i := 0; i < 15; i++ {
		lines = append(lines, fmt.Sprintf("row%d,1,2", i))
	}
	pool := datatypes.DocumentPool{
		{Filename: "flow_bandwidth.csv", Text: strings.Join(lines, "\n"), ExperimentName: "exp_a"},
		{Filename: "other.csv", Text: strings.Join(lines, "\n"), ExperimentName: "exp_b"},
	}

	bundle, err := Aggregate(pool)
	require.NoError(t, err)

	wantExcerpt := strings.Join([]string{
		"row0,1,2", "row1,1,2", "row2,1,2", "row3,1,2", "row4,1,2",
		"...",
		"row12,1,2", "row13,1,2", "row14,1,2",
	}, "\n")
	assert.Contains(t, bundle.Context, "From exp_a - flow_bandwidth.csv (Parameters: ):\n"+wantExcerpt+"...")
}

// TestAggregate_ShortCSVUsesTruncation verifies that short delimited files
// fall back to plain prefix truncation.
func TestAggregate_ShortCSVUsesTruncation(t *testing.T) {
	text := "a,1\nb,2\nc,3"
	pool := datatypes.DocumentPool{
		{Filename: "node_info.csv", Text: text},
	}

	bundle, err := Aggregate(pool)
	require.NoError(t, err)
	assert.Contains(t, bundle.Context, "From node_info.csv:\n"+text+"...")
}

// TestAggregate_SectionLabels verifies the context label formats for
// experiment-labeled and unlabeled documents.
func TestAggregate_SectionLabels(t *testing.T) {
	pool := datatypes.DocumentPool{
		{Filename: "a.txt", Text: "alpha", ExperimentName: "exp_a", ExperimentParams: "1,4,2,ecmp,7"},
		{Filename: "b.txt", Text: "beta", ExperimentName: "exp_b"},
		{Filename: "c.txt", Text: "gamma"},
	}

	bundle, err := Aggregate(pool)
	require.NoError(t, err)

	sections := strings.Split(bundle.Context, "\n\n")
	require.Len(t, sections, 3)
	assert.Equal(t, "From exp_a - a.txt (Parameters: 1,4,2,ecmp,7):\nalpha...", sections[0])
	assert.Equal(t, "From exp_b - b.txt (Parameters: ):\nbeta...", sections[1])
	assert.Equal(t, "From c.txt:\ngamma...", sections[2])
}

// TestAggregate_SkipsEmptyTextButCountsIt verifies that documents with empty
// text are excluded from context and provenance while still counting toward
// the pool size the prompt reports.
func TestAggregate_SkipsEmptyTextButCountsIt(t *testing.T) {
	pool := datatypes.DocumentPool{
		{Filename: "a.txt", Text: "alpha", ExperimentName: "exp_a"},
		{Filename: "empty.txt", Text: "", ExperimentName: "exp_b"},
		{Filename: "c.txt", Text: "gamma", ExperimentName: "exp_b"},
	}

	bundle, err := Aggregate(pool)
	require.NoError(t, err)

	assert.Equal(t, 3, bundle.DocumentCount)
	assert.Len(t, bundle.Provenance, 2)
	assert.NotContains(t, bundle.Context, "empty.txt")
}

// TestAggregate_BundleMetadata verifies experiment names, groups, and
// previews are carried on the bundle in pool order.
func TestAggregate_BundleMetadata(t *testing.T) {
	pool := datatypes.DocumentPool{
		{Filename: "b.csv", Text: strings.Repeat("z", 300), ExperimentName: "exp_b", ExperimentParams: "8,8,8,ilp_solver,1"},
		{Filename: "a.csv", Text: "short", ExperimentName: "exp_a"},
		{Filename: "b2.csv", Text: "tail", ExperimentName: "exp_b"},
	}

	bundle, err := Aggregate(pool)
	require.NoError(t, err)

	assert.Equal(t, []string{"exp_b", "exp_a"}, bundle.Experiments)
	require.Len(t, bundle.Groups, 2)
	assert.Equal(t, "exp_b", bundle.Groups[0].Name)
	assert.Equal(t, "8,8,8,ilp_solver,1", bundle.Groups[0].Params)
	assert.Equal(t, []string{"b.csv", "b2.csv"}, bundle.Groups[0].Filenames)

	require.Len(t, bundle.Provenance, 3)
	assert.Equal(t, strings.Repeat("z", 100), bundle.Provenance[0].Preview)
	assert.Equal(t, "short", bundle.Provenance[1].Preview)
	assert.Equal(t, "exp_b - b.csv", bundle.Provenance[0].Label())
}

// TestAggregate_WarnsOnConflictingParams verifies that documents disagreeing
// on one experiment's params log a warning and the first-seen value wins.
func TestAggregate_WarnsOnConflictingParams(t *testing.T) {
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(orig)

	pool := datatypes.DocumentPool{
		{Filename: "a.csv", Text: "x", ExperimentName: "exp_a", ExperimentParams: "2,4,2,ecmp,0"},
		{Filename: "b.csv", Text: "y", ExperimentName: "exp_a", ExperimentParams: "8,8,8,ecmp,0"},
	}

	bundle, err := Aggregate(pool)
	require.NoError(t, err)

	require.Len(t, bundle.Groups, 1)
	assert.Equal(t, "2,4,2,ecmp,0", bundle.Groups[0].Params)
	assert.Contains(t, buf.String(), "disagree on experiment params")
}

// TestAggregate_NoWarningWhenParamsAgree verifies consistent pools stay quiet.
func TestAggregate_NoWarningWhenParamsAgree(t *testing.T) {
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(orig)

	_, err := Aggregate(multiPool(4))
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "disagree")
}
