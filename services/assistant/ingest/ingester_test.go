// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

type fakeVectorWriter struct {
	ensureCalls int
	ensureErr   error
	imported    []*models.Object
	importErr   error
	deleted     []string
	deleteN     int64
	deleteErr   error
}

func (f *fakeVectorWriter) EnsureSchema(context.Context) error {
	f.ensureCalls++
	return f.ensureErr
}

func (f *fakeVectorWriter) ImportBatch(_ context.Context, objects []*models.Object) (int, error) {
	if f.importErr != nil {
		return 0, f.importErr
	}
	f.imported = append(f.imported, objects...)
	return len(objects), nil
}

func (f *fakeVectorWriter) DeleteExperiment(_ context.Context, name string) (int64, error) {
	f.deleted = append(f.deleted, name)
	return f.deleteN, f.deleteErr
}

type fakeDocEmbedder struct {
	err   error
	calls int
}

func (f *fakeDocEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 0.5}
	}
	return out, nil
}

// newRunDir builds a minimal simulation output tree.
func newRunDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "logs_floodns"), 0o755))

	write := func(rel, content string) {
		t.Helper()
		require.NoError(t, os.WriteFile(filepath.Join(dir, rel), []byte(content), 0o644))
	}
	write("node_info.csv", "0,host\n1,host\n2,switch")
	write(filepath.Join("logs_floodns", "flow_info.csv"), "0,0,1,100.0\n1,1,2,250.0")
	write("run.properties", "seed=42\nrouting=ecmp")
	write("finished.txt", "Yes")
	write("topology.png", "\x89PNG")
	return dir
}

func filenamesOf(objects []*models.Object) []string {
	var names []string
	for _, obj := range objects {
		props := obj.Properties.(map[string]interface{})
		names = append(names, props["filename"].(string))
	}
	return names
}

func TestIngestRunDir_WalksAndImports(t *testing.T) {
	store := &fakeVectorWriter{deleteN: 7}
	embedder := &fakeDocEmbedder{}
	ing := NewIngester(store, embedder)

	result, err := ing.IngestRunDir(context.Background(), Request{
		RunDir:           newRunDir(t),
		ExperimentName:   "exp_a",
		ExperimentParams: "5,4,2,ecmp,42",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, store.ensureCalls)
	assert.Equal(t, []string{"exp_a"}, store.deleted)
	assert.Equal(t, int64(7), result.Replaced)
	assert.Equal(t, 3, result.Files)
	assert.Equal(t, result.Chunks, result.Imported)
	assert.Len(t, store.imported, result.Chunks)
	assert.Equal(t, 1, embedder.calls)

	names := filenamesOf(store.imported)
	assert.Contains(t, names, "node_info.csv")
	assert.Contains(t, names, "logs_floodns/flow_info.csv")
	assert.Contains(t, names, "run.properties")
	assert.NotContains(t, names, "finished.txt")
	assert.NotContains(t, names, "topology.png")

	for _, obj := range store.imported {
		assert.Equal(t, "SimulationDocument", obj.Class)
		assert.NotEmpty(t, obj.ID)
		assert.NotEmpty(t, obj.Vector)

		props := obj.Properties.(map[string]interface{})
		assert.Equal(t, "exp_a", props["experiment_name"])
		assert.Equal(t, "5,4,2,ecmp,42", props["experiment_params"])
		assert.NotEmpty(t, props["text"])
		assert.Len(t, props["content_hash"], 64)
	}
}

func TestIngestRunDir_SingleCorpusSkipsDelete(t *testing.T) {
	store := &fakeVectorWriter{}
	ing := NewIngester(store, &fakeDocEmbedder{})

	_, err := ing.IngestRunDir(context.Background(), Request{RunDir: newRunDir(t)})
	require.NoError(t, err)

	assert.Empty(t, store.deleted)
	for _, obj := range store.imported {
		props := obj.Properties.(map[string]interface{})
		assert.Equal(t, "", props["experiment_name"])
	}
}

func TestIngestRunDir_EmptyDirectory(t *testing.T) {
	store := &fakeVectorWriter{}
	ing := NewIngester(store, &fakeDocEmbedder{})

	result, err := ing.IngestRunDir(context.Background(), Request{RunDir: t.TempDir()})
	require.NoError(t, err)
	assert.Zero(t, result.Files)
	assert.Zero(t, result.Chunks)
	assert.Empty(t, store.imported)
}

func TestIngestRunDir_MissingDirectory(t *testing.T) {
	ing := NewIngester(&fakeVectorWriter{}, nil)

	_, err := ing.IngestRunDir(context.Background(), Request{
		RunDir: filepath.Join(t.TempDir(), "gone"),
	})
	require.ErrorIs(t, err, ErrInvalidRunDir)
}

func TestIngestRunDir_TraversalRejected(t *testing.T) {
	ing := NewIngester(&fakeVectorWriter{}, nil)

	_, err := ing.IngestRunDir(context.Background(), Request{RunDir: "../../etc"})
	require.ErrorIs(t, err, ErrInvalidRunDir)
	assert.Contains(t, err.Error(), "invalid run directory")
}

func TestIngestRunDir_EmbedderFailure(t *testing.T) {
	store := &fakeVectorWriter{}
	ing := NewIngester(store, &fakeDocEmbedder{err: errors.New("embedding service down")})

	_, err := ing.IngestRunDir(context.Background(), Request{
		RunDir:         newRunDir(t),
		ExperimentName: "exp_a",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding service down")
	assert.Empty(t, store.imported)
	assert.Empty(t, store.deleted)
}

func TestIngestRunDir_NoEmbedderImportsWithoutVectors(t *testing.T) {
	store := &fakeVectorWriter{}
	ing := NewIngester(store, nil)

	result, err := ing.IngestRunDir(context.Background(), Request{RunDir: newRunDir(t)})
	require.NoError(t, err)
	require.NotEmpty(t, store.imported)
	assert.Equal(t, result.Chunks, result.Imported)
	for _, obj := range store.imported {
		assert.Empty(t, obj.Vector)
	}
}

func TestIngestRunDir_IdsStableAcrossRuns(t *testing.T) {
	dir := newRunDir(t)

	first := &fakeVectorWriter{}
	_, err := NewIngester(first, nil).IngestRunDir(context.Background(), Request{
		RunDir:         dir,
		ExperimentName: "exp_a",
	})
	require.NoError(t, err)

	second := &fakeVectorWriter{}
	_, err = NewIngester(second, nil).IngestRunDir(context.Background(), Request{
		RunDir:         dir,
		ExperimentName: "exp_a",
	})
	require.NoError(t, err)

	require.Equal(t, len(first.imported), len(second.imported))
	for i := range first.imported {
		assert.Equal(t, first.imported[i].ID, second.imported[i].ID)
	}
}

func TestChunkID_Deterministic(t *testing.T) {
	idA, hashA := chunkID("exp_a", "node_info.csv", 0)
	idB, hashB := chunkID("exp_a", "node_info.csv", 0)
	assert.Equal(t, idA, idB)
	assert.Equal(t, hashA, hashB)

	idC, _ := chunkID("exp_a", "node_info.csv", 1)
	assert.NotEqual(t, idA, idC)

	idD, _ := chunkID("exp_b", "node_info.csv", 0)
	assert.NotEqual(t, idA, idD)
}
