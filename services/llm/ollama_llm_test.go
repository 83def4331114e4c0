package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOllamaClient(t *testing.T, baseURL string) *OllamaClient {
	t.Helper()
	t.Setenv("OLLAMA_BASE_URL", baseURL)
	t.Setenv("MODEL_NAME", "test-model")

	client, err := NewOllamaClient()
	require.NoError(t, err)
	return client
}

func TestNewOllamaClient_Defaults(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")
	t.Setenv("MODEL_NAME", "")

	client, err := NewOllamaClient()
	require.NoError(t, err)
	assert.Equal(t, defaultOllamaBaseURL, client.baseURL)
	assert.Equal(t, defaultOllamaModel, client.model)
}

func TestNewOllamaClient_TrimsTrailingSlash(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://ollama:11434/")
	t.Setenv("MODEL_NAME", "test-model")

	client, err := NewOllamaClient()
	require.NoError(t, err)
	assert.Equal(t, "http://ollama:11434", client.baseURL)
}

func TestOllamaGenerate_Success(t *testing.T) {
	var captured ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Model:    "test-model",
			Response: "  The topology has 8 nodes.\n",
			Done:     true,
		})
	}))
	defer server.Close()

	client := newTestOllamaClient(t, server.URL)
	text, err := client.Generate(context.Background(), "How many nodes?", GenerationParams{
		Temperature: Float32(0.6),
		MaxTokens:   Int(512),
		Stop:        []string{"</answer>"},
	})

	require.NoError(t, err)
	assert.Equal(t, "The topology has 8 nodes.", text)
	assert.Equal(t, "test-model", captured.Model)
	assert.Equal(t, "How many nodes?", captured.Prompt)
	assert.False(t, captured.Stream)
	assert.InDelta(t, 0.6, captured.Options["temperature"], 0.001)
	assert.EqualValues(t, 512, captured.Options["num_predict"])
}

func TestOllamaGenerate_OmitsEmptyOptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.NotContains(t, raw, "options")
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "ok", Done: true})
	}))
	defer server.Close()

	client := newTestOllamaClient(t, server.URL)
	_, err := client.Generate(context.Background(), "question", GenerationParams{})
	require.NoError(t, err)
}

func TestOllamaGenerate_ModelNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'test-model' not found, try pulling it first"}`))
	}))
	defer server.Close()

	client := newTestOllamaClient(t, server.URL)
	_, err := client.Generate(context.Background(), "question", GenerationParams{})

	require.Error(t, err)
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, http.StatusNotFound, backendErr.StatusCode)
	assert.Contains(t, backendErr.Message, "ollama pull test-model")
}

func TestOllamaGenerate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("out of memory"))
	}))
	defer server.Close()

	client := newTestOllamaClient(t, server.URL)
	_, err := client.Generate(context.Background(), "question", GenerationParams{})

	require.Error(t, err)
	assert.True(t, IsBackendUnavailable(err))
}

func TestOllamaGenerate_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	client := newTestOllamaClient(t, server.URL)
	_, err := client.Generate(context.Background(), "question", GenerationParams{})

	require.Error(t, err)
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Contains(t, backendErr.Message, "failed to parse response")
}

func TestOllamaGenerate_ConnectionRefused(t *testing.T) {
	client := newTestOllamaClient(t, "http://127.0.0.1:1")

	_, err := client.Generate(context.Background(), "question", GenerationParams{})
	require.Error(t, err)
	assert.True(t, IsBackendUnavailable(err))
}

func TestOllamaGenerate_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := newTestOllamaClient(t, server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Generate(ctx, "question", GenerationParams{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
