package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetAssistantBaseURL_Default(t *testing.T) {
	t.Setenv("FLOODNS_ASSISTANT_URL", "")
	orig := config
	defer func() { config = orig }()
	config = Config{}

	if url := getAssistantBaseURL(); url != "http://localhost:8610" {
		t.Errorf("expected default URL, got %q", url)
	}
}

func TestGetAssistantBaseURL_EnvPriority(t *testing.T) {
	t.Setenv("FLOODNS_ASSISTANT_URL", "http://env-host:9999")
	orig := config
	defer func() { config = orig }()
	config = Config{AssistantURL: "http://config-host:1111"}

	if url := getAssistantBaseURL(); url != "http://env-host:9999" {
		t.Errorf("env var must win over config file, got %q", url)
	}
}

func TestGetAssistantBaseURL_ConfigFile(t *testing.T) {
	t.Setenv("FLOODNS_ASSISTANT_URL", "")
	orig := config
	defer func() { config = orig }()
	config = Config{AssistantURL: "http://config-host:1111"}

	if url := getAssistantBaseURL(); url != "http://config-host:1111" {
		t.Errorf("expected config file URL, got %q", url)
	}
}

func TestGetJSON_DecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","service":"floodns-assistant"}`))
	}))
	defer srv.Close()

	t.Setenv("FLOODNS_ASSISTANT_URL", srv.URL)

	var health healthResponse
	if err := getJSON("/health", &health); err != nil {
		t.Fatalf("getJSON failed: %v", err)
	}
	if health.Service != "floodns-assistant" {
		t.Errorf("unexpected service name: %q", health.Service)
	}
}

func TestGetJSON_ErrorStatusIncludesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"experiment not found"}`))
	}))
	defer srv.Close()

	t.Setenv("FLOODNS_ASSISTANT_URL", srv.URL)

	err := getJSON("/v1/experiments/xyz", &map[string]any{})
	if err == nil {
		t.Fatal("expected error for 404")
	}
}
