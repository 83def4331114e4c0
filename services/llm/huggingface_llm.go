package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var hfTracer = otel.Tracer("floodns.llm.huggingface")

const defaultHFBaseURL = "https://api-inference.huggingface.co"

// HuggingFaceClient calls the hosted inference API. The API token, when
// configured, is held encrypted in memory and only decrypted for the
// duration of each request.
type HuggingFaceClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	token      *memguard.Enclave
	limiter    *rate.Limiter
}

type hfParameters struct {
	MaxNewTokens      *int     `json:"max_new_tokens,omitempty"`
	Temperature       *float32 `json:"temperature,omitempty"`
	TopK              *int     `json:"top_k,omitempty"`
	TopP              *float32 `json:"top_p,omitempty"`
	RepetitionPenalty *float32 `json:"repetition_penalty,omitempty"`
	Stop              []string `json:"stop,omitempty"`
}

type hfGenerateRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfGenerateResponse []struct {
	GeneratedText string `json:"generated_text"`
}

type hfErrorResponse struct {
	Error string `json:"error"`
}

// NewHuggingFaceClient builds a client for the hosted inference API.
//
// MODEL_NAME must be set; there is no sensible default for a hosted model.
// HF_API_BASE_URL overrides the public endpoint for proxies and tests.
// HF_TOKEN is optional: without it requests run unauthenticated against the
// free tier. The token is moved into a memguard enclave immediately and the
// environment copy is unset.
func NewHuggingFaceClient() (*HuggingFaceClient, error) {
	model := os.Getenv("MODEL_NAME")
	if model == "" {
		return nil, fmt.Errorf("MODEL_NAME environment variable not set")
	}
	baseURL := os.Getenv("HF_API_BASE_URL")
	if baseURL == "" {
		baseURL = defaultHFBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	var token *memguard.Enclave
	if raw := os.Getenv("HF_TOKEN"); raw != "" {
		token = memguard.NewEnclave([]byte(raw))
		os.Unsetenv("HF_TOKEN")
	}

	slog.Info("Initializing Hugging Face client", "base_url", baseURL, "model", model, "authenticated", token != nil)
	return &HuggingFaceClient{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		baseURL:    baseURL,
		model:      model,
		token:      token,
		// Free-tier politeness: at most two requests per second.
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}, nil
}

// Generate implements the LLMClient interface. When the service returns the
// prompt concatenated with the completion, the echoed prompt prefix is
// stripped before the text is returned.
func (h *HuggingFaceClient) Generate(ctx context.Context, prompt string,
	params GenerationParams) (string, error) {

	ctx, span := hfTracer.Start(ctx, "HuggingFaceClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", h.model))

	if err := h.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &BackendError{Backend: "huggingface", Message: "rate limiter wait aborted", Err: err}
	}

	payload := hfGenerateRequest{
		Inputs: prompt,
		Parameters: hfParameters{
			MaxNewTokens:      params.MaxTokens,
			Temperature:       params.Temperature,
			TopK:              params.TopK,
			TopP:              params.TopP,
			RepetitionPenalty: params.RepetitionPenalty,
			Stop:              params.Stop,
		},
	}
	reqBodyBytes, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to marshal request to Hugging Face: %w", err)
	}

	generateURL := fmt.Sprintf("%s/models/%s", h.baseURL, h.model)
	req, err := http.NewRequestWithContext(ctx, "POST", generateURL, bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to create request to Hugging Face: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != nil {
		buf, err := h.token.Open()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("failed to open API token enclave: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+buf.String())
		buf.Destroy()
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Hugging Face API call failed", "error", err)
		return "", &BackendError{Backend: "huggingface", Err: err}
	}
	defer resp.Body.Close()

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &BackendError{Backend: "huggingface", Message: "failed to read response body", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		message := string(respBodyBytes)
		var errResp hfErrorResponse
		if err := json.Unmarshal(respBodyBytes, &errResp); err == nil && errResp.Error != "" {
			message = errResp.Error
		}
		slog.Error("Hugging Face returned an error", "status_code", resp.StatusCode, "response", message)
		return "", &BackendError{Backend: "huggingface", StatusCode: resp.StatusCode, Message: message}
	}

	var hfResp hfGenerateResponse
	if err := json.Unmarshal(respBodyBytes, &hfResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Failed to parse JSON response from Hugging Face", "error", err, "response", string(respBodyBytes))
		return "", &BackendError{Backend: "huggingface", Message: "failed to parse response", Err: err}
	}
	if len(hfResp) == 0 {
		return "", &BackendError{Backend: "huggingface", Message: "empty generation response"}
	}

	text := hfResp[0].GeneratedText
	if strings.HasPrefix(text, prompt) {
		text = text[len(prompt):]
	}
	slog.Debug("Received response from Hugging Face")
	return strings.TrimSpace(text), nil
}
