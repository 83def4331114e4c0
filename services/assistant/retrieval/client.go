// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval stores and retrieves simulation documents in Weaviate.
//
// The package has two layers: Client wraps the Weaviate connection with
// retry, health checking, and availability state; Store runs the typed
// document queries the answer pipeline and the ingestion path need.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// retrievalTracer is the OpenTelemetry tracer for retrieval operations.
var retrievalTracer = otel.Tracer("floodns.assistant.retrieval")

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrUnavailable is returned when Weaviate is not reachable.
	ErrUnavailable = errors.New("vector store is not available")

	// ErrClientClosed is returned when operations are called on a closed client.
	ErrClientClosed = errors.New("vector store client is closed")
)

// =============================================================================
// Connection State
// =============================================================================

// ConnectionState is the observed health of the Weaviate connection. The
// health endpoint reports it; queries themselves always attempt the call and
// degrade through the pipeline's answer policy on failure.
type ConnectionState int32

const (
	// StateConnected indicates normal operation.
	StateConnected ConnectionState = iota
	// StateDegraded indicates Weaviate is unreachable but the client keeps probing.
	StateDegraded
)

// String returns the string representation of ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// =============================================================================
// Client Configuration
// =============================================================================

// ClientConfig configures the Weaviate connection wrapper.
type ClientConfig struct {
	// URL is the Weaviate server URL (e.g., "http://localhost:8080").
	URL string

	// RetryAttempts is the number of retry attempts for failed requests.
	// Default: 3
	RetryAttempts int

	// RetryBackoff is the initial backoff duration between retries.
	// Default: 100ms
	RetryBackoff time.Duration

	// MaxRetryBackoff caps the exponential backoff.
	// Default: 5s
	MaxRetryBackoff time.Duration

	// RetryJitter adds randomness to backoff (0.0-1.0).
	// Default: 0.25
	RetryJitter float64

	// HealthCheckInterval is how often to probe health when connected.
	// Default: 15s
	HealthCheckInterval time.Duration

	// DegradedCheckInterval is how often to probe health when degraded.
	// Default: 5s
	DegradedCheckInterval time.Duration

	// HealthCheckTimeout bounds each health probe.
	// Default: 5s
	HealthCheckTimeout time.Duration

	// AllowStartDegraded allows starting even if Weaviate is unavailable.
	// Default: false
	AllowStartDegraded bool

	// Logger for client operations. Default: slog.Default()
	Logger *slog.Logger
}

// DefaultClientConfig returns the defaults used by the assistant service.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RetryAttempts:         3,
		RetryBackoff:          100 * time.Millisecond,
		MaxRetryBackoff:       5 * time.Second,
		RetryJitter:           0.25,
		HealthCheckInterval:   15 * time.Second,
		DegradedCheckInterval: 5 * time.Second,
		HealthCheckTimeout:    5 * time.Second,
		AllowStartDegraded:    false,
		Logger:                slog.Default(),
	}
}

// Validate checks if the configuration is valid.
func (c *ClientConfig) Validate() error {
	if c.URL == "" {
		return errors.New("url must not be empty")
	}
	if c.RetryAttempts < 0 {
		return errors.New("retry_attempts must be non-negative")
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		return errors.New("retry_jitter must be between 0 and 1")
	}
	if c.HealthCheckTimeout <= 0 {
		return errors.New("health_check_timeout must be positive")
	}
	return nil
}

// applyDefaults fills in zero values with defaults.
func (c *ClientConfig) applyDefaults() {
	defaults := DefaultClientConfig()
	if c.RetryAttempts == 0 {
		c.RetryAttempts = defaults.RetryAttempts
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = defaults.RetryBackoff
	}
	if c.MaxRetryBackoff == 0 {
		c.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if c.RetryJitter == 0 {
		c.RetryJitter = defaults.RetryJitter
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = defaults.HealthCheckInterval
	}
	if c.DegradedCheckInterval == 0 {
		c.DegradedCheckInterval = defaults.DegradedCheckInterval
	}
	if c.HealthCheckTimeout == 0 {
		c.HealthCheckTimeout = defaults.HealthCheckTimeout
	}
	if c.Logger == nil {
		c.Logger = defaults.Logger
	}
}

// =============================================================================
// Client
// =============================================================================

// Client wraps the Weaviate client with retry and health tracking.
//
// Thread Safety: Safe for concurrent use from multiple goroutines.
type Client struct {
	client *weaviate.Client
	config ClientConfig
	logger *slog.Logger

	state  atomic.Int32
	closed atomic.Bool

	healthCtx    context.Context
	healthCancel context.CancelFunc
	healthWg     sync.WaitGroup
}

// NewClient connects to Weaviate and starts the background health probe.
//
// When AllowStartDegraded is false an unreachable server is a startup error;
// otherwise the client starts degraded and keeps probing until the server
// appears.
func NewClient(config ClientConfig) (*Client, error) {
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg := weaviate.Config{
		Host:   config.URL,
		Scheme: "http",
	}
	if strings.HasPrefix(config.URL, "https://") {
		cfg.Scheme = "https"
		cfg.Host = strings.TrimPrefix(config.URL, "https://")
	} else if strings.HasPrefix(config.URL, "http://") {
		cfg.Host = strings.TrimPrefix(config.URL, "http://")
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	healthCtx, healthCancel := context.WithCancel(context.Background())
	c := &Client{
		client:       client,
		config:       config,
		logger:       config.Logger.With(slog.String("component", "retrieval_client")),
		healthCtx:    healthCtx,
		healthCancel: healthCancel,
	}
	c.state.Store(int32(StateDegraded))

	if err := c.checkHealth(context.Background()); err != nil {
		if !config.AllowStartDegraded {
			healthCancel()
			return nil, fmt.Errorf("weaviate not available: %w", err)
		}
		c.logger.Warn("Weaviate unavailable at startup, starting degraded",
			slog.String("url", config.URL),
			slog.String("error", err.Error()))
	} else {
		c.setState(StateConnected)
	}

	c.healthWg.Add(1)
	go c.runHealthProbe()

	c.logger.Info("Retrieval client initialized",
		slog.String("url", config.URL),
		slog.String("state", c.State().String()))
	return c, nil
}

// Weaviate returns the underlying Weaviate client for direct operations.
func (c *Client) Weaviate() *weaviate.Client {
	return c.client
}

// IsAvailable reports whether the last health probe succeeded.
func (c *Client) IsAvailable() bool {
	return c.State() == StateConnected
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Execute runs fn with retry and exponential backoff. Transient transport
// errors are retried up to RetryAttempts times; application errors surface
// immediately.
func (c *Client) Execute(ctx context.Context, operation string, fn func() error) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	ctx, span := retrievalTracer.Start(ctx, "retrieval."+operation,
		trace.WithAttributes(attribute.String("weaviate.state", c.State().String())))
	defer span.End()

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			span.AddEvent("retry", trace.WithAttributes(
				attribute.Int("attempt", attempt),
				attribute.Int64("backoff_ms", backoff.Milliseconds()),
			))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			span.SetStatus(codes.Ok, "success")
			return nil
		}
		if !isRetryable(lastErr) {
			break
		}
	}

	c.setState(StateDegraded)
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "all attempts failed")
	return fmt.Errorf("weaviate %s: %w", operation, lastErr)
}

// WaitForReady blocks until Weaviate is ready or the timeout expires.
func (c *Client) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("weaviate not ready within %v: %w", timeout, ErrUnavailable)
		case <-ticker.C:
			if c.checkHealth(ctx) == nil {
				c.setState(StateConnected)
				return nil
			}
		}
	}
}

// Close stops the health probe. Safe to call multiple times.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.logger.Info("Closing retrieval client")
	c.healthCancel()
	c.healthWg.Wait()
	return nil
}

// =============================================================================
// Internal
// =============================================================================

func (c *Client) setState(newState ConnectionState) {
	oldState := ConnectionState(c.state.Swap(int32(newState)))
	if oldState != newState {
		c.logger.Info("Retrieval connection state changed",
			slog.String("from", oldState.String()),
			slog.String("to", newState.String()))
	}
}

// checkHealth probes the Weaviate readiness endpoint with a timeout.
func (c *Client) checkHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.HealthCheckTimeout)
	defer cancel()

	ready, err := c.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if !ready {
		return ErrUnavailable
	}
	return nil
}

// runHealthProbe probes periodically, faster while degraded.
func (c *Client) runHealthProbe() {
	defer c.healthWg.Done()

	for {
		interval := c.config.HealthCheckInterval
		if c.State() == StateDegraded {
			interval = c.config.DegradedCheckInterval
		}

		select {
		case <-c.healthCtx.Done():
			return
		case <-time.After(interval):
			if c.checkHealth(c.healthCtx) == nil {
				c.setState(StateConnected)
			} else {
				c.setState(StateDegraded)
			}
		}
	}
}

// backoff returns the exponential backoff for an attempt, with jitter.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.config.RetryBackoff * time.Duration(1<<attempt)
	if d > c.config.MaxRetryBackoff {
		d = c.config.MaxRetryBackoff
	}
	jitterRange := float64(d) * c.config.RetryJitter
	d = time.Duration(float64(d) + (rand.Float64()*2-1)*jitterRange)
	if d < 0 {
		d = c.config.RetryBackoff
	}
	return d
}

// isRetryable reports whether an error looks transient. Context cancellation
// is final; timeouts and connection-level failures are retried because the
// server may be starting or restarting.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
