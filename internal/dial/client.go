/*
Copyright 2026 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package dial implements the client for AI DIAL chat completion deployments.
package dial

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/llm-d-incubation/dial-relay/internal/capability"
	"github.com/llm-d-incubation/dial-relay/internal/util/logging"
	utls "github.com/llm-d-incubation/dial-relay/internal/util/tls"
)

const (
	apiKeyHeader    = "Api-Key"
	requestIDHeader = "X-Request-ID"

	modelsPath      = "/openai/models"
	completionsPath = "/openai/deployments/{model}/chat/completions"
)

// Client talks to an AI DIAL endpoint. It owns one pooled HTTP session that is
// created on first use and shared by all concurrent calls.
//
// Close must not be called while calls are in flight.
type Client struct {
	config     ClientConfig
	classifier *capability.Classifier
	tlsConfig  *tls.Config

	mu      sync.Mutex
	session *resty.Client
}

// ClientConfig holds configuration for the DIAL client
type ClientConfig struct {
	BaseURL         string        // Base URL of the DIAL deployment (e.g., "https://ai-proxy.lab.epam.com")
	APIKey          string        // Sent in the Api-Key header
	Timeout         time.Duration // Request timeout (default: 2 minutes)
	MaxIdleConns    int           // Maximum idle connections (default: 100)
	IdleConnTimeout time.Duration // Idle connection timeout (default: 90 seconds)

	// TLS configuration (optional)
	TLSInsecureSkipVerify bool   // Skip TLS certificate verification (testing only)
	TLSCACertFile         string // Path to custom CA certificate file (for private CAs)
	TLSClientCertFile     string // Path to client certificate file (for mTLS)
	TLSClientKeyFile      string // Path to client private key file (for mTLS)
	TLSMinVersion         uint16 // Minimum TLS version. Use tls.VersionTLS12, tls.VersionTLS13
	TLSMaxVersion         uint16 // Maximum TLS version (default: 0 = no max)
}

// NewClient creates a DIAL client. No connection is opened until the first call.
func NewClient(config ClientConfig, classifier *capability.Classifier) (*Client, error) {
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 100
	}
	if config.IdleConnTimeout == 0 {
		config.IdleConnTimeout = 90 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if classifier == nil {
		classifier = capability.NewDefaultClassifier()
	}

	tlsConfig, err := buildTLSConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to build TLS config: %w", err)
	}

	return &Client{
		config:     config,
		classifier: classifier,
		tlsConfig:  tlsConfig,
	}, nil
}

// getSession returns the shared session, creating it on first use.
func (c *Client) getSession() *resty.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		c.session = c.newSession()
		klog.V(logging.DEBUG).InfoS("Created DIAL session", "baseURL", c.config.BaseURL)
	}
	return c.session
}

func (c *Client) newSession() *resty.Client {
	session := resty.New().
		SetBaseURL(c.config.BaseURL).
		SetTimeout(c.config.Timeout).
		SetLogger(restyLogger{}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader(apiKeyHeader, c.config.APIKey)

	// Start with Go's secure defaults (http.DefaultTransport)
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = c.config.MaxIdleConns
	transport.MaxIdleConnsPerHost = c.config.MaxIdleConns
	transport.IdleConnTimeout = c.config.IdleConnTimeout
	if c.tlsConfig != nil {
		transport.TLSClientConfig = c.tlsConfig.Clone()
	}

	return session.SetTransport(transport)
}

// Close releases the pooled connections. It is safe to call when no call was ever made.
// A later call opens a new session.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return
	}
	c.session.GetClient().CloseIdleConnections()
	c.session = nil
	klog.V(logging.DEBUG).InfoS("Closed DIAL session", "baseURL", c.config.BaseURL)
}

// DescribeModel returns the capability profile the client uses for modelID.
func (c *Client) DescribeModel(modelID string) capability.Profile {
	return c.classifier.Classify(modelID)
}

// KnowsModel reports whether the capability tables name modelID.
func (c *Client) KnowsModel(modelID string) bool {
	return c.classifier.Known(modelID)
}

// CheckAvailability probes the model listing endpoint. Any failure yields false.
func (c *Client) CheckAvailability(ctx context.Context) bool {
	logger := klog.FromContext(ctx)

	resp, err := c.getSession().R().SetContext(ctx).Get(modelsPath)
	if err != nil {
		logger.Error(err, "DIAL availability check failed", "baseURL", c.config.BaseURL)
		return false
	}
	if resp.StatusCode() != http.StatusOK {
		logger.Info("DIAL availability check returned non-success status",
			"status", resp.StatusCode(), "baseURL", c.config.BaseURL)
		return false
	}

	var body map[string]any
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		logger.Error(err, "DIAL availability check returned malformed body", "baseURL", c.config.BaseURL)
		return false
	}

	logger.V(logging.DEBUG).Info("DIAL availability check succeeded", "baseURL", c.config.BaseURL)
	return true
}

// ListModels returns the ids of all models in the provider catalog, in provider order.
func (c *Client) ListModels(ctx context.Context) ([]string, *ClientError) {
	logger := klog.FromContext(ctx)

	resp, err := c.getSession().R().SetContext(ctx).Get(modelsPath)
	if err != nil {
		return nil, c.handleRequestError(ctx, err)
	}
	if resp.StatusCode() != http.StatusOK {
		logger.V(logging.INFO).Info("Model listing failed", "status", resp.StatusCode())
		return nil, &ClientError{
			Kind:       KindCatalog,
			HTTPStatus: resp.StatusCode(),
			Message:    fmt.Sprintf("model listing returned status %d", resp.StatusCode()),
		}
	}

	var body modelListBody
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, &ClientError{
			Kind:     KindCatalog,
			Message:  fmt.Sprintf("failed to parse model listing: %v", err),
			RawError: err,
		}
	}
	if body.Data == nil {
		return nil, &ClientError{
			Kind:    KindCatalog,
			Message: "model listing has no data field",
		}
	}

	models := make([]string, 0, len(*body.Data))
	for _, entry := range *body.Data {
		if entry.ID == "" {
			logger.V(logging.DEBUG).Info("Skipping model listing entry without id")
			continue
		}
		models = append(models, entry.ID)
	}

	logger.V(logging.DEBUG).Info("Listed models", "count", len(models))
	return models, nil
}

// Complete sends one chat completion request to the deployment of modelID.
// The request is adapted to the model's dialect; no retries are made.
func (c *Client) Complete(ctx context.Context, messages []Message, modelID string, controls GenerationControls) (*CompletionResponse, *ClientError) {
	profile := c.classifier.Classify(modelID)
	body := buildRequestBody(profile, messages, controls)
	requestID := uuid.NewString()

	logger := klog.FromContext(ctx).WithValues("requestID", requestID, "model", modelID)
	logger.V(logging.DEBUG).Info("Sending chat completion request",
		"tokenParam", profile.TokenParam, "temperature", profile.SupportsTemperature, "messages", len(messages))

	resp, err := c.getSession().R().
		SetContext(ctx).
		SetHeader(requestIDHeader, requestID).
		SetPathParam("model", modelID).
		SetBody(body).
		Post(completionsPath)
	if err != nil {
		return nil, c.handleRequestError(ctx, err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, c.handleErrorResponse(ctx, resp.StatusCode(), resp.Body())
	}

	result, cerr := parseCompletion(resp.Body())
	if cerr != nil {
		logger.V(logging.INFO).Info("Malformed chat completion response", "error", cerr.Message)
		return nil, cerr
	}
	result.RequestID = requestID
	result.Model = modelID

	logger.V(logging.DEBUG).Info("Received chat completion", "bodySize", len(resp.Body()), "usage", result.Usage)
	return result, nil
}

func parseCompletion(body []byte) (*CompletionResponse, *ClientError) {
	var parsed chatCompletionBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ClientError{
			Kind:     KindMalformedResponse,
			Message:  fmt.Sprintf("failed to parse response: %v", err),
			RawError: err,
		}
	}
	if len(parsed.Choices) == 0 {
		return nil, &ClientError{
			Kind:    KindMalformedResponse,
			Message: "response has no choices",
		}
	}
	for i, choice := range parsed.Choices {
		if choice.Message == nil || choice.Message.Content == nil {
			return nil, &ClientError{
				Kind:    KindMalformedResponse,
				Message: fmt.Sprintf("choice %d has no message content", i),
			}
		}
	}

	return &CompletionResponse{
		Text:  *parsed.Choices[0].Message.Content,
		Usage: parsed.Usage,
	}, nil
}

// handleRequestError maps transport-level failures (network, timeout, cancellation)
func (c *Client) handleRequestError(ctx context.Context, err error) *ClientError {
	logger := klog.FromContext(ctx)

	if errors.Is(ctx.Err(), context.Canceled) {
		logger.V(logging.INFO).Info("DIAL request cancelled")
		return &ClientError{
			Kind:     KindTransport,
			Message:  "request cancelled",
			RawError: err,
		}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeout(err) {
		logger.V(logging.INFO).Info("DIAL request timed out")
		return &ClientError{
			Kind:     KindTransport,
			Timeout:  true,
			Message:  "request timeout",
			RawError: err,
		}
	}

	logger.V(logging.INFO).Info("DIAL request failed with network error", "error", err.Error())
	return &ClientError{
		Kind:     KindTransport,
		Message:  fmt.Sprintf("failed to execute request: %v", err),
		RawError: err,
	}
}

// handleErrorResponse prefers the provider's error.message and falls back to the status code,
// since error bodies are not guaranteed to be JSON.
func (c *Client) handleErrorResponse(ctx context.Context, statusCode int, body []byte) *ClientError {
	message := fmt.Sprintf("status %d", statusCode)

	var errorResp errorBody
	if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
		message = errorResp.Error.Message
	}

	klog.FromContext(ctx).V(logging.INFO).Info("DIAL request failed", "status", statusCode, "message", message)

	return &ClientError{
		Kind:       KindProvider,
		HTTPStatus: statusCode,
		Message:    message,
		RawError:   fmt.Errorf("status code: %d, body: %s", statusCode, string(body)),
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// buildTLSConfig constructs a custom TLS configuration based on provided options
// Returns nil if no custom TLS config is needed (use system defaults)
func buildTLSConfig(config ClientConfig) (*tls.Config, error) {
	if !config.TLSInsecureSkipVerify &&
		config.TLSCACertFile == "" &&
		config.TLSClientCertFile == "" &&
		config.TLSClientKeyFile == "" &&
		config.TLSMinVersion == 0 &&
		config.TLSMaxVersion == 0 {
		return nil, nil
	}

	if config.TLSInsecureSkipVerify {
		klog.Warning("TLS certificate verification is disabled - this is insecure and should only be used for testing")
	}
	tlsConfig, err := utls.NewConfig(utls.SideClient, config.TLSInsecureSkipVerify, utls.Certificates{
		CertFile:   config.TLSClientCertFile,
		KeyFile:    config.TLSClientKeyFile,
		CaCertFile: config.TLSCACertFile,
	})
	if err != nil {
		return nil, err
	}
	if len(tlsConfig.Certificates) > 0 {
		klog.V(logging.INFO).Infof("Loaded client certificate from %s", config.TLSClientCertFile)
	}

	if config.TLSMinVersion != 0 {
		tlsConfig.MinVersion = config.TLSMinVersion
	}
	if config.TLSMaxVersion != 0 {
		tlsConfig.MaxVersion = config.TLSMaxVersion
	}

	return tlsConfig, nil
}

// restyLogger routes resty's internal messages to klog.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) {
	klog.ErrorDepth(1, fmt.Sprintf("resty: "+format, v...))
}

func (restyLogger) Warnf(format string, v ...interface{}) {
	klog.WarningDepth(1, fmt.Sprintf("resty: "+format, v...))
}

func (restyLogger) Debugf(format string, v ...interface{}) {
	klog.V(logging.TRACE).Infof("resty: "+format, v...)
}
