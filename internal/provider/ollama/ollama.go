// Package ollama implements the Provider interface for Ollama.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chatdigest/internal/provider"
)

// Error definitions.
var (
	ErrConnectionFailed = errors.New("failed to connect to Ollama server")
	ErrModelNotFound    = errors.New("model not found")
	ErrInvalidResponse  = errors.New("invalid response from Ollama")
	ErrRequestTimeout   = errors.New("request timeout")
)

// OllamaProvider implements the Provider interface for Ollama.
type OllamaProvider struct {
	endpoint    string
	model       string
	keepAlive   string
	temperature float64
	httpClient  *http.Client
	log         zerolog.Logger
}

// New creates a new Ollama provider.
func New(cfg Config, log zerolog.Logger) *OllamaProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.KeepAlive == "" {
		cfg.KeepAlive = DefaultKeepAlive
	}

	return &OllamaProvider{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		model:       cfg.Model,
		keepAlive:   cfg.KeepAlive,
		temperature: cfg.Temperature,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log.With().Str("provider", Name).Logger(),
	}
}

// Name returns the provider name.
func (p *OllamaProvider) Name() string {
	return Name
}

// Model returns the default model used when a request names none.
func (p *OllamaProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request and returns the response.
func (p *OllamaProvider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	ollamaReq := p.buildRequest(req, false)
	p.log.Debug().Str("model", ollamaReq.Model).Int("messages", len(ollamaReq.Messages)).Msg("chat request")

	resp, err := p.doRequest(ctx, "/api/chat", ollamaReq)
	if err != nil {
		return nil, p.classifyError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, p.classifyError(fmt.Errorf("%w: read body: %v", ErrConnectionFailed, err))
	}

	if resp.StatusCode != http.StatusOK {
		p.log.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("error response")
		return nil, p.handleErrorResponse(resp.StatusCode, body)
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		p.log.Error().Err(err).Str("body", string(body)).Msg("failed to parse response")
		return nil, p.classifyError(ErrInvalidResponse)
	}
	if ollamaResp.Error != "" {
		return nil, p.handleErrorResponse(http.StatusOK, body)
	}

	return convertResponse(&ollamaResp), nil
}

// Stream sends a streaming chat completion request.
func (p *OllamaProvider) Stream(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	ollamaReq := p.buildRequest(req, true)

	resp, err := p.doRequest(ctx, "/api/chat", ollamaReq)
	if err != nil {
		return nil, p.classifyError(err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, p.handleErrorResponse(resp.StatusCode, body)
	}

	return ProcessStream(resp.Body, p.log), nil
}

// buildRequest converts a provider.ChatRequest to an Ollama request.
func (p *OllamaProvider) buildRequest(req provider.ChatRequest, stream bool) *ollamaRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}
	model = strings.TrimPrefix(model, Name+":")

	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.temperature
	}

	ollamaReq := &ollamaRequest{
		Model:     model,
		Messages:  make([]ollamaMessage, 0, len(req.Messages)),
		Stream:    stream,
		KeepAlive: p.keepAlive,
		Options: &ollamaOptions{
			Temperature: &temperature,
			NumPredict:  req.MaxTokens,
		},
	}
	for _, msg := range req.Messages {
		ollamaReq.Messages = append(ollamaReq.Messages, ollamaMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return ollamaReq
}

// doRequest sends an HTTP request to the Ollama API.
func (p *OllamaProvider) doRequest(ctx context.Context, path string, body any) (*http.Response, error) {
	url := p.endpoint + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr interface{ Timeout() bool }
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, ErrRequestTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return resp, nil
}

// handleErrorResponse converts an error response to a ProviderError.
func (p *OllamaProvider) handleErrorResponse(statusCode int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var errResp ollamaErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		msg = errResp.Error
	}

	code := provider.ErrCodeUnknown
	retryable := false
	switch {
	case statusCode == http.StatusNotFound:
		code = provider.ErrCodeModelNotFound
	case statusCode == http.StatusTooManyRequests:
		code, retryable = provider.ErrCodeRateLimited, true
	case statusCode >= 500:
		code, retryable = provider.ErrCodeServiceUnavailable, true
	case statusCode >= 400:
		code = provider.ErrCodeInvalidRequest
	}

	// Ollama reports oversized prompts as a plain error string, sometimes
	// with a 500 status.
	if c := provider.ClassifyMessage(msg, code); c == provider.ErrCodeContextWindowExceeded {
		code, retryable = c, false
	}

	return &provider.ProviderError{
		Code:      code,
		Message:   fmt.Sprintf("status %d: %s", statusCode, msg),
		Provider:  Name,
		Retryable: retryable,
	}
}

// convertResponse converts an Ollama response to a provider response.
func convertResponse(resp *ollamaResponse) *provider.ChatResponse {
	result := &provider.ChatResponse{
		Content:      resp.Message.Content,
		FinishReason: finishReason(resp.DoneReason),
		Usage:        usage(resp),
	}
	return result
}

func finishReason(doneReason string) string {
	if doneReason == "length" {
		return provider.FinishReasonLength
	}
	return provider.FinishReasonStop
}

// usage approximates token usage from eval counts.
func usage(resp *ollamaResponse) *provider.Usage {
	if resp.PromptEvalCount == 0 && resp.EvalCount == 0 {
		return nil
	}
	return &provider.Usage{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}
}

// Models fetches the list of available models from Ollama.
func (p *OllamaProvider) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, p.classifyError(fmt.Errorf("%w: %v", ErrConnectionFailed, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, p.handleErrorResponse(resp.StatusCode, body)
	}

	var modelsResp ollamaModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}

	models := make([]string, 0, len(modelsResp.Models))
	for _, m := range modelsResp.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

// VerifyModel checks that the configured model is pulled on the server.
// A model configured without a tag matches its ":latest" variant.
func (p *OllamaProvider) VerifyModel(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	models, err := p.Models(checkCtx)
	if err != nil {
		return err
	}
	want := p.model
	if !strings.Contains(want, ":") {
		want += ":latest"
	}
	for _, m := range models {
		if m == p.model || m == want {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not pulled on %s", ErrModelNotFound, p.model, p.endpoint)
}

// Ping checks if the Ollama server is available.
// Implements provider.HealthCheckable interface.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, p.endpoint+"/api/tags", nil)
	if err != nil {
		return provider.NewProviderError(provider.ErrCodeNetworkError, err.Error(), Name, true)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return provider.NewProviderError(provider.ErrCodeServiceUnavailable, "Ollama server is not running or unreachable", Name, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return provider.NewProviderError(provider.ErrCodeServiceUnavailable,
			fmt.Sprintf("Ollama server returned status %d", resp.StatusCode), Name, true)
	}
	return nil
}

// classifyError converts a transport error to a ProviderError with appropriate code.
// Context cancellation passes through untouched.
func (p *OllamaProvider) classifyError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, ErrConnectionFailed):
		return &provider.ProviderError{
			Code:      provider.ErrCodeServiceUnavailable,
			Message:   "cannot reach the Ollama server, make sure it is running: " + err.Error(),
			Provider:  Name,
			Retryable: true,
		}
	case errors.Is(err, ErrRequestTimeout), errors.Is(err, context.DeadlineExceeded):
		return &provider.ProviderError{
			Code:      provider.ErrCodeTimeout,
			Message:   "request timed out",
			Provider:  Name,
			Retryable: true,
		}
	case errors.Is(err, ErrInvalidResponse):
		return &provider.ProviderError{
			Code:      provider.ErrCodeInvalidRequest,
			Message:   "Ollama returned an invalid response",
			Provider:  Name,
			Retryable: false,
		}
	default:
		return &provider.ProviderError{
			Code:      provider.ErrCodeUnknown,
			Message:   err.Error(),
			Provider:  Name,
			Retryable: false,
		}
	}
}
