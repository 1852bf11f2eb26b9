// Package inference calls the remote completion endpoint that classifies
// chat messages.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultURL     = "https://ncmb.neurochain.io/tasks/message"
	DefaultModel   = "Mistral-7B-Instruct-v0.2-GPTQ"
	DefaultTimeout = 30 * time.Second

	// maxErrorBody caps how much of a failed response body is kept for logs.
	maxErrorBody = 2048
	// maxResponseBody bounds any response read; 1024 tokens of text is far smaller.
	maxResponseBody = 1 << 20
)

// Completer performs a single completion attempt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Sampling holds the generation parameters sent with every request.
type Sampling struct {
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// DefaultSampling returns the parameters the classification prompt was tuned with.
func DefaultSampling() Sampling {
	return Sampling{
		MaxTokens:        1024,
		Temperature:      0.6,
		TopP:             0.95,
		FrequencyPenalty: 0,
		PresencePenalty:  1.1,
	}
}

// Config configures an HTTPClient.
type Config struct {
	URL      string
	APIKey   string
	Model    string
	Timeout  time.Duration
	Sampling Sampling
}

// DefaultConfig returns the Neurochain endpoint defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		URL:      DefaultURL,
		APIKey:   apiKey,
		Model:    DefaultModel,
		Timeout:  DefaultTimeout,
		Sampling: DefaultSampling(),
	}
}

type completionRequest struct {
	Model            string  `json:"model"`
	Prompt           string  `json:"prompt"`
	MaxTokens        int     `json:"max_tokens"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// HTTPClient talks to a completions endpoint that takes a bare prompt and
// answers with choices[].text.
type HTTPClient struct {
	url        string
	apiKey     string
	model      string
	sampling   Sampling
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTPClient.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Sampling == (Sampling{}) {
		cfg.Sampling = DefaultSampling()
	}
	return &HTTPClient{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		sampling:   cfg.Sampling,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Complete sends one request. It never retries.
func (c *HTTPClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model:            c.model,
		Prompt:           prompt,
		MaxTokens:        c.sampling.MaxTokens,
		Temperature:      c.sampling.Temperature,
		TopP:             c.sampling.TopP,
		FrequencyPenalty: c.sampling.FrequencyPenalty,
		PresencePenalty:  c.sampling.PresencePenalty,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", &TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &HTTPError{Status: resp.StatusCode, Body: truncate(string(respBody), maxErrorBody)}
	}

	var parsed completionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &MalformedResponseError{Reason: "invalid JSON", Err: err}
	}
	if len(parsed.Choices) == 0 {
		return "", &MalformedResponseError{Reason: "missing choices"}
	}
	text := parsed.Choices[0].Text
	if strings.TrimSpace(text) == "" {
		return "", &MalformedResponseError{Reason: "empty text"}
	}
	return text, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
