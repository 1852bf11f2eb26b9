package inference

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-3.5-turbo-instruct"

// OpenAIClient sends the classification prompt to an OpenAI-compatible
// legacy completions endpoint (BaseURL + "/completions").
type OpenAIClient struct {
	client   *openai.Client
	model    string
	sampling Sampling
}

// NewOpenAIClient creates a new OpenAIClient. cfg.URL is the API base URL.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.URL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.URL, "/")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	if cfg.Sampling == (Sampling{}) {
		cfg.Sampling = DefaultSampling()
	}

	return &OpenAIClient{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    cfg.Model,
		sampling: cfg.Sampling,
	}
}

// Complete sends one completion request. It never retries.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateCompletion(ctx, openai.CompletionRequest{
		Model:            c.model,
		Prompt:           prompt,
		MaxTokens:        c.sampling.MaxTokens,
		Temperature:      float32(c.sampling.Temperature),
		TopP:             float32(c.sampling.TopP),
		FrequencyPenalty: float32(c.sampling.FrequencyPenalty),
		PresencePenalty:  float32(c.sampling.PresencePenalty),
	})
	if err != nil {
		return "", c.classify(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return "", &MalformedResponseError{Reason: "missing choices"}
	}
	text := resp.Choices[0].Text
	if strings.TrimSpace(text) == "" {
		return "", &MalformedResponseError{Reason: "empty text"}
	}
	return text, nil
}

// classify maps go-openai errors onto the inference failure kinds.
func (c *OpenAIClient) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &HTTPError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &HTTPError{Status: reqErr.HTTPStatusCode, Body: truncate(reqErr.Error(), maxErrorBody)}
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return &TransportError{Err: err}
	}
	return &MalformedResponseError{Reason: "unreadable completion", Err: err}
}
