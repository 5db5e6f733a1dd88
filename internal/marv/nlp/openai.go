package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bdobrica/marv/common/retry"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 60 * time.Second
)

// ErrEmptyCompletion is returned when the API answers successfully but
// produces no choices. Callers treat it like any other generation failure.
var ErrEmptyCompletion = errors.New("nlp: completion returned no choices")

// errTransient marks failures that may succeed on a later attempt
// (network errors, 5xx, 429). Checked via errors.Is by the retry policy.
var errTransient = errors.New("transient upstream failure")

// Config configures the OpenAI-compatible completion provider.
type Config struct {
	// APIKey is the bearer token used to authenticate against the API.
	APIKey string

	// BaseURL overrides the API endpoint. Useful for local models (Ollama)
	// or any other OpenAI-compatible endpoint. Defaults to the public
	// OpenAI endpoint when empty.
	BaseURL string

	// Timeout bounds a single completion call, including retries.
	// Defaults to 60 s.
	Timeout time.Duration

	// Retry controls backoff for transient upstream failures. Zero value
	// uses retry.DefaultConfig.
	Retry retry.Config
}

// openAIProvider implements Provider using the chat completions API.
type openAIProvider struct {
	cfg    Config
	client *http.Client
}

// New returns a Provider backed by the OpenAI (or compatible) chat API.
// The returned provider is safe for concurrent use; concurrent completions
// for the same conversation are allowed by design.
func New(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig
	}
	if cfg.Retry.ShouldRetry == nil {
		// Only transient upstream conditions are worth another attempt;
		// malformed requests and auth failures will not get better.
		cfg.Retry.ShouldRetry = func(err error) bool { return errors.Is(err, errTransient) }
	}
	return &openAIProvider{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// --- minimal chat-completions wire types ---

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model    string       `json:"model"`
	Messages []oaiMessage `json:"messages"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

// Complete sends the segments to the chat completions endpoint and returns
// the generated text. Transient failures (network errors, 5xx, 429) are
// retried with backoff inside the overall timeout.
func (p *openAIProvider) Complete(ctx context.Context, model string, segments []Segment) (string, error) {
	msgs := make([]oaiMessage, 0, len(segments))
	for _, s := range segments {
		msgs = append(msgs, oaiMessage{Role: s.Role, Content: s.Content})
	}

	data, err := json.Marshal(oaiRequest{Model: model, Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("nlp: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	var text string
	err = retry.Do(ctx, p.cfg.Retry, func() error {
		var callErr error
		text, callErr = p.call(ctx, data)
		return callErr
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// call performs one HTTP round trip.
func (p *openAIProvider) call(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("nlp: create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("nlp: http request: %w (%w)", err, errTransient)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("nlp: read response body: %w (%w)", err, errTransient)
	}

	// Overloaded upstreams answer with empty or non-JSON bodies, so status
	// classification cannot depend on the body decoding cleanly.
	var oaiResp oaiResponse
	decodeErr := json.Unmarshal(respBody, &oaiResp)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		if decodeErr == nil && oaiResp.Error != nil {
			return "", fmt.Errorf("nlp: API error (%s): %s (%w)", oaiResp.Error.Type, oaiResp.Error.Message, errTransient)
		}
		return "", fmt.Errorf("nlp: unexpected HTTP status %d (%w)", resp.StatusCode, errTransient)
	}
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && oaiResp.Error != nil {
			return "", fmt.Errorf("nlp: API error (%s): %s", oaiResp.Error.Type, oaiResp.Error.Message)
		}
		return "", fmt.Errorf("nlp: unexpected HTTP status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("nlp: decode API response: %w", decodeErr)
	}
	if oaiResp.Error != nil {
		return "", fmt.Errorf("nlp: API error (%s): %s", oaiResp.Error.Type, oaiResp.Error.Message)
	}
	if len(oaiResp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	return oaiResp.Choices[0].Message.Content, nil
}
