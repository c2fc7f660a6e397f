package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gateway/internal/domain"
	"gateway/internal/infra"
)

// SamplingParams tunes text generation for one call.
type SamplingParams struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Pipeline generates text against an OpenAI-compatible completions endpoint.
// It is a heavyweight optional subsystem: construction validates config and
// allocates the transport, so callers go through a Loader that builds it on
// first use and retains it for the process lifetime.
type Pipeline struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     *infra.Logger
}

// Options configures the pipeline. KeyFunc, when set, is consulted at build
// time so a key written to the secret store before the first call is picked
// up.
type Options struct {
	BaseURL    string
	Model      string
	APIKey     string
	KeyFunc    func() string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

func newPipeline(opts Options) (*Pipeline, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("textgen: base url is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, fmt.Errorf("textgen: model is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.Nop())
		logger = &discard
	}
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" && opts.KeyFunc != nil {
		apiKey = strings.TrimSpace(opts.KeyFunc())
	}
	return &Pipeline{
		baseURL:    baseURL,
		model:      model,
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type completionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// Generate produces text for the prompt with the given sampling parameters.
func (p *Pipeline) Generate(ctx context.Context, prompt string, params SamplingParams) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("%w: prompt is required", domain.ErrClientInput)
	}
	payload := completionRequest{
		Model:       p.model,
		Prompt:      prompt,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		MaxTokens:   params.MaxTokens,
	}
	if payload.MaxTokens <= 0 {
		payload.MaxTokens = 200
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("textgen: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/completions", bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("textgen: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Error().Err(err).Msg("textgen: request failed")
		return "", fmt.Errorf("%w: completions", domain.ErrBackendUnavailable)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: completions", domain.ErrBackendUnavailable)
	}
	if resp.StatusCode >= 300 {
		p.logger.Error().Int("status", resp.StatusCode).Msg("textgen: provider error")
		return "", fmt.Errorf("%w: completions returned status %d", domain.ErrBackendUnavailable, resp.StatusCode)
	}
	var decoded completionResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("%w: completions returned malformed response", domain.ErrBackendUnavailable)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%w: completions returned no choices", domain.ErrBackendUnavailable)
	}
	return strings.TrimSpace(decoded.Choices[0].Text), nil
}

// Loader builds the pipeline on first use and caches the handle for the
// process lifetime. There is no eviction: a failed build is also cached,
// matching the lifecycle of an optional subsystem that either comes up at
// first call or stays down.
type Loader struct {
	once     sync.Once
	build    func() (*Pipeline, error)
	pipeline *Pipeline
	err      error
}

// NewLoader wraps the options in a lazy constructor.
func NewLoader(opts Options) *Loader {
	return &Loader{build: func() (*Pipeline, error) { return newPipeline(opts) }}
}

// Get returns the cached pipeline, building it on the first call.
func (l *Loader) Get() (*Pipeline, error) {
	l.once.Do(func() {
		l.pipeline, l.err = l.build()
	})
	return l.pipeline, l.err
}
