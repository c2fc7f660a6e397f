package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gateway/internal/domain"
	"gateway/internal/infra"
)

// ErrMissingAPIKey indicates a call was attempted without credentials.
var ErrMissingAPIKey = fmt.Errorf("openai: %w", domain.ErrAuthMissing)

// Options configures the hosted multimodal API client.
type Options struct {
	BaseURL         string
	CaptionModel    string
	SpeechModel     string
	TranscribeModel string
	HTTPClient      *http.Client
	Logger          *infra.Logger
	RequestTimeout  time.Duration
}

// Client performs HTTP calls against a hosted multimodal API provider. The
// API key is passed per call because it lives in the secret store and can be
// rotated while the process runs.
type Client struct {
	baseURL         string
	captionModel    string
	speechModel     string
	transcribeModel string
	httpClient      *http.Client
	logger          *infra.Logger
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	captionModel := strings.TrimSpace(opts.CaptionModel)
	if captionModel == "" {
		captionModel = "gpt-4o-mini"
	}
	speechModel := strings.TrimSpace(opts.SpeechModel)
	if speechModel == "" {
		speechModel = "tts-1"
	}
	transcribeModel := strings.TrimSpace(opts.TranscribeModel)
	if transcribeModel == "" {
		transcribeModel = "whisper-1"
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.Nop())
		logger = &discard
	}
	return &Client{
		baseURL:         baseURL,
		captionModel:    captionModel,
		speechModel:     speechModel,
		transcribeModel: transcribeModel,
		httpClient:      httpClient,
		logger:          logger,
	}
}

// CaptionRequest carries one image plus an instruction for the model.
type CaptionRequest struct {
	Image  []byte
	MIME   string
	Prompt string
	Model  string
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Caption sends one image through the chat-completions endpoint and returns
// the model's description of it.
func (c *Client) Caption(ctx context.Context, apiKey string, req CaptionRequest) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", ErrMissingAPIKey
	}
	if len(req.Image) == 0 {
		return "", fmt.Errorf("%w: image is required", domain.ErrClientInput)
	}
	mime := strings.TrimSpace(req.MIME)
	if mime == "" {
		mime = "image/jpeg"
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = "Describe this image in detail."
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.captionModel
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(req.Image))
	payload := chatRequest{
		Model:     model,
		MaxTokens: 500,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageRef{URL: dataURL}},
			},
		}},
	}
	var decoded chatResponse
	if err := c.postJSON(ctx, apiKey, "/chat/completions", payload, &decoded); err != nil {
		return "", err
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%w: chat completion returned no choices", domain.ErrBackendUnavailable)
	}
	caption := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if caption == "" {
		return "", fmt.Errorf("%w: chat completion returned empty content", domain.ErrBackendUnavailable)
	}
	return caption, nil
}

// SpeechRequest carries the text to synthesize and voice parameters.
type SpeechRequest struct {
	Text  string
	Voice string
	Speed float64
	Model string
}

type speechPayload struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed,omitempty"`
	ResponseFormat string  `json:"response_format"`
}

// Speech synthesizes the text and returns the MP3 bytes.
func (c *Client) Speech(ctx context.Context, apiKey string, req SpeechRequest) ([]byte, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", domain.ErrClientInput)
	}
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = "alloy"
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.speechModel
	}
	payload := speechPayload{Model: model, Input: text, Voice: voice, Speed: req.Speed, ResponseFormat: "mp3"}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: encode speech request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/speech", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error().Err(err).Msg("openai: speech request failed")
		return nil, fmt.Errorf("%w: audio/speech", domain.ErrBackendUnavailable)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: audio/speech", domain.ErrBackendUnavailable)
	}
	if resp.StatusCode >= 300 {
		c.logStatus("audio/speech", resp.StatusCode, body)
		return nil, fmt.Errorf("%w: audio/speech returned status %d", domain.ErrBackendUnavailable, resp.StatusCode)
	}
	return body, nil
}

// ImageResult is the unfiltered provider response for image generation.
type ImageResult struct {
	Status int
	Body   []byte
}

// GenerateImage forwards the caller's payload to the image-generation
// endpoint verbatim. Unlike every other call, a provider error is returned
// to the caller with its raw status and body: the provider's validation
// messages are the only useful diagnostic for a rejected payload.
func (c *Client) GenerateImage(ctx context.Context, apiKey string, payload []byte) (*ImageResult, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/generations", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error().Err(err).Msg("openai: image generation request failed")
		return nil, fmt.Errorf("%w: images/generations", domain.ErrBackendUnavailable)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: images/generations", domain.ErrBackendUnavailable)
	}
	if resp.StatusCode >= 300 {
		c.logStatus("images/generations", resp.StatusCode, body)
	}
	return &ImageResult{Status: resp.StatusCode, Body: body}, nil
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads an audio file as a multipart form and returns the
// transcript text.
func (c *Client) Transcribe(ctx context.Context, apiKey, filename string, audio io.Reader, model string) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", ErrMissingAPIKey
	}
	if audio == nil {
		return "", fmt.Errorf("%w: audio file is required", domain.ErrClientInput)
	}
	if strings.TrimSpace(model) == "" {
		model = c.transcribeModel
	}
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("openai: build form: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("openai: copy audio: %w", err)
	}
	if err := form.WriteField("model", model); err != nil {
		return "", fmt.Errorf("openai: build form: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("openai: build form: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error().Err(err).Msg("openai: transcription request failed")
		return "", fmt.Errorf("%w: audio/transcriptions", domain.ErrBackendUnavailable)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: audio/transcriptions", domain.ErrBackendUnavailable)
	}
	if resp.StatusCode >= 300 {
		c.logStatus("audio/transcriptions", resp.StatusCode, body)
		return "", fmt.Errorf("%w: audio/transcriptions returned status %d", domain.ErrBackendUnavailable, resp.StatusCode)
	}
	var decoded transcriptionResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("%w: audio/transcriptions returned malformed response", domain.ErrBackendUnavailable)
	}
	return decoded.Text, nil
}

func (c *Client) postJSON(ctx context.Context, apiKey, path string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("openai: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		c.logger.Error().Err(err).Str("path", path).Msg("openai: request failed")
		return fmt.Errorf("%w: %s", domain.ErrBackendUnavailable, path)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrBackendUnavailable, path)
	}
	if resp.StatusCode >= 300 {
		c.logStatus(path, resp.StatusCode, body)
		return fmt.Errorf("%w: %s returned status %d", domain.ErrBackendUnavailable, path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s returned malformed response", domain.ErrBackendUnavailable, path)
	}
	return nil
}

func (c *Client) logStatus(path string, status int, body []byte) {
	detail := string(body)
	if len(detail) > 512 {
		detail = detail[:512]
	}
	c.logger.Error().Int("status", status).Str("path", path).Str("body", detail).Msg("openai: provider error")
}
