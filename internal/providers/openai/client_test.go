package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"gateway/internal/domain"
)

type recordingTransport struct {
	lastReq     *http.Request
	lastBody    []byte
	status      int
	body        string
	contentType string
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.lastReq = req
	if req.Body != nil {
		rt.lastBody, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}
	status := rt.status
	if status == 0 {
		status = http.StatusOK
	}
	contentType := rt.contentType
	if contentType == "" {
		contentType = "application/json"
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{contentType}},
		Body:       io.NopCloser(strings.NewReader(rt.body)),
	}, nil
}

func newTestClient(transport *recordingTransport) *Client {
	return NewClient(Options{
		BaseURL:    "https://api.example.com/v1",
		HTTPClient: &http.Client{Transport: transport},
	})
}

func TestCaptionBuildsMultimodalMessage(t *testing.T) {
	transport := &recordingTransport{
		body: `{"choices":[{"message":{"content":" A cat on a mat. "}}]}`,
	}
	client := newTestClient(transport)
	caption, err := client.Caption(context.Background(), "sk-test", CaptionRequest{
		Image: []byte{0x01, 0x02},
		MIME:  "image/png",
	})
	if err != nil {
		t.Fatalf("caption: %v", err)
	}
	if caption != "A cat on a mat." {
		t.Fatalf("caption = %q", caption)
	}
	if got := transport.lastReq.URL.String(); got != "https://api.example.com/v1/chat/completions" {
		t.Fatalf("url = %q", got)
	}
	if got := transport.lastReq.Header.Get("Authorization"); got != "Bearer sk-test" {
		t.Fatalf("authorization = %q", got)
	}
	var payload struct {
		Model    string `json:"model"`
		Messages []struct {
			Content []struct {
				Type     string `json:"type"`
				ImageURL *struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Messages) != 1 || len(payload.Messages[0].Content) != 2 {
		t.Fatalf("payload shape = %+v", payload)
	}
	image := payload.Messages[0].Content[1]
	if image.Type != "image_url" || image.ImageURL == nil {
		t.Fatalf("second content part = %+v, want image_url", image)
	}
	if !strings.HasPrefix(image.ImageURL.URL, "data:image/png;base64,") {
		t.Fatalf("image url = %q, want data url", image.ImageURL.URL)
	}
}

func TestCaptionWithoutKeyIsAuthError(t *testing.T) {
	client := newTestClient(&recordingTransport{})
	_, err := client.Caption(context.Background(), "  ", CaptionRequest{Image: []byte{0x1}})
	if !errors.Is(err, domain.ErrAuthMissing) {
		t.Fatalf("err = %v, want ErrAuthMissing", err)
	}
}

func TestSpeechReturnsBinaryBody(t *testing.T) {
	transport := &recordingTransport{body: "ID3mp3bytes", contentType: "audio/mpeg"}
	client := newTestClient(transport)
	audio, err := client.Speech(context.Background(), "sk-test", SpeechRequest{Text: "hello", Voice: "nova", Speed: 1.2})
	if err != nil {
		t.Fatalf("speech: %v", err)
	}
	if string(audio) != "ID3mp3bytes" {
		t.Fatalf("audio = %q", audio)
	}
	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["voice"] != "nova" || payload["input"] != "hello" {
		t.Fatalf("payload = %v", payload)
	}
	if payload["response_format"] != "mp3" {
		t.Fatalf("response_format = %v, want mp3", payload["response_format"])
	}
}

func TestSpeechFailureIsOpaque(t *testing.T) {
	transport := &recordingTransport{status: http.StatusTooManyRequests, body: `{"error":{"message":"rate limited, retry after 21s"}}`}
	client := newTestClient(transport)
	_, err := client.Speech(context.Background(), "sk-test", SpeechRequest{Text: "hello"})
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable", err)
	}
	if strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("provider error text leaked: %v", err)
	}
}

func TestGenerateImageRelaysErrorVerbatim(t *testing.T) {
	transport := &recordingTransport{status: http.StatusBadRequest, body: `{"error":{"message":"invalid size '123x45'"}}`}
	client := newTestClient(transport)
	res, err := client.GenerateImage(context.Background(), "sk-test", []byte(`{"prompt":"cat","size":"123x45"}`))
	if err != nil {
		t.Fatalf("generate image: %v", err)
	}
	if res.Status != http.StatusBadRequest {
		t.Fatalf("status = %d", res.Status)
	}
	if !strings.Contains(string(res.Body), "invalid size") {
		t.Fatalf("body = %s, want raw provider error", res.Body)
	}
	if string(transport.lastBody) != `{"prompt":"cat","size":"123x45"}` {
		t.Fatalf("payload = %s, want verbatim pass-through", transport.lastBody)
	}
}

func TestTranscribeSendsMultipartForm(t *testing.T) {
	transport := &recordingTransport{body: `{"text":"hello world"}`}
	client := newTestClient(transport)
	text, err := client.Transcribe(context.Background(), "sk-test", "clip.wav", strings.NewReader("RIFFaudio"), "")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("text = %q", text)
	}
	contentType := transport.lastReq.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		t.Fatalf("content type = %q", contentType)
	}
	body := string(transport.lastBody)
	if !strings.Contains(body, `filename="clip.wav"`) {
		t.Fatalf("form missing audio file: %s", body)
	}
	if !strings.Contains(body, `name="model"`) || !strings.Contains(body, "whisper-1") {
		t.Fatalf("form missing default model field: %s", body)
	}
}
