package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"gateway/internal/domain"
)

type stubTransport struct {
	lastBody []byte
	status   int
	body     string
}

func (st *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	st.lastBody, _ = io.ReadAll(req.Body)
	req.Body.Close()
	status := st.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(st.body)),
	}, nil
}

func TestGenerateSendsSamplingParams(t *testing.T) {
	transport := &stubTransport{body: `{"choices":[{"text":"  an expanded prompt  "}]}`}
	loader := NewLoader(Options{
		BaseURL:    "http://localhost:5000/v1",
		Model:      "local-model",
		HTTPClient: &http.Client{Transport: transport},
	})
	pipeline, err := loader.Get()
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	text, err := pipeline.Generate(context.Background(), "a cat", SamplingParams{Temperature: 0.7, TopP: 0.9, MaxTokens: 64})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "an expanded prompt" {
		t.Fatalf("text = %q", text)
	}
	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["model"] != "local-model" || payload["prompt"] != "a cat" {
		t.Fatalf("payload = %v", payload)
	}
	if payload["temperature"] != 0.7 || payload["top_p"] != 0.9 || payload["max_tokens"] != float64(64) {
		t.Fatalf("sampling params = %v", payload)
	}
}

func TestGenerateFailureIsNormalized(t *testing.T) {
	transport := &stubTransport{status: http.StatusServiceUnavailable, body: "model loading"}
	loader := NewLoader(Options{
		BaseURL:    "http://localhost:5000/v1",
		Model:      "local-model",
		HTTPClient: &http.Client{Transport: transport},
	})
	pipeline, _ := loader.Get()
	_, err := pipeline.Generate(context.Background(), "a cat", SamplingParams{})
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable", err)
	}
}

func TestLoaderBuildsExactlyOnce(t *testing.T) {
	var builds int32
	loader := &Loader{build: func() (*Pipeline, error) {
		atomic.AddInt32(&builds, 1)
		return newPipeline(Options{BaseURL: "http://localhost:5000/v1", Model: "m"})
	}}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := loader.Get(); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := atomic.LoadInt32(&builds); got != 1 {
		t.Fatalf("builds = %d, want 1", got)
	}
}

func TestLoaderCachesBuildError(t *testing.T) {
	loader := NewLoader(Options{BaseURL: "", Model: ""})
	if _, err := loader.Get(); err == nil {
		t.Fatalf("expected build error for empty options")
	}
	if _, err := loader.Get(); err == nil {
		t.Fatalf("expected cached build error on second call")
	}
}
