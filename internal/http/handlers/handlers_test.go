package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gateway/internal/http/handlers"
	"gateway/internal/http/httpapi"
	"gateway/internal/infra"
	"gateway/internal/providers/comfy"
	"gateway/internal/providers/openai"
	"gateway/internal/providers/webui"
	"gateway/internal/relay"
	"gateway/internal/secrets"
	"gateway/internal/textgen"
	"gateway/internal/workflows"
)

type fixture struct {
	api     *httptest.Server
	backend *httptest.Server
	secrets *secrets.Store
}

// newFixture wires a full router against an httptest backend standing in for
// every outbound service.
func newFixture(t *testing.T, backend http.HandlerFunc) *fixture {
	t.Helper()
	backendSrv := httptest.NewServer(backend)
	t.Cleanup(backendSrv.Close)

	dataDir := t.TempDir()
	secretStore, err := secrets.NewStore(dataDir)
	if err != nil {
		t.Fatalf("secret store: %v", err)
	}
	workflowStore, err := workflows.NewStore(dataDir + "/workflows")
	if err != nil {
		t.Fatalf("workflow store: %v", err)
	}

	logger := infra.Logger(zerolog.Nop())
	relayClient := relay.NewClient(nil, &logger)
	cfg := &infra.Config{AppEnv: "test", Port: "0"}
	app := &handlers.App{
		Config: cfg,
		Logger: &logger,
		WebUI:  webui.NewClient(relayClient),
		Comfy: comfy.NewClient(comfy.Options{
			Relay:        relayClient,
			Logger:       &logger,
			ClientID:     "test-client",
			PollInterval: time.Millisecond,
			PollBudget:   time.Second,
		}),
		OpenAI: openai.NewClient(openai.Options{
			BaseURL:    backendSrv.URL + "/v1",
			HTTPClient: backendSrv.Client(),
			Logger:     &logger,
		}),
		Secrets:   secretStore,
		Workflows: workflowStore,
		TextGen: textgen.NewLoader(textgen.Options{
			BaseURL:    backendSrv.URL + "/v1",
			Model:      "test-model",
			HTTPClient: backendSrv.Client(),
			Logger:     &logger,
		}),
	}
	apiSrv := httptest.NewServer(httpapi.NewRouter(app))
	t.Cleanup(apiSrv.Close)
	return &fixture{api: apiSrv, backend: backendSrv, secrets: secretStore}
}

func (f *fixture) postJSON(t *testing.T, path string, payload any) (*http.Response, []byte) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	resp, err := http.Post(f.api.URL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp, raw
}

func TestWebUISamplersRelaysBackendList(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sdapi/v1/samplers" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `[{"name":"Euler a"},{"name":"DPM++ 2M"}]`)
	})
	resp, body := f.postJSON(t, "/api/webui/samplers", map[string]string{"url": f.backend.URL})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	var samplers []string
	if err := json.Unmarshal(body, &samplers); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(samplers) != 2 || samplers[0] != "Euler a" {
		t.Fatalf("samplers = %v", samplers)
	}
}

func TestWebUIMalformedURLIsClientError(t *testing.T) {
	f := newFixture(t, http.NotFound)
	resp, body := f.postJSON(t, "/api/webui/models", map[string]string{"url": "not a url"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
}

func TestBackendErrorNeverYieldsPartialSuccess(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"out of memory at step 3"}`, http.StatusInternalServerError)
	})
	resp, body := f.postJSON(t, "/api/webui/generate", map[string]any{
		"url":    f.backend.URL,
		"prompt": "a cat",
	})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want opaque 500", resp.StatusCode)
	}
	if strings.Contains(string(body), "out of memory") {
		t.Fatalf("backend error leaked to caller: %s", body)
	}
	var out struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Error.Code == "" {
		t.Fatalf("expected normalized error envelope, got %s", body)
	}
}

func TestComfyGenerateEndToEnd(t *testing.T) {
	polls := 0
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/prompt":
			fmt.Fprint(w, `{"prompt_id":"abc123"}`)
		case "/history":
			polls++
			if polls < 3 {
				fmt.Fprint(w, `{}`)
				return
			}
			fmt.Fprint(w, `{"abc123":{"outputs":{"9":{"images":[{"filename":"x.png","subfolder":"","type":"output"}]}}}}`)
		case "/view":
			if got := r.URL.RawQuery; got != "filename=x.png&subfolder=&type=output" {
				t.Errorf("view query = %q", got)
			}
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte{0x89, 'P', 'N', 'G'})
		default:
			http.NotFound(w, r)
		}
	})
	resp, body := f.postJSON(t, "/api/comfy/generate", map[string]any{
		"url":      f.backend.URL,
		"workflow": map[string]any{"3": map[string]any{"class_type": "KSampler"}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	var out struct {
		Format   string `json:"format"`
		Data     string `json:"data"`
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Filename != "x.png" || out.Format != "image/png" || out.Data == "" {
		t.Fatalf("out = %+v", out)
	}
	if polls != 3 {
		t.Fatalf("polls = %d, want 3", polls)
	}
}

func TestComfyGenerateRequiresWorkflow(t *testing.T) {
	f := newFixture(t, http.NotFound)
	resp, _ := f.postJSON(t, "/api/comfy/generate", map[string]any{"url": f.backend.URL})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestOpenAIEndpointsRequireConfiguredKey(t *testing.T) {
	f := newFixture(t, http.NotFound)
	for _, path := range []string{"/api/openai/caption", "/api/openai/tts", "/api/openai/generate-image"} {
		resp, _ := f.postJSON(t, path, map[string]string{})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want 401", path, resp.StatusCode)
		}
	}
}

func TestOpenAIGenerateImagePassesErrorsThrough(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"invalid size"}}`)
	})
	if err := f.secrets.SetToken(secrets.ProviderOpenAI, "sk-test"); err != nil {
		t.Fatalf("seed key: %v", err)
	}
	resp, body := f.postJSON(t, "/api/openai/generate-image", map[string]string{"prompt": "cat"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want provider status relayed", resp.StatusCode)
	}
	if !strings.Contains(string(body), "invalid size") {
		t.Fatalf("body = %s, want raw provider error", body)
	}
}

func TestOpenAITTSRelaysBinaryAudio(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		fmt.Fprint(w, "ID3mp3bytes")
	})
	if err := f.secrets.SetToken(secrets.ProviderOpenAI, "sk-test"); err != nil {
		t.Fatalf("seed key: %v", err)
	}
	resp, body := f.postJSON(t, "/api/openai/tts", map[string]string{"text": "hello"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	if resp.Header.Get("Content-Type") != "audio/mpeg" {
		t.Fatalf("content type = %q", resp.Header.Get("Content-Type"))
	}
	if string(body) != "ID3mp3bytes" {
		t.Fatalf("body = %q", body)
	}
}

func TestOpenAITranscribeAcceptsMultipart(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"text":"hello world"}`)
	})
	if err := f.secrets.SetToken(secrets.ProviderOpenAI, "sk-test"); err != nil {
		t.Fatalf("seed key: %v", err)
	}
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, _ := form.CreateFormFile("file", "clip.wav")
	part.Write([]byte("RIFFaudio"))
	form.Close()
	resp, err := http.Post(f.api.URL+"/api/openai/transcribe", form.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "hello world") {
		t.Fatalf("body = %s", body)
	}
}

func TestWorkflowLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t, http.NotFound)

	resp, _ := f.postJSON(t, "/api/comfy/workflows/save", map[string]any{
		"name":     "portrait",
		"workflow": map[string]any{"3": map[string]any{"class_type": "KSampler"}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save status = %d", resp.StatusCode)
	}

	listResp, err := http.Get(f.api.URL + "/api/comfy/workflows")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer listResp.Body.Close()
	var names []string
	if err := json.NewDecoder(listResp.Body).Decode(&names); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(names) != 1 || names[0] != "portrait.json" {
		t.Fatalf("names = %v", names)
	}

	resp, body := f.postJSON(t, "/api/comfy/workflows/get", map[string]string{"name": "portrait"})
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "KSampler") {
		t.Fatalf("get status = %d body = %s", resp.StatusCode, body)
	}

	resp, _ = f.postJSON(t, "/api/comfy/workflows/delete", map[string]string{"name": "portrait"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp, _ = f.postJSON(t, "/api/comfy/workflows/get", map[string]string{"name": "portrait"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestWorkflowExportIsZip(t *testing.T) {
	f := newFixture(t, http.NotFound)
	f.postJSON(t, "/api/comfy/workflows/save", map[string]any{"name": "a", "workflow": map[string]any{}})
	resp, err := http.Get(f.api.URL + "/api/comfy/workflows/export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.Header.Get("Content-Type") != "application/zip" {
		t.Fatalf("content type = %q", resp.Header.Get("Content-Type"))
	}
	if len(body) < 4 || string(body[:2]) != "PK" {
		t.Fatalf("body is not a zip archive")
	}
}

func TestPromptExpandUsesPipeline(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/completions" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"choices":[{"text":"an expanded prompt"}]}`)
	})
	resp, body := f.postJSON(t, "/api/prompt/expand", map[string]any{"prompt": "  a   cat ", "max_tokens": 32})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "an expanded prompt") {
		t.Fatalf("body = %s", body)
	}
}

func TestSecretsWriteAllowedOutsideProduction(t *testing.T) {
	f := newFixture(t, http.NotFound)
	resp, _ := f.postJSON(t, "/api/secrets/write", map[string]string{"key": "openai", "value": "sk-new"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if f.secrets.Token("openai") != "sk-new" {
		t.Fatalf("secret not persisted")
	}
}
