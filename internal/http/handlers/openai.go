package handlers

import (
	"encoding/base64"
	"io"
	"net/http"

	"gateway/internal/providers/openai"
	"gateway/internal/secrets"
)

const maxAudioUpload = 32 << 20

func (a *App) openAIKey(w http.ResponseWriter) (string, bool) {
	key := a.Secrets.Token(secrets.ProviderOpenAI)
	if key == "" {
		a.error(w, http.StatusUnauthorized, "auth_missing", "api key not configured")
		return "", false
	}
	return key, true
}

type captionRequest struct {
	Image  string `json:"image"`
	MIME   string `json:"mime"`
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

func (a *App) OpenAICaption(w http.ResponseWriter, r *http.Request) {
	key, ok := a.openAIKey(w)
	if !ok {
		return
	}
	var req captionRequest
	if !a.decode(w, r, &req) {
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil || len(image) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "image must be base64 encoded")
		return
	}
	caption, err := a.OpenAI.Caption(r.Context(), key, openai.CaptionRequest{
		Image:  image,
		MIME:   req.MIME,
		Prompt: req.Prompt,
		Model:  req.Model,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"caption": caption})
}

type ttsRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
	Model string  `json:"model"`
}

func (a *App) OpenAITTS(w http.ResponseWriter, r *http.Request) {
	key, ok := a.openAIKey(w)
	if !ok {
		return
	}
	var req ttsRequest
	if !a.decode(w, r, &req) {
		return
	}
	audio, err := a.OpenAI.Speech(r.Context(), key, openai.SpeechRequest{
		Text:  req.Text,
		Voice: req.Voice,
		Speed: req.Speed,
		Model: req.Model,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

// OpenAIGenerateImage forwards the request body to the provider verbatim
// and relays whatever comes back, status included. This is the one endpoint
// that exposes raw provider errors: payload validation messages are the only
// useful diagnostic for callers hand-building generation parameters.
func (a *App) OpenAIGenerateImage(w http.ResponseWriter, r *http.Request) {
	key, ok := a.openAIKey(w)
	if !ok {
		return
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable payload")
		return
	}
	res, err := a.OpenAI.GenerateImage(r.Context(), key, payload)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.Status)
	_, _ = w.Write(res.Body)
}

func (a *App) OpenAITranscribe(w http.ResponseWriter, r *http.Request) {
	key, ok := a.openAIKey(w)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "multipart form expected")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "audio file is required")
		return
	}
	defer file.Close()
	text, err := a.OpenAI.Transcribe(r.Context(), key, header.Filename, file, r.FormValue("model"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"text": text})
}
