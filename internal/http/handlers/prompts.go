package handlers

import (
	"net/http"

	"gateway/internal/providers/webui"
	"gateway/internal/textgen"
)

type expandRequest struct {
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`
}

// PromptExpand runs the prompt through the optional text-generation pipeline.
// The pipeline is built on the first call and kept for the process lifetime.
func (a *App) PromptExpand(w http.ResponseWriter, r *http.Request) {
	var req expandRequest
	if !a.decode(w, r, &req) {
		return
	}
	prompt := webui.SanitizePrompt(req.Prompt)
	if prompt == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt is required")
		return
	}
	pipeline, err := a.TextGen.Get()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	text, err := pipeline.Generate(r.Context(), prompt, textgen.SamplingParams{
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"text": text})
}
