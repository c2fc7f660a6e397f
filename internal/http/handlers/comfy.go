package handlers

import (
	"encoding/json"
	"net/http"
)

func (a *App) ComfyPing(w http.ResponseWriter, r *http.Request) {
	var req backendRequest
	if !a.decode(w, r, &req) {
		return
	}
	target, err := req.target()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.Comfy.Ping(r.Context(), target); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

type comfyGenerateRequest struct {
	backendRequest
	Workflow json.RawMessage `json:"workflow"`
}

// ComfyGenerate runs the full submit/poll/fetch flow and relays the first
// generated image as base64 text.
func (a *App) ComfyGenerate(w http.ResponseWriter, r *http.Request) {
	var req comfyGenerateRequest
	if !a.decode(w, r, &req) {
		return
	}
	if len(req.Workflow) == 0 || !json.Valid(req.Workflow) {
		a.error(w, http.StatusBadRequest, "bad_request", "workflow is required")
		return
	}
	target, err := req.target()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.Comfy.Generate(r.Context(), target, req.Workflow)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"format":   res.Format,
		"data":     res.Data,
		"filename": res.Ref.Filename,
	})
}
