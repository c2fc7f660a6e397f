package handlers

import (
	"net/http"

	"gateway/internal/providers/webui"
	"gateway/internal/relay"
)

// webuiTarget decodes the common backend fields and validates the target.
func (a *App) webuiTarget(w http.ResponseWriter, r *http.Request) (*relay.Target, bool) {
	var req backendRequest
	if !a.decode(w, r, &req) {
		return nil, false
	}
	target, err := req.target()
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	return target, true
}

func (a *App) WebUIPing(w http.ResponseWriter, r *http.Request) {
	target, ok := a.webuiTarget(w, r)
	if !ok {
		return
	}
	if err := a.WebUI.Ping(r.Context(), target); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) WebUISamplers(w http.ResponseWriter, r *http.Request) {
	target, ok := a.webuiTarget(w, r)
	if !ok {
		return
	}
	samplers, err := a.WebUI.Samplers(r.Context(), target)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, samplers)
}

func (a *App) WebUIModels(w http.ResponseWriter, r *http.Request) {
	target, ok := a.webuiTarget(w, r)
	if !ok {
		return
	}
	models, err := a.WebUI.Models(r.Context(), target)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, models)
}

func (a *App) WebUIUpscalers(w http.ResponseWriter, r *http.Request) {
	target, ok := a.webuiTarget(w, r)
	if !ok {
		return
	}
	upscalers, err := a.WebUI.Upscalers(r.Context(), target)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, upscalers)
}

func (a *App) WebUIVAEs(w http.ResponseWriter, r *http.Request) {
	target, ok := a.webuiTarget(w, r)
	if !ok {
		return
	}
	vaes, err := a.WebUI.VAEs(r.Context(), target)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, vaes)
}

func (a *App) WebUIGetModel(w http.ResponseWriter, r *http.Request) {
	target, ok := a.webuiTarget(w, r)
	if !ok {
		return
	}
	model, err := a.WebUI.CurrentModel(r.Context(), target)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"model": model})
}

type setModelRequest struct {
	backendRequest
	Model string `json:"model"`
}

func (a *App) WebUISetModel(w http.ResponseWriter, r *http.Request) {
	var req setModelRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Model == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "model is required")
		return
	}
	target, err := req.target()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	// The backend holds the request open while it swaps checkpoints; the
	// relay layer deliberately has no timeout for exactly this call.
	if err := a.WebUI.SetModel(r.Context(), target, req.Model); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"model": req.Model})
}

type webuiGenerateRequest struct {
	backendRequest
	webui.GenerateParams
}

func (a *App) WebUIGenerate(w http.ResponseWriter, r *http.Request) {
	var req webuiGenerateRequest
	if !a.decode(w, r, &req) {
		return
	}
	target, err := req.target()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	images, err := a.WebUI.Generate(r.Context(), target, req.GenerateParams)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"images": images})
}
