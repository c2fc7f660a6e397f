package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"gateway/internal/domain"
	"gateway/internal/infra"
	"gateway/internal/providers/comfy"
	"gateway/internal/providers/openai"
	"gateway/internal/providers/webui"
	"gateway/internal/relay"
	"gateway/internal/secrets"
	"gateway/internal/textgen"
	"gateway/internal/workflows"
)

// App bundles the handler dependencies.
type App struct {
	Config    *infra.Config
	Logger    *infra.Logger
	WebUI     *webui.Client
	Comfy     *comfy.Client
	OpenAI    *openai.Client
	Secrets   *secrets.Store
	Workflows *workflows.Store
	TextGen   *textgen.Loader
}

// backendRequest is the common inbound shape: every backend-facing endpoint
// carries the backend base URL plus optional basic-auth credentials.
type backendRequest struct {
	URL  string `json:"url"`
	Auth *struct {
		Username string `json:"username"`
		Password string `json:"password"`
	} `json:"auth,omitempty"`
}

// target builds a fresh backend target from the request input.
func (b backendRequest) target() (*relay.Target, error) {
	var auth *relay.BasicAuth
	if b.Auth != nil {
		auth = &relay.BasicAuth{Username: b.Auth.Username, Password: b.Auth.Password}
	}
	return relay.ParseTarget(b.URL, auth)
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, codeStr, msg string) {
	a.json(w, code, map[string]any{"error": map[string]string{"code": codeStr, "message": msg}})
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}

// fail maps domain errors to HTTP statuses. Backend failures stay opaque:
// the caller learns that the upstream call failed, never what it said.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrClientInput):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrAuthMissing):
		a.error(w, http.StatusUnauthorized, "auth_missing", "api key not configured")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrGenerationTimeout):
		a.logError(r, err)
		a.error(w, http.StatusGatewayTimeout, "generation_timeout", "generation timed out")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful left to write.
		a.logError(r, err)
	case errors.Is(err, domain.ErrGenerationFailed):
		a.logError(r, err)
		a.error(w, http.StatusInternalServerError, "generation_failed", "generation failed")
	default:
		a.logError(r, err)
		a.error(w, http.StatusInternalServerError, "internal", "backend request failed")
	}
}

func (a *App) logError(r *http.Request, err error) {
	a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("handler error")
}
