package handlers

import (
	"net/http"
)

type secretWriteRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SecretsWrite stores a named API key. Disabled in production: keys are
// provisioned out of band there, not over the API.
func (a *App) SecretsWrite(w http.ResponseWriter, r *http.Request) {
	if a.Config.IsProduction() {
		a.error(w, http.StatusForbidden, "forbidden", "secret writes are disabled in production")
		return
	}
	var req secretWriteRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Key == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "key is required")
		return
	}
	if err := a.Secrets.SetToken(req.Key, req.Value); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "saved"})
}
