package handlers

import (
	"encoding/json"
	"net/http"

	"gateway/pkg/zip"
)

func (a *App) WorkflowsList(w http.ResponseWriter, r *http.Request) {
	names, err := a.Workflows.List()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	a.json(w, http.StatusOK, names)
}

type workflowNameRequest struct {
	Name string `json:"name"`
}

func (a *App) WorkflowsGet(w http.ResponseWriter, r *http.Request) {
	var req workflowNameRequest
	if !a.decode(w, r, &req) {
		return
	}
	doc, err := a.Workflows.Read(req.Name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"name": req.Name, "workflow": doc})
}

type workflowSaveRequest struct {
	Name     string          `json:"name"`
	Workflow json.RawMessage `json:"workflow"`
}

func (a *App) WorkflowsSave(w http.ResponseWriter, r *http.Request) {
	var req workflowSaveRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.Workflows.Write(req.Name, req.Workflow); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (a *App) WorkflowsDelete(w http.ResponseWriter, r *http.Request) {
	var req workflowNameRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.Workflows.Delete(req.Name); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// WorkflowsExport bundles every stored workflow document into one zip
// download.
func (a *App) WorkflowsExport(w http.ResponseWriter, r *http.Request) {
	names, err := a.Workflows.List()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	entries := make([]zip.Entry, 0, len(names))
	for _, name := range names {
		doc, err := a.Workflows.Read(name)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		entries = append(entries, zip.Entry{Name: name, Data: doc})
	}
	archive, err := zip.Archive(entries)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename=workflows.zip`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
