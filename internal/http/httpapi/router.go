package httpapi

import (
	stdhttp "net/http"

	"gateway/internal/http/handlers"
	appmw "gateway/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *handlers.App) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(appmw.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(appmw.Logger(*app.Logger))
	if len(app.Config.AllowedOrigins) > 0 {
		r.Use(appmw.CORS(app.Config.AllowedOrigins))
	}

	r.Get("/healthz", app.Health)

	r.Route("/api/webui", func(r chi.Router) {
		r.Post("/ping", app.WebUIPing)
		r.Post("/samplers", app.WebUISamplers)
		r.Post("/models", app.WebUIModels)
		r.Post("/upscalers", app.WebUIUpscalers)
		r.Post("/vaes", app.WebUIVAEs)
		r.Post("/get-model", app.WebUIGetModel)
		r.Post("/set-model", app.WebUISetModel)
		r.Post("/generate", app.WebUIGenerate)
	})

	r.Route("/api/comfy", func(r chi.Router) {
		r.Post("/ping", app.ComfyPing)
		r.Post("/generate", app.ComfyGenerate)
		r.Get("/workflows", app.WorkflowsList)
		r.Get("/workflows/export", app.WorkflowsExport)
		r.Post("/workflows/get", app.WorkflowsGet)
		r.Post("/workflows/save", app.WorkflowsSave)
		r.Post("/workflows/delete", app.WorkflowsDelete)
	})

	r.Route("/api/openai", func(r chi.Router) {
		r.Post("/caption", app.OpenAICaption)
		r.Post("/tts", app.OpenAITTS)
		r.Post("/generate-image", app.OpenAIGenerateImage)
		r.Post("/transcribe", app.OpenAITranscribe)
	})

	r.Post("/api/prompt/expand", app.PromptExpand)
	r.Post("/api/secrets/write", app.SecretsWrite)

	return r
}
