package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"gateway/internal/http/handlers"
	httpapi "gateway/internal/http/httpapi"
	"gateway/internal/infra"
	"gateway/internal/providers/comfy"
	"gateway/internal/providers/openai"
	"gateway/internal/providers/webui"
	"gateway/internal/relay"
	"gateway/internal/secrets"
	"gateway/internal/textgen"
	"gateway/internal/workflows"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	secretStore, err := secrets.NewStore(cfg.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open secret store")
	}
	workflowStore, err := workflows.NewStore(filepath.Join(cfg.DataDir, "workflows"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open workflow store")
	}

	// Backends can hold a generation call open for minutes; the relay client
	// carries no timeout and callers bound work through request contexts.
	relayClient := relay.NewClient(&http.Client{}, &logger)

	app := &handlers.App{
		Config: cfg,
		Logger: &logger,
		WebUI:  webui.NewClient(relayClient),
		Comfy: comfy.NewClient(comfy.Options{
			Relay:        relayClient,
			Logger:       &logger,
			ClientID:     uuid.NewString(),
			PollInterval: cfg.PollInterval,
			PollBudget:   cfg.PollBudget,
		}),
		OpenAI: openai.NewClient(openai.Options{
			BaseURL:         cfg.OpenAIBaseURL,
			CaptionModel:    cfg.CaptionModel,
			SpeechModel:     cfg.SpeechModel,
			TranscribeModel: cfg.TranscribeModel,
			Logger:          &logger,
		}),
		Secrets:   secretStore,
		Workflows: workflowStore,
		TextGen: textgen.NewLoader(textgen.Options{
			BaseURL: cfg.TextGenBaseURL,
			Model:   cfg.TextGenModel,
			KeyFunc: func() string { return secretStore.Token(secrets.ProviderTextGen) },
			Logger:  &logger,
		}),
	}

	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
