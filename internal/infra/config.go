package infra

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DataDir          string
	AllowedOrigins   []string
	OpenAIBaseURL    string
	CaptionModel     string
	SpeechModel      string
	TranscribeModel  string
	TextGenBaseURL   string
	TextGenModel     string
	PollInterval     time.Duration
	PollBudget       time.Duration
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		Port:            getEnv("PORT", "8080"),
		DataDir:         getEnv("DATA_DIR", "data"),
		AllowedOrigins:  splitCSV(getEnv("ALLOWED_ORIGINS", "")),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		CaptionModel:    getEnv("CAPTION_MODEL", "gpt-4o-mini"),
		SpeechModel:     getEnv("SPEECH_MODEL", "tts-1"),
		TranscribeModel: getEnv("TRANSCRIBE_MODEL", "whisper-1"),
		TextGenBaseURL:  getEnv("TEXTGEN_BASE_URL", "https://api.openai.com/v1"),
		TextGenModel:    getEnv("TEXTGEN_MODEL", "gpt-4o-mini"),
		// The generation flow re-polls the backend history on this cadence;
		// the budget bounds how long a single job may stay pending.
		PollInterval:     time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 100)),
		PollBudget:       time.Second * time.Duration(getEnvInt("POLL_BUDGET_SECONDS", 300)),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 600)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}
	return cfg, nil
}

// IsProduction reports whether the process runs with production settings.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
