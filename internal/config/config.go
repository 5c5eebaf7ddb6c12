package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	LogLevel  string
	LogFormat string

	VAPI VAPI
}

// VAPI holds the outbound call service settings.
type VAPI struct {
	BaseURL       string
	APIKey        string
	AssistantID   string
	PhoneNumberID string
	UserPhone     string
	Timeout       time.Duration
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8000"),
		DatabaseURL:          getenv("DATABASE_URL", "reminders.db"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "true") == "true",
		LogLevel:             strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(getenv("LOG_FORMAT", "json")),
		VAPI: VAPI{
			BaseURL:       strings.TrimRight(getenv("VAPI_BASE_URL", "https://api.vapi.ai"), "/"),
			APIKey:        getenv("VAPI_API_KEY", ""),
			AssistantID:   getenv("ASSISTANT_ID", ""),
			PhoneNumberID: getenv("PHONE_NUMBER_ID", ""),
			UserPhone:     getenv("USER_PHONE_NUMBER", ""),
		},
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", "*"), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	timeout, err := time.ParseDuration(getenv("VAPI_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid VAPI_TIMEOUT: %w", err)
	}
	cfg.VAPI.Timeout = timeout

	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}
