package config

import (
	"fmt"
	"log"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	App     AppConfig
	Media   MediaConfig
	Llm     LLMConfig
	Poll    PollConfig
	Session SessionConfig
}

type AppConfig struct {
	Port               string
	ClientURL          string
	Environment        string
	LogFilePath        string
	EventLogFilePath   string
	CorsAllowedOrigins string
}

type MediaConfig struct {
	BaseURL              string
	RequestTimeoutMs     int
	MaxUploadBytes       int
	AllowedVideoTypes    []string
	AllowedDocumentTypes []string
}

type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

type PollConfig struct {
	IntervalMs  int
	MaxAttempts int
}

type SessionConfig struct {
	TTLMinutes int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			EventLogFilePath:   getEnv("EVENT_LOG_FILE_PATH", "logs/session_events.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		},
		Media: MediaConfig{
			BaseURL:              getEnv("MEDIA_API_BASE", "http://localhost:8080/api"),
			RequestTimeoutMs:     getEnvAsInt("MEDIA_API_TIMEOUT_MS", 30000),
			MaxUploadBytes:       getEnvAsInt("MAX_UPLOAD_BYTES", 100*1024*1024), // 100MB
			AllowedVideoTypes:    getEnvAsSlice("ALLOWED_VIDEO_TYPES", defaultVideoTypes),
			AllowedDocumentTypes: getEnvAsSlice("ALLOWED_DOCUMENT_TYPES", defaultDocumentTypes),
		},
		Llm: LLMConfig{
			BaseURL:     getEnv("LLM_API_BASE", "https://api.openai.com/v1"),
			APIKey:      getEnv("LLM_API_KEY", ""),
			Model:       getEnv("LLM_MODEL", "gpt-3.5-turbo"),
			Temperature: getEnvAsFloat("LLM_TEMPERATURE", 0.2),
		},
		Poll: PollConfig{
			IntervalMs:  getEnvAsInt("PARSE_POLL_INTERVAL_MS", 3000),
			MaxAttempts: getEnvAsInt("PARSE_POLL_MAX_ATTEMPTS", 10),
		},
		Session: SessionConfig{
			TTLMinutes: getEnvAsInt("SESSION_TTL_MINUTES", 60),
		},
	}
}

// Validate checks the loaded configuration. In production a broken config is
// fatal; in development it is reported and the defaults carry on.
func (c *Config) Validate() []error {
	var errs []error

	if c.Llm.APIKey == "" {
		errs = append(errs, fmt.Errorf("LLM_API_KEY is required for chat"))
	}
	if _, err := url.Parse(c.Llm.BaseURL); err != nil || c.Llm.BaseURL == "" {
		errs = append(errs, fmt.Errorf("LLM_API_BASE must be a valid URL"))
	}
	if _, err := url.Parse(c.Media.BaseURL); err != nil || c.Media.BaseURL == "" {
		errs = append(errs, fmt.Errorf("MEDIA_API_BASE must be a valid URL"))
	}
	if c.Media.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive"))
	}
	if len(c.Media.AllowedVideoTypes) == 0 {
		errs = append(errs, fmt.Errorf("ALLOWED_VIDEO_TYPES must list at least one MIME type"))
	}
	if len(c.Media.AllowedDocumentTypes) == 0 {
		errs = append(errs, fmt.Errorf("ALLOWED_DOCUMENT_TYPES must list at least one MIME type"))
	}
	if c.Llm.Temperature < 0 || c.Llm.Temperature > 2 {
		errs = append(errs, fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2"))
	}
	if c.Poll.IntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("PARSE_POLL_INTERVAL_MS must be positive"))
	}
	if c.Poll.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("PARSE_POLL_MAX_ATTEMPTS must be positive"))
	}

	return errs
}

// MustValidate logs every config error and panics in production.
func (c *Config) MustValidate() {
	errs := c.Validate()
	for _, err := range errs {
		log.Printf("[CONFIG] %v", err)
	}
	if len(errs) > 0 && c.App.Environment == "production" {
		log.Panicf("configuration validation failed with %d error(s)", len(errs))
	}
}

var defaultVideoTypes = []string{
	"video/mp4",
	"video/avi",
	"video/mov",
	"video/wmv",
	"video/flv",
	"video/webm",
}

var defaultDocumentTypes = []string{
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/msword",
	"text/plain",
}

// FormatFileSize renders a byte count for user-facing messages ("1.5 MB").
func FormatFileSize(bytes int64) string {
	if bytes == 0 {
		return "0 Bytes"
	}
	const k = 1024
	sizes := []string{"Bytes", "KB", "MB", "GB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(k)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	value := math.Round(float64(bytes)/math.Pow(k, float64(i))*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + sizes[i]
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsSlice(key string, fallback []string) []string {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	parts := strings.Split(strValue, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}
