package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultSpreadsheetMaxBytes = 10 << 20
	defaultCallTimeout         = 60 * time.Second
	defaultSessionIdleTimeout  = 12 * time.Hour
)

// Config holds application configuration.
type Config struct {
	Port                string
	CORSAllowOrigin     []string
	ObjectStoreType     string
	LocalStoreDir       string
	AWSRegion           string
	S3Bucket            string
	S3Prefix            string
	SSEKMSKeyID         string
	DatabaseURL         string
	Env                 string
	LLMProvider         string
	LLMModel            string
	GeminiAPIKey        string
	OpenAIAPIKey        string
	DeliveryProvider    string
	DeliveryURL         string
	DispatchCallTimeout time.Duration
	SpreadsheetMaxBytes int64
	ResumeTextExtract   bool
	SessionIdleTimeout  time.Duration
	GoogleClientID      string
	GoogleClientSecret  string
	GoogleRedirectURL   string
	UIRedirectURL       string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:                getEnv("PORT", "8080"),
		CORSAllowOrigin:     splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000")),
		ObjectStoreType:     normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:       getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:           getEnv("AWS_REGION", ""),
		S3Bucket:            getEnv("S3_BUCKET", ""),
		S3Prefix:            getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:         getEnv("SSE_KMS_KEY_ID", ""),
		DatabaseURL:         dbURL,
		Env:                 env,
		LLMProvider:         normalizeLLMProvider(getEnv("LLM_PROVIDER", "gemini")),
		LLMModel:            getEnv("LLM_MODEL", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		DeliveryProvider:    normalizeDeliveryProvider(getEnv("DELIVERY_PROVIDER", "http")),
		DeliveryURL:         getEnv("DELIVERY_URL", ""),
		DispatchCallTimeout: getDuration("DISPATCH_CALL_TIMEOUT", defaultCallTimeout),
		SpreadsheetMaxBytes: getInt64("SPREADSHEET_MAX_BYTES", defaultSpreadsheetMaxBytes),
		ResumeTextExtract:   getBool("RESUME_TEXT_EXTRACTION", false),
		SessionIdleTimeout:  getDuration("SESSION_IDLE_TIMEOUT", defaultSessionIdleTimeout),
		GoogleClientID:      getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:  getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:   getEnv("GOOGLE_REDIRECT_URL", ""),
		UIRedirectURL:       getEnv("UI_REDIRECT_URL", ""),
	}
}

// ErrIncompleteGoogleConfig is returned by Validate when sign-in cannot work.
var ErrIncompleteGoogleConfig = errors.New("google sign-in configuration is incomplete")

// Validate reports settings that make the service unusable. Outside production
// the caller is expected to log the error and continue.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.GoogleClientID) == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}
	if strings.TrimSpace(c.GoogleClientSecret) == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}
	if strings.TrimSpace(c.GoogleRedirectURL) == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URL")
	}
	if len(missing) > 0 {
		return &MissingError{Keys: missing, Err: ErrIncompleteGoogleConfig}
	}
	return nil
}

// MissingError lists the unset keys behind a validation failure.
type MissingError struct {
	Keys []string
	Err  error
}

func (e *MissingError) Error() string {
	return e.Err.Error() + ": missing " + strings.Join(e.Keys, ", ")
}

func (e *MissingError) Unwrap() error { return e.Err }

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	// Bare integers are seconds.
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	log.Printf("config %s invalid duration %q, using %s", key, raw, def)
	return def
}

func getInt64(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		log.Printf("config %s invalid int %q, using %d", key, raw, def)
		return def
	}
	return v
}

func getBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeLLMProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "openai":
		return "openai"
	case "none", "placeholder":
		return "none"
	default:
		return "gemini"
	}
}

func normalizeDeliveryProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "gmail":
		return "gmail"
	default:
		return "http"
	}
}
