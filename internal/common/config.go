package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Engines   EnginesConfig
	Preproc   PreprocConfig
	Extract   ExtractConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Metrics   MetricsConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr        string
	APIKey      string
	MaxFileSize int64
}

// EnginesConfig holds recognition backend configuration.
type EnginesConfig struct {
	Enabled             []string
	FallbackOrder       []string
	EnableFallback      bool
	ConfidenceThreshold float64
	MaxFallbackAttempts int

	TesseractBinary  string
	TesseractLang    string
	TessdataDir      string
	TesseractPSM     int
	TesseractOEM     int

	RemoteURL     string
	RemoteAPIKey  string
	RemoteTimeout time.Duration
}

// PreprocConfig holds preprocessing configuration.
type PreprocConfig struct {
	Pdftoppm string
	Magick   string
	DPI      int
	Profile  string
	WorkDir  string
}

// ExtractConfig holds metadata extraction and validation tunables.
type ExtractConfig struct {
	DateContextWindow   int
	AmountContextWindow int
	SerialYearMin       int
	SerialYearMax       int
	FiscalYearMin       int
	FiscalYearMax       int
	RawTextPreviewLen   int
}

// DatabaseConfig holds result persistence configuration.
type DatabaseConfig struct {
	Driver string // "pgx" | "sqlite"
	DSN    string
}

// CacheConfig holds the Redis result cache configuration.
type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
}

// MetricsConfig holds the Prometheus exposition configuration.
type MetricsConfig struct {
	Addr string
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        getEnv("HTTP_ADDR", ":8000"),
			APIKey:      getEnv("API_KEY", ""),
			MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 50<<20),
		},
		Engines: EnginesConfig{
			Enabled:             getEnvAsList("OCR_ENGINES", []string{"pdftext", "tesseract"}),
			FallbackOrder:       getEnvAsList("OCR_FALLBACK_ORDER", nil),
			EnableFallback:      getEnvAsBool("OCR_ENABLE_FALLBACK", true),
			ConfidenceThreshold: getEnvAsFloat("OCR_CONFIDENCE_THRESHOLD", 0.6),
			MaxFallbackAttempts: getEnvAsInt("OCR_MAX_FALLBACK_ATTEMPTS", 3),
			TesseractBinary:     getEnv("TESSERACT_BINARY", "tesseract"),
			TesseractLang:       getEnv("TESSERACT_LANG", "fra"),
			TessdataDir:         getEnv("TESSDATA_PREFIX", ""),
			TesseractPSM:        getEnvAsInt("TESSERACT_PSM", 0),
			TesseractOEM:        getEnvAsInt("TESSERACT_OEM", 0),
			RemoteURL:           getEnv("REMOTE_OCR_URL", ""),
			RemoteAPIKey:        getEnv("REMOTE_OCR_API_KEY", ""),
			RemoteTimeout:       getEnvAsDuration("REMOTE_OCR_TIMEOUT", 60*time.Second),
		},
		Preproc: PreprocConfig{
			Pdftoppm: getEnv("PDFTOPPM_BINARY", "pdftoppm"),
			Magick:   getEnv("MAGICK_BINARY", "magick"),
			DPI:      getEnvAsInt("PREPROCESS_DPI", 300),
			Profile:  getEnv("PREPROCESS_PROFILE", "standard"),
			WorkDir:  getEnv("PREPROCESS_WORK_DIR", ""),
		},
		Extract: ExtractConfig{
			DateContextWindow:   getEnvAsInt("DATE_CONTEXT_WINDOW", 50),
			AmountContextWindow: getEnvAsInt("AMOUNT_CONTEXT_WINDOW", 30),
			SerialYearMin:       getEnvAsInt("SERIAL_YEAR_MIN", 19),
			SerialYearMax:       getEnvAsInt("SERIAL_YEAR_MAX", 26),
			FiscalYearMin:       getEnvAsInt("FISCAL_YEAR_MIN", 2015),
			FiscalYearMax:       getEnvAsInt("FISCAL_YEAR_MAX", 2030),
			RawTextPreviewLen:   getEnvAsInt("RAW_TEXT_PREVIEW_LEN", 500),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "pgx"),
			DSN:    getEnv("DB_URL", ""),
		},
		Cache: CacheConfig{
			RedisURL: getEnv("REDIS_URL", ""),
			TTL:      getEnvAsDuration("CACHE_TTL", time.Hour),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ":9090"),
		},
	}
}

// Helper functions for environment variable parsing.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if len(c.Engines.Enabled) == 0 {
		return NewAppError("CONFIG_ERROR", "at least one OCR engine must be enabled", ErrInvalidInput)
	}
	if c.Engines.ConfidenceThreshold < 0 || c.Engines.ConfidenceThreshold > 1 {
		return NewAppError("CONFIG_ERROR", "OCR_CONFIDENCE_THRESHOLD must be in [0,1]", ErrInvalidInput)
	}
	if c.Extract.SerialYearMin > c.Extract.SerialYearMax {
		return NewAppError("CONFIG_ERROR", "serial year range is inverted", ErrInvalidInput)
	}
	return nil
}
