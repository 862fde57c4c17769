package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv    string
	Port       string
	JWTSecret  string
	Database   DatabaseConfig
	Gemini     GeminiConfig
	Storage    StorageConfig
	ESign      ESignConfig
	Extraction ExtractionConfig
	Raster     RasterConfig
	Offers     OfferConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Alter    bool
}

// GeminiConfig holds the generative vision model configuration
type GeminiConfig struct {
	APIKey string
	Model  string
}

// StorageConfig holds object store (MinIO/S3) configuration
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ESignConfig holds e-signature provider configuration
type ESignConfig struct {
	APIURL        string
	APIKey        string
	ClientID      string
	WebhookSecret string
	TestMode      bool
}

// ExtractionConfig holds extraction pipeline tuning.
// AcceptThreshold and the vision provider choice are product policy,
// not derived constants, so they stay configurable.
type ExtractionConfig struct {
	AcceptThreshold   float64 // tier result at or below this falls through to the next tier
	VisionProvider    string  // "gemini" or "standardizer"
	VisionConcurrency int     // bound on parallel per-page model calls
	StandardizerURL   string
	StandardizerKey   string
	SchemaName        string
}

// RasterConfig holds PDF rasterization configuration
type RasterConfig struct {
	Command  string // pdftoppm binary, resolvable via PATH
	MaxPages int
	DPI      int
}

// OfferConfig holds offer lifecycle tuning
type OfferConfig struct {
	DefaultExpiryHours int // safety net when no irrevocability date was extracted
	SweepInterval      int // minutes between expiry sweeps
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "3001"),
		JWTSecret: jwtSecret,
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "casaflow"),
			Alter:    getEnv("DB_ALTER", "false") == "true",
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Storage: StorageConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnv("MINIO_BUCKET", "offer-documents"),
			UseSSL:    getEnv("MINIO_USE_SSL", "false") == "true",
		},
		ESign: ESignConfig{
			APIURL:        getEnv("ESIGN_API_URL", "https://api.hellosign.com/v3"),
			APIKey:        os.Getenv("ESIGN_API_KEY"),
			ClientID:      os.Getenv("ESIGN_CLIENT_ID"),
			WebhookSecret: os.Getenv("ESIGN_WEBHOOK_SECRET"),
			TestMode:      getEnv("ESIGN_TEST_MODE", "true") == "true",
		},
		Extraction: ExtractionConfig{
			AcceptThreshold:   getEnvFloat("EXTRACT_ACCEPT_THRESHOLD", 0.7),
			VisionProvider:    getEnv("EXTRACT_VISION_PROVIDER", "gemini"),
			VisionConcurrency: getEnvInt("EXTRACT_VISION_CONCURRENCY", 3),
			StandardizerURL:   os.Getenv("STANDARDIZER_API_URL"),
			StandardizerKey:   os.Getenv("STANDARDIZER_API_KEY"),
			SchemaName:        getEnv("STANDARDIZER_SCHEMA_NAME", "orea-form-100"),
		},
		Raster: RasterConfig{
			Command:  getEnv("RASTER_COMMAND", "pdftoppm"),
			MaxPages: getEnvInt("RASTER_MAX_PAGES", 8),
			DPI:      getEnvInt("RASTER_DPI", 150),
		},
		Offers: OfferConfig{
			DefaultExpiryHours: getEnvInt("OFFER_DEFAULT_EXPIRY_HOURS", 24),
			SweepInterval:      getEnvInt("OFFER_SWEEP_INTERVAL_MINUTES", 5),
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
