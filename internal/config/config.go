package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	AuthMode       string        `mapstructure:"AUTH_MODE"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthTokenTTL   time.Duration `mapstructure:"AUTH_TOKEN_TTL"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	TLSEnabled     bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile    string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile     string        `mapstructure:"TLS_KEY_FILE"`

	// Inference service
	MLAPIURL       string        `mapstructure:"ML_API_URL"`
	MLAPITimeout   time.Duration `mapstructure:"ML_API_TIMEOUT"`
	MLAPIRPS       float64       `mapstructure:"ML_API_RPS"`
	MLAuthVariants bool          `mapstructure:"ML_AUTH_VARIANTS"`
	MLCacheTTL     time.Duration `mapstructure:"ML_CACHE_TTL"`

	// Image intake and detection workspaces
	IntakeDefaultMaxMB    int64         `mapstructure:"INTAKE_DEFAULT_MAX_MB"`
	DetectionMaxUploadMB  int64         `mapstructure:"DETECTION_MAX_UPLOAD_MB"`
	DetectionWorkspaceTTL time.Duration `mapstructure:"DETECTION_WORKSPACE_TTL"`

	// Object storage
	StorageDir    string `mapstructure:"STORAGE_DIR"`
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY", "AUTH_TOKEN_TTL",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
	"ML_API_URL", "ML_API_TIMEOUT", "ML_API_RPS", "ML_AUTH_VARIANTS", "ML_CACHE_TTL",
	"INTAKE_DEFAULT_MAX_MB", "DETECTION_MAX_UPLOAD_MB", "DETECTION_WORKSPACE_TTL",
	"STORAGE_DIR", "PUBLIC_BASE_URL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred from ENV / AUTH_ISSUER
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AUTH_TOKEN_TTL", "12h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("ML_API_URL", "http://localhost:8000")
	v.SetDefault("ML_API_TIMEOUT", "0s") // no timeout unless configured
	v.SetDefault("ML_API_RPS", 5)
	v.SetDefault("ML_AUTH_VARIANTS", false)
	v.SetDefault("ML_CACHE_TTL", "5m")
	v.SetDefault("INTAKE_DEFAULT_MAX_MB", 5)
	v.SetDefault("DETECTION_MAX_UPLOAD_MB", 10)
	v.SetDefault("DETECTION_WORKSPACE_TTL", "30m")
	v.SetDefault("STORAGE_DIR", "./data/storage")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: running in DEVELOPMENT mode (ENV=development); requests without a token get admin access.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise:
//   - ENV=development → "development" (tokens optional, anonymous requests get admin)
//   - AUTH_ISSUER set → "external" (tokens from an external identity provider)
//   - Otherwise       → "standalone" (tokens issued by this server)
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	if c.AuthIssuer != "" {
		return "external"
	}
	return "standalone"
}

// SigningKey decodes AUTH_SIGNING_KEY. It returns nil when unset.
func (c *Config) SigningKey() ([]byte, error) {
	if c.AuthSigningKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.AuthSigningKey)
	if err != nil {
		return nil, fmt.Errorf("AUTH_SIGNING_KEY is not valid hex: %w", err)
	}
	return key, nil
}

// DetectionMaxBytes is the upload limit applied by the detection workspace.
func (c *Config) DetectionMaxBytes() int64 {
	return c.DetectionMaxUploadMB * 1024 * 1024
}

// IntakeDefaultMaxBytes is the upload limit applied to generic image uploads.
func (c *Config) IntakeDefaultMaxBytes() int64 {
	return c.IntakeDefaultMaxMB * 1024 * 1024
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	switch mode {
	case "development", "standalone", "external":
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\", \"standalone\", or \"external\", got %q", mode)
	}
	if mode == "external" && c.AuthIssuer == "" {
		return fmt.Errorf("AUTH_ISSUER must be set when AUTH_MODE is \"external\"")
	}

	key, err := c.SigningKey()
	if err != nil {
		return err
	}
	if mode == "standalone" && len(key) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes (64 hex chars) in standalone mode, got %d bytes", len(key))
	}

	if c.MLAPIURL == "" {
		return fmt.Errorf("ML_API_URL is required")
	}
	if c.DetectionMaxUploadMB <= 0 || c.IntakeDefaultMaxMB <= 0 {
		return fmt.Errorf("upload limits must be positive")
	}
	if c.MLAPITimeout < 0 {
		return fmt.Errorf("ML_API_TIMEOUT must not be negative")
	}

	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
