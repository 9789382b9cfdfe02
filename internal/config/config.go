package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

type Config struct {
	Port      string `env:"REWEAR_PORT,default=8080"`
	LogLevel  string `env:"REWEAR_LOG_LEVEL,default=info"`
	LogFormat string `env:"REWEAR_LOG_FORMAT,default=text"`

	DBDriver string `env:"REWEAR_DB_DRIVER,default=sqlite"`
	DBDSN    string `env:"REWEAR_DB_DSN,default=rewear.db"`

	JWTSecret    string        `env:"REWEAR_JWT_SECRET"`
	TokenTTL     time.Duration `env:"REWEAR_TOKEN_TTL,default=168h"`
	SignupPoints int           `env:"REWEAR_SIGNUP_POINTS,default=0"`

	AdminEmail    string `env:"REWEAR_ADMIN_EMAIL,default=admin@rewear.com"`
	AdminPassword string `env:"REWEAR_ADMIN_PASSWORD,default=admin123"`
	AdminPoints   int    `env:"REWEAR_ADMIN_POINTS,default=1000"`

	LedgerMaxRetries int           `env:"REWEAR_LEDGER_MAX_RETRIES,default=3"`
	LedgerTxTimeout  time.Duration `env:"REWEAR_LEDGER_TX_TIMEOUT,default=5s"`

	UploadDir string `env:"REWEAR_UPLOAD_DIR,default=uploads"`
	S3        S3Config

	RedisURL string        `env:"REWEAR_REDIS_URL"`
	CacheTTL time.Duration `env:"REWEAR_CACHE_TTL,default=5m"`

	// EphemeralSecret is set when no JWT secret was configured and a random
	// one was generated. Tokens do not survive a restart.
	EphemeralSecret bool
}

// S3Config selects S3-compatible image storage. Images go to UploadDir when
// Bucket is empty.
type S3Config struct {
	Bucket    string `env:"REWEAR_S3_BUCKET"`
	Region    string `env:"REWEAR_S3_REGION,default=us-east-1"`
	Endpoint  string `env:"REWEAR_S3_ENDPOINT"`
	AccessKey string `env:"REWEAR_S3_ACCESS_KEY"`
	SecretKey string `env:"REWEAR_S3_SECRET_KEY"`
	PublicURL string `env:"REWEAR_S3_PUBLIC_URL"`
}

// Load reads an optional .env file, then decodes the environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode env: %w", err)
	}

	if cfg.JWTSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.JWTSecret = secret
		cfg.EphemeralSecret = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("REWEAR_DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver))
	}
	if c.LedgerMaxRetries < 1 {
		errs = append(errs, fmt.Errorf("REWEAR_LEDGER_MAX_RETRIES must be at least 1, got %d", c.LedgerMaxRetries))
	}
	if c.LedgerTxTimeout <= 0 {
		errs = append(errs, errors.New("REWEAR_LEDGER_TX_TIMEOUT must be positive"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("REWEAR_TOKEN_TTL must be positive"))
	}
	if c.SignupPoints < 0 || c.AdminPoints < 0 {
		errs = append(errs, errors.New("point grants must not be negative"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("REWEAR_LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if c.S3.Bucket != "" && (c.S3.AccessKey == "" || c.S3.SecretKey == "") {
		errs = append(errs, errors.New("REWEAR_S3_BUCKET requires REWEAR_S3_ACCESS_KEY and REWEAR_S3_SECRET_KEY"))
	}
	return errors.Join(errs...)
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
