package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration parameters read from environment variables.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort string `envconfig:"HTTP_PORT" default:"4242"`

	// Shared secret for operator endpoints. Empty disables the check.
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`
	JWTTTLHours int    `envconfig:"JWT_TTL_HOURS" default:"72"`

	// Key material for encrypting sensitive columns at rest. Both must be
	// non-blank; startup aborts otherwise.
	EncryptionPassphrase string `envconfig:"ENCRYPTION_PASSPHRASE" required:"true"`
	EncryptionSalt       string `envconfig:"ENCRYPTION_SALT" required:"true"`

	OpenAIAPIKey         string `envconfig:"OPENAI_API_KEY" required:"true"`
	OpenAIBaseURL        string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com"`
	OpenAIModel          string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAITimeoutSeconds int    `envconfig:"OPENAI_TIMEOUT_SECONDS" default:"120"`
	OpenAIMaxRetries     int    `envconfig:"OPENAI_MAX_RETRIES" default:"3"`

	// Nightly re-synthesis of stale reader profiles.
	ProfileRefreshSchedule string `envconfig:"PROFILE_REFRESH_SCHEDULE" default:"0 3 * * *"`

	CoverS3Key    string `envconfig:"COVER_S3_KEY" required:"true"`
	CoverS3Secret string `envconfig:"COVER_S3_SECRET" required:"true"`
	CoverS3URL    string `envconfig:"COVER_S3_URL" required:"true"`
	CoverS3Region string `envconfig:"COVER_S3_REGION" required:"true"`
	CoverS3Bucket string `envconfig:"COVER_S3_BUCKET" required:"true"`
}

// DSN returns the Data Source Name for the PostgreSQL connection.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
