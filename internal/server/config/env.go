package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// envConfig mirrors Config with pointer fields so that unset variables leave
// earlier layers alone.
type envConfig struct {
	HTTPAddr                *string        `envconfig:"HTTP_ADDR"`
	DatabaseDSN             *string        `envconfig:"DATABASE_DSN"`
	SecretKey               *string        `envconfig:"SECRET_KEY"`
	AllowedOrigins          []string       `envconfig:"ALLOWED_ORIGINS"`
	WriteTimeout            *time.Duration `envconfig:"WRITE_TIMEOUT"`
	PushWorkers             *int           `envconfig:"PUSH_WORKERS"`
	PushQueueSize           *int           `envconfig:"PUSH_QUEUE_SIZE"`
	FirebaseCredentialsFile *string        `envconfig:"FIREBASE_CREDENTIALS_FILE"`
	S3RootUser              *string        `envconfig:"S3_ROOT_USER"`
	S3RootPassword          *string        `envconfig:"S3_ROOT_PASSWORD"`
	S3Bucket                *string        `envconfig:"S3_BUCKET"`
	S3Region                *string        `envconfig:"S3_REGION"`
	S3BaseEndpoint          *string        `envconfig:"S3_BASE_ENDPOINT"`
	PresignValidity         *time.Duration `envconfig:"PRESIGN_VALIDITY"`
	LogLevel                *string        `envconfig:"LOG_LEVEL"`
}

const envPrefix = "WHISPER"

// parseEnv overlays WHISPER_* environment variables. Malformed values panic.
func parseEnv(config *Config) {
	var e envConfig
	if err := envconfig.Process(envPrefix, &e); err != nil {
		panic(err)
	}

	setPtr(&config.HTTPAddr, e.HTTPAddr)
	setPtr(&config.DatabaseDSN, e.DatabaseDSN)
	setPtr(&config.SecretKey, e.SecretKey)
	if len(e.AllowedOrigins) > 0 {
		config.AllowedOrigins = e.AllowedOrigins
	}
	setPtr(&config.WriteTimeout, e.WriteTimeout)
	setPtr(&config.PushWorkers, e.PushWorkers)
	setPtr(&config.PushQueueSize, e.PushQueueSize)
	setPtr(&config.FirebaseCredentialsFile, e.FirebaseCredentialsFile)
	setPtr(&config.S3RootUser, e.S3RootUser)
	setPtr(&config.S3RootPassword, e.S3RootPassword)
	setPtr(&config.S3Bucket, e.S3Bucket)
	setPtr(&config.S3Region, e.S3Region)
	setPtr(&config.S3BaseEndpoint, e.S3BaseEndpoint)
	setPtr(&config.PresignValidity, e.PresignValidity)
	setPtr(&config.LogLevel, e.LogLevel)
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
