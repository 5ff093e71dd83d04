package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/whisper/internal/flagx"
	"github.com/dmitrijs2005/whisper/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// strings such as "5s" or integer nanoseconds.
type JsonConfig struct {
	HTTPAddr                string         `json:"http_addr"`
	DatabaseDSN             string         `json:"database_dsn"`
	SecretKey               string         `json:"secret_key"`
	AllowedOrigins          []string       `json:"allowed_origins"`
	WriteTimeout            timex.Duration `json:"write_timeout"`
	PushWorkers             int            `json:"push_workers"`
	PushQueueSize           int            `json:"push_queue_size"`
	FirebaseCredentialsFile string         `json:"firebase_credentials_file"`
	S3RootUser              string         `json:"s3_root_user"`
	S3RootPassword          string         `json:"s3_root_password"`
	S3Bucket                string         `json:"s3_bucket"`
	S3Region                string         `json:"s3_region"`
	S3BaseEndpoint          string         `json:"s3_base_endpoint"`
	PresignValidity         timex.Duration `json:"presign_validity"`
	LogLevel                string         `json:"log_level"`
}

// parseJson overlays values from the file named by -c/-config. Keys absent
// from the file keep their current value. Unreadable or invalid files panic.
func parseJson(config *Config, args []string) {
	jsonConfigFile := flagx.ConfigFile(args)

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if len(c.AllowedOrigins) > 0 {
		config.AllowedOrigins = c.AllowedOrigins
	}
	if c.WriteTimeout.Duration > 0 {
		config.WriteTimeout = c.WriteTimeout.Duration
	}
	if c.PushWorkers > 0 {
		config.PushWorkers = c.PushWorkers
	}
	if c.PushQueueSize > 0 {
		config.PushQueueSize = c.PushQueueSize
	}
	setString(&config.FirebaseCredentialsFile, c.FirebaseCredentialsFile)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.PresignValidity.Duration > 0 {
		config.PresignValidity = c.PresignValidity.Duration
	}
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
