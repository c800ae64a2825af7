package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/tierkeeper/internal/flagx"
	"github.com/dmitrijs2005/tierkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "250ms" and integer nanoseconds are accepted.
type JsonConfig struct {
	DatabaseDriver      string         `json:"database_driver"`
	DatabaseDSN         string         `json:"database_dsn"`
	MinLoginForSilver   int            `json:"min_login_for_silver"`
	MinRecommendForGold int            `json:"min_recommend_for_gold"`
	LogFormat           string         `json:"log_format"`
	LogLevel            string         `json:"log_level"`
	LogFile             string         `json:"log_file"`
	Schedule            string         `json:"schedule"`
	RetryAttempts       uint64         `json:"retry_attempts"`
	RetryBaseDelay      timex.Duration `json:"retry_base_delay"`
	S3Bucket            string         `json:"s3_bucket"`
	S3Region            string         `json:"s3_region"`
	S3BaseEndpoint      string         `json:"s3_base_endpoint"`
	S3RootUser          string         `json:"s3_root_user"`
	S3RootPassword      string         `json:"s3_root_password"`
}

// parseJson overlays values from the file named by -c/-config onto config.
// Keys missing from the file leave the current values alone. An unreadable
// file or invalid JSON panics, matching flag parsing.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
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

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.DatabaseDriver, c.DatabaseDriver)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	if c.MinLoginForSilver > 0 {
		config.MinLoginForSilver = c.MinLoginForSilver
	}
	if c.MinRecommendForGold > 0 {
		config.MinRecommendForGold = c.MinRecommendForGold
	}
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFile, c.LogFile)
	setString(&config.Schedule, c.Schedule)
	if c.RetryAttempts > 0 {
		config.RetryAttempts = c.RetryAttempts
	}
	if c.RetryBaseDelay.Duration > 0 {
		config.RetryBaseDelay = c.RetryBaseDelay.Duration
	}
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
