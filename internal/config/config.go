// Package config resolves dixcoverd's runtime settings from the process
// environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every environment-driven setting dixcoverd needs to run.
type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	ShodanAPIKey     string
	OTXAPIKey        string
	VirusTotalAPIKey string

	SlackWebhookURL   string
	DiscordWebhookURL string
	SlackMention      string
	DiscordMention    string

	ProberMaxWorkers         int
	ProberTimeout            time.Duration
	ProberMaxRetries         int
	ProberRetryDelay         time.Duration
	ProberInsecureSkipVerify bool

	ScanSourceTimeout time.Duration

	HTTPAddr string
}

// Load reads settings from the environment. Viper's AutomaticEnv binds every
// key below directly (no prefix), matching the bare env var names the
// system's operators already use: DB_HOST_IP, SHODAN_API_KEY, and so on.
// POSTGRES_* aliases are honored when the DB_* form is unset, for operators
// coming from a plain postgres-flavored .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("PROBER_MAX_WORKERS", 20)
	v.SetDefault("PROBER_TIMEOUT", "5s")
	v.SetDefault("PROBER_MAX_RETRIES", 2)
	v.SetDefault("PROBER_RETRY_DELAY", "1s")
	v.SetDefault("SCAN_SOURCE_TIMEOUT", "10m")
	v.SetDefault("HTTP_ADDR", ":8080")

	dbHost := firstNonEmpty(v.GetString("DB_HOST_IP"), v.GetString("POSTGRES_HOST"), "localhost")
	dbUser := firstNonEmpty(v.GetString("DB_USER"), v.GetString("POSTGRES_USER"), "postgres")
	dbPassword := firstNonEmpty(v.GetString("DB_PASSWORD"), v.GetString("POSTGRES_PASSWORD"))
	dbName := firstNonEmpty(v.GetString("DB_NAME"), v.GetString("POSTGRES_DB"), "dixcover")

	cfg := &Config{
		DBHost:     dbHost,
		DBUser:     dbUser,
		DBPassword: dbPassword,
		DBName:     dbName,
		DBSSLMode:  v.GetString("DB_SSLMODE"),

		ShodanAPIKey:     v.GetString("SHODAN_API_KEY"),
		OTXAPIKey:        v.GetString("OTX_API_KEY"),
		VirusTotalAPIKey: v.GetString("VIRUS_TOTAL_API_KEY"),

		SlackWebhookURL:   v.GetString("SLACK_WEBHOOK_URL"),
		DiscordWebhookURL: v.GetString("DISCORD_WEBHOOK_URL"),
		SlackMention:      v.GetString("SLACK_MENTION"),
		DiscordMention:    v.GetString("DISCORD_MENTION"),

		ProberMaxWorkers:         v.GetInt("PROBER_MAX_WORKERS"),
		ProberTimeout:            v.GetDuration("PROBER_TIMEOUT"),
		ProberMaxRetries:         v.GetInt("PROBER_MAX_RETRIES"),
		ProberRetryDelay:         v.GetDuration("PROBER_RETRY_DELAY"),
		ProberInsecureSkipVerify: v.GetBool("PROBER_INSECURE_SKIP_VERIFY"),

		ScanSourceTimeout: v.GetDuration("SCAN_SOURCE_TIMEOUT"),

		HTTPAddr: v.GetString("HTTP_ADDR"),
	}

	if cfg.ProberMaxWorkers < 1 {
		return nil, fmt.Errorf("PROBER_MAX_WORKERS must be at least 1, got %d", cfg.ProberMaxWorkers)
	}
	return cfg, nil
}

// DSN builds the postgres connection string pgx expects.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBName, c.DBSSLMode)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
