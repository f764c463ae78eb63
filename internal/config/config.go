package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName              string
	AppEnv               string
	AppPort              string
	DatabaseURL          string
	RedisURL             string
	NATSURL              string
	EventChannelBase     string
	JWTSecret            string
	TokenCipherKey       string
	CredentialTTL        time.Duration
	GithubAppID          string
	GithubPrivateKeyPath string
	GithubClientID       string
	GithubClientSecret   string
	GithubAPIBaseURL     string
	GithubOAuthBaseURL   string
	PlatformOrg          string
	ServiceAccountLogin  string
	ServiceAccountToken  string
	PlatformInstallID    int64
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("FORGE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "TalentForge API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("events.channel_base", "talentforge")
	v.SetDefault("credential.ttl", "30m")
	v.SetDefault("github.api_base_url", "https://api.github.com")
	v.SetDefault("github.oauth_base_url", "https://github.com")

	ttlString := v.GetString("credential.ttl")
	if ttlString == "" {
		ttlString = "30m"
	}

	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid credential ttl: %w", err)
	}

	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		DatabaseURL:          v.GetString("database.url"),
		RedisURL:             v.GetString("redis.url"),
		NATSURL:              v.GetString("nats.url"),
		EventChannelBase:     v.GetString("events.channel_base"),
		JWTSecret:            v.GetString("jwt.secret"),
		TokenCipherKey:       v.GetString("token_cipher_key"),
		CredentialTTL:        ttl,
		GithubAppID:          v.GetString("github.app_id"),
		GithubPrivateKeyPath: v.GetString("github.private_key_path"),
		GithubClientID:       v.GetString("github.client_id"),
		GithubClientSecret:   v.GetString("github.client_secret"),
		GithubAPIBaseURL:     v.GetString("github.api_base_url"),
		GithubOAuthBaseURL:   v.GetString("github.oauth_base_url"),
		PlatformOrg:          v.GetString("platform.org"),
		ServiceAccountLogin:  v.GetString("platform.service_login"),
		ServiceAccountToken:  v.GetString("platform.service_token"),
		PlatformInstallID:    v.GetInt64("platform.installation_id"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.TokenCipherKey == "" {
		return Config{}, fmt.Errorf("token cipher key must be provided")
	}

	if cfg.GithubAppID == "" || cfg.GithubPrivateKeyPath == "" {
		return Config{}, fmt.Errorf("github app credentials must be provided")
	}

	return cfg, nil
}
