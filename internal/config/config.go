package config

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

type Config struct {
	DB      DBConfig
	MinIO   MinIOConfig
	Session SessionConfig
	Server  ServerConfig
	OAuth   OAuthConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type MinIOConfig struct {
	Endpoint       string
	PublicEndpoint string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
}

// SessionConfig carries the two independent token lifetimes: MaxAge bounds
// the absolute validity of a signed session token, UpdateAge is the minimum
// interval between full re-signs during refresh.
type SessionConfig struct {
	Secret    string
	MaxAge    time.Duration
	UpdateAge time.Duration
}

type ServerConfig struct {
	Port        string
	FrontendURL string
}

type OAuthConfig struct {
	Google OAuthProviderConfig
	GitHub OAuthProviderConfig
}

type OAuthProviderConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       string
}

// ClientConfig builds the oauth2 config for the named endpoint.
func (p OAuthProviderConfig) ClientConfig(endpoint oauth2.Endpoint) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Scopes:       strings.Split(p.Scopes, ","),
		Endpoint:     endpoint,
	}
}

func (c OAuthConfig) GoogleClientConfig(ctx context.Context) *oauth2.Config {
	return c.Google.ClientConfig(google.Endpoint)
}

func (c OAuthConfig) GitHubClientConfig(ctx context.Context) *oauth2.Config {
	return c.GitHub.ClientConfig(github.Endpoint)
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "authgate"),
			Password: getEnv("DB_PASSWORD", "authgate_secret"),
			Name:     getEnv("DB_NAME", "authgate"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		MinIO: MinIOConfig{
			Endpoint:       getEnv("MINIO_ENDPOINT", "localhost:9000"),
			PublicEndpoint: getEnv("MINIO_PUBLIC_ENDPOINT", getEnv("MINIO_ENDPOINT", "localhost:9000")),
			AccessKey:      getEnv("MINIO_ACCESS_KEY", "authgate"),
			SecretKey:      getEnv("MINIO_SECRET_KEY", "authgate_secret"),
			Bucket:         getEnv("MINIO_BUCKET", "avatars"),
			UseSSL:         getEnvAsBool("MINIO_USE_SSL", false),
		},
		Session: SessionConfig{
			Secret:    getEnv("AUTH_SECRET", "change-me-in-production"),
			MaxAge:    getEnvAsDuration("SESSION_MAX_AGE", 90*24*time.Hour),
			UpdateAge: getEnvAsDuration("SESSION_UPDATE_AGE", 24*time.Hour),
		},
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		},
		OAuth: OAuthConfig{
			Google: OAuthProviderConfig{
				Enabled:      getEnvAsBool("GOOGLE_OAUTH_ENABLED", false),
				ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
				ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
				Scopes:       getEnv("GOOGLE_SCOPES", "openid,email,profile"),
			},
			GitHub: OAuthProviderConfig{
				Enabled:      getEnvAsBool("GITHUB_OAUTH_ENABLED", false),
				ClientID:     getEnv("GITHUB_CLIENT_ID", ""),
				ClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("GITHUB_REDIRECT_URL", ""),
				Scopes:       getEnv("GITHUB_SCOPES", "read:user,user:email"),
			},
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
