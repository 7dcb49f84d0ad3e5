package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	portEnvVar    = "PORT"
	appNameVar    = "APP_NAME"
	tokenSecret   = "TOKEN_SECRET"
	tokenIssuer   = "TOKEN_ISSUER"
	tokenAudience = "TOKEN_AUDIENCE"
)

type EnvVars struct{}

var _ Config = mainConfig{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "My Many Books Auth")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetTokenSecret() string {
	return GetEnv(tokenSecret, "dev-only-secret-change-me")
}

func (EnvVars) GetTokenIssuer() string {
	return GetEnv(tokenIssuer, "mymanybooks")
}

func (EnvVars) GetTokenAudience() string {
	return GetEnv(tokenAudience, "mymanybooks-api")
}

// GetAccessTokenExpiry is the lifetime of issued identity and access tokens,
// reported to clients as the relative expiresIn.
func (EnvVars) GetAccessTokenExpiry() time.Duration {
	return time.Duration(GetEnvAsInt("ACCESS_TOKEN_EXPIRY_SECONDS", 3600)) * time.Second
}

// GetRefreshTokenExpiry is how long the httpOnly refresh cookie and its
// server-side record stay usable.
func (EnvVars) GetRefreshTokenExpiry() time.Duration {
	return time.Duration(GetEnvAsInt("REFRESH_TOKEN_EXPIRY_DAYS", 30)) * 24 * time.Hour
}

func (EnvVars) GetAllowedOrigins() string {
	return GetEnv("ALLOWED_ORIGINS", "*")
}

func (e EnvVars) GetSecureCookies() bool {
	return e.GetEnv() == "PROD"
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvAsInt(envVar string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return value
}
