package config

import "time"

// Config exposes the runtime settings the auth server reads at startup.
type Config interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetTokenSecret() string
	GetTokenIssuer() string
	GetTokenAudience() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetAllowedOrigins() string
	GetSecureCookies() bool
}

type mainConfig struct {
	EnvVars
}

func New() Config {
	return mainConfig{}
}
