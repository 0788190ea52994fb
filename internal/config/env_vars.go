package config

import (
	"fmt"
	"os"
)

const (
	portEnvVar = "PORT"
	appNameVar = "APP_NAME"
	baseURLVar = "BASE_URL"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Go Identity Broker")
}

// GetBaseURL returns the public base URL for the broker (e.g., "https://broker.example.com").
// This is used as the token issuer and to build confirmation links.
func (EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, "http://localhost:8080")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
