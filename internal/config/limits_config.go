package config

import (
	"strconv"
	"time"
)

type LimitsConfig interface {
	GetEmailRateLimit() RateLimit
	GetDomainRateLimit() RateLimit
}

// RateLimit is a count-per-window quota.
type RateLimit struct {
	Limit  int64
	Window time.Duration
}

type Limits struct{}

var _ LimitsConfig = Limits{}

// GetEmailRateLimit bounds authentication requests per normalized email address.
func (Limits) GetEmailRateLimit() RateLimit {
	return RateLimit{
		Limit:  int64(GetIntEnv("EMAIL_RATE_LIMIT", 5)),
		Window: GetDurationEnv("EMAIL_RATE_WINDOW", time.Minute),
	}
}

// GetDomainRateLimit bounds authentication requests per registrable domain.
func (Limits) GetDomainRateLimit() RateLimit {
	return RateLimit{
		Limit:  int64(GetIntEnv("DOMAIN_RATE_LIMIT", 50)),
		Window: GetDurationEnv("DOMAIN_RATE_WINDOW", time.Minute),
	}
}

func GetIntEnv(envVar string, defaultValue int) int {
	value, err := strconv.Atoi(GetEnv(envVar, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func GetDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(GetEnv(envVar, ""))
	if err != nil {
		return defaultValue
	}
	return value
}
