package config

import (
	"strings"
	"time"
)

type BrokerConfig interface {
	GetSessionTTL() time.Duration
	GetCodeLength() int
	GetAllowedDomains() []string
	GetBlockedDomains() []string
	GetAllowedDomainsOnly() bool
	GetTLDListFile() string
	GetSuffixListFile() string
}

type Broker struct{}

var _ BrokerConfig = Broker{}

// GetSessionTTL returns how long an unconfirmed authentication session is kept.
func (Broker) GetSessionTTL() time.Duration {
	return GetDurationEnv("SESSION_TTL", 15*time.Minute)
}

// GetCodeLength returns the number of digits in the one-time code.
func (Broker) GetCodeLength() int {
	return GetIntEnv("CODE_LENGTH", 6)
}

func (Broker) GetAllowedDomains() []string {
	return splitList(GetEnv("ALLOWED_DOMAINS", ""))
}

func (Broker) GetBlockedDomains() []string {
	return splitList(GetEnv("BLOCKED_DOMAINS", ""))
}

func (Broker) GetAllowedDomainsOnly() bool {
	return GetEnv("ALLOWED_DOMAINS_ONLY", "false") == "true"
}

// GetTLDListFile returns the path to the IANA TLD list (one TLD per line).
func (Broker) GetTLDListFile() string {
	return GetEnv("TLD_LIST_FILE", "")
}

// GetSuffixListFile returns the path to the public suffix list data file.
func (Broker) GetSuffixListFile() string {
	return GetEnv("SUFFIX_LIST_FILE", "")
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			list = append(list, p)
		}
	}
	return list
}
