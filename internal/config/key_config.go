package config

import "time"

type KeyConfig interface {
	GetKeyMode() string
	GetKeyFile() string
	GetKeyRotationInterval() time.Duration
	GetKeyGracePeriod() time.Duration
}

type Keys struct{}

var _ KeyConfig = Keys{}

// GetKeyMode selects the signing key lifecycle: "rotating" generates keys
// in-process and replaces them on a timer, "manual" loads a single key
// from GetKeyFile and never rotates.
func (Keys) GetKeyMode() string {
	return GetEnv("KEY_MODE", "rotating")
}

func (Keys) GetKeyFile() string {
	return GetEnv("KEY_FILE", "")
}

func (Keys) GetKeyRotationInterval() time.Duration {
	return GetDurationEnv("KEY_ROTATION_INTERVAL", time.Hour)
}

// GetKeyGracePeriod returns how long retired keys stay in the public key
// set so tokens signed just before a rotation remain verifiable.
func (Keys) GetKeyGracePeriod() time.Duration {
	return GetDurationEnv("KEY_GRACE_PERIOD", time.Hour)
}
