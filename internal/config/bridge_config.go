package config

type BridgeConfig interface {
	GetGoogleClientID() string
	GetGoogleClientSecret() string
}

type Bridges struct{}

var _ BridgeConfig = Bridges{}

// GetGoogleClientID enables the Google OIDC bridge when set. Addresses on
// Google-hosted domains then skip the email loop entirely.
func (Bridges) GetGoogleClientID() string {
	return GetEnv("GOOGLE_CLIENT_ID", "")
}

func (Bridges) GetGoogleClientSecret() string {
	return GetEnv("GOOGLE_CLIENT_SECRET", "")
}
