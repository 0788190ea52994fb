package config

type Config interface {
	EnvConfig
	BrokerConfig
	LimitsConfig
	KeyConfig
	StorageConfig
	SMTPConfig
	BridgeConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Broker
	Limits
	Keys
	Storage
	SMTP
	Bridges
}

func New() Config {
	return mainConfig{}
}
