package config

type StorageConfig interface {
	GetStorageBackend() string
	GetSQLitePath() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type Storage struct{}

var _ StorageConfig = Storage{}

// GetStorageBackend selects the session/rate-limit store: "memory",
// "sqlite" or "redis".
func (Storage) GetStorageBackend() string {
	return GetEnv("STORAGE_BACKEND", "memory")
}

func (Storage) GetSQLitePath() string {
	return GetEnv("SQLITE_PATH", "./data/broker.db")
}

func (Storage) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Storage) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Storage) GetRedisDB() int {
	return GetIntEnv("REDIS_DB", 0)
}
