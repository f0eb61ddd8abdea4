package app

import (
	"strings"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/cache"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/database"
)

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// OpenConfig converts the database section into database.Config. Host parameters are taken
// from the block matching the selected driver.
func (c DatabaseConfig) OpenConfig() database.Config {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	cfg := database.Config{
		Driver: driver,
		Path:   strings.TrimSpace(c.Path),
		DSN:    strings.TrimSpace(c.DSN),
	}

	var block DBAuthConfig
	switch driver {
	case "postgres", "postgresql":
		block = c.Postgres
	case "mysql":
		block = c.MySQL
	default:
		return cfg
	}

	cfg.Host = strings.TrimSpace(block.Host)
	cfg.Port = block.Port
	cfg.Name = strings.TrimSpace(block.Database)
	cfg.User = strings.TrimSpace(block.Username)
	cfg.Password = block.Password
	return cfg
}
