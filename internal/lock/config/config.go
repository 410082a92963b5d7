package config

import "time"

// Конфигурация блокировок кампаний
type Config struct {
	RedisAddr string        `yaml:"redis_address"`
	TTL       time.Duration `yaml:"lock_ttl"`
}
