package config

import "time"

// Конфигурация авторизации
type Config struct {
	TokenSecret string        `yaml:"token_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
}
