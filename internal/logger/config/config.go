package config

// Конфигурация логера
type Config struct {
	LogLevel string `yaml:"log_level"`
}
