package config

// Конфигурация HTTP-сервера
type Config struct {
	ServerAddr    string `yaml:"run_address"`
	MaxUploadSize int64  `yaml:"-"`
}
