package config

// Конфигурация сервиса
type Config struct {
	ExtractionAddr string `yaml:"extraction_system_address"`
	MaxUploadSize  int64  `yaml:"max_upload_size"`
}
