package config

// Конфигурация хранилища исходных файлов
type Config struct {
	ConnectionString string `yaml:"storage_connection_string"`
	ContainerName    string `yaml:"storage_container"`
}
