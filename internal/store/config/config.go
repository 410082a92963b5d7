package config

type Config struct {
	DBDsn string `yaml:"database_uri"`
}
