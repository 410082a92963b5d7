package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	authConfig "github.com/iurnickita/cashback/internal/auth/config"
	handlerConfig "github.com/iurnickita/cashback/internal/handler/config"
	jobsConfig "github.com/iurnickita/cashback/internal/jobs/config"
	lockConfig "github.com/iurnickita/cashback/internal/lock/config"
	loggerConfig "github.com/iurnickita/cashback/internal/logger/config"
	serviceConfig "github.com/iurnickita/cashback/internal/service/config"
	storageConfig "github.com/iurnickita/cashback/internal/storage/config"
	storeConfig "github.com/iurnickita/cashback/internal/store/config"
)

type Config struct {
	Handler handlerConfig.Config `yaml:",inline"`
	Service serviceConfig.Config `yaml:",inline"`
	Store   storeConfig.Config   `yaml:",inline"`
	Logger  loggerConfig.Config  `yaml:",inline"`
	Auth    authConfig.Config    `yaml:",inline"`
	Storage storageConfig.Config `yaml:",inline"`
	Lock    lockConfig.Config    `yaml:",inline"`
	Jobs    jobsConfig.Config    `yaml:",inline"`
}

var ErrNoDatabase = errors.New("database uri is not set")

func defaults() Config {
	var cfg Config
	cfg.Handler.ServerAddr = "localhost:8080"
	cfg.Logger.LogLevel = "info"
	cfg.Auth.TokenTTL = 24 * time.Hour
	cfg.Storage.ContainerName = "uploads"
	cfg.Lock.TTL = 30 * time.Second
	cfg.Jobs.JanitorSchedule = "@every 5m"
	cfg.Jobs.JanitorStaleAfter = 15 * time.Minute
	cfg.Service.MaxUploadSize = 20 << 20
	return cfg
}

// GetConfig собирает конфигурацию: умолчания, файл YAML, флаги, переменные окружения.
func GetConfig() (Config, error) {
	// локальный .env не обязателен
	_ = godotenv.Load()
	return load(os.Args[0], os.Args[1:], os.Getenv)
}

func load(name string, args []string, getenv func(string) string) (Config, error) {
	cfg := defaults()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configFile := fs.String("c", getenv("CONFIG_FILE"), "config file (yaml)")
	runAddr := fs.String("a", "", "server address")
	databaseURI := fs.String("d", "", "database uri")
	extractionAddr := fs.String("r", "", "extraction system address")
	logLevel := fs.String("l", "", "log level")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *configFile != "" {
		raw, err := os.ReadFile(*configFile)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err = yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	// флаги
	setString(&cfg.Handler.ServerAddr, *runAddr)
	setString(&cfg.Store.DBDsn, *databaseURI)
	setString(&cfg.Service.ExtractionAddr, *extractionAddr)
	setString(&cfg.Logger.LogLevel, *logLevel)

	// переменные окружения
	setString(&cfg.Handler.ServerAddr, getenv("RUN_ADDRESS"))
	setString(&cfg.Store.DBDsn, getenv("DATABASE_URI"))
	setString(&cfg.Service.ExtractionAddr, getenv("EXTRACTION_SYSTEM_ADDRESS"))
	setString(&cfg.Logger.LogLevel, getenv("LOG_LEVEL"))
	setString(&cfg.Auth.TokenSecret, getenv("TOKEN_SECRET"))
	setString(&cfg.Storage.ConnectionString, getenv("STORAGE_CONNECTION_STRING"))
	setString(&cfg.Storage.ContainerName, getenv("STORAGE_CONTAINER"))
	setString(&cfg.Lock.RedisAddr, getenv("REDIS_ADDRESS"))
	setString(&cfg.Jobs.JanitorSchedule, getenv("JANITOR_SCHEDULE"))
	if err := setDuration(&cfg.Lock.TTL, "LOCK_TTL", getenv); err != nil {
		return Config{}, err
	}
	if err := setDuration(&cfg.Jobs.JanitorStaleAfter, "JANITOR_STALE_AFTER", getenv); err != nil {
		return Config{}, err
	}
	if v := getenv("MAX_UPLOAD_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("MAX_UPLOAD_SIZE: invalid value %q", v)
		}
		cfg.Service.MaxUploadSize = n
	}
	cfg.Handler.MaxUploadSize = cfg.Service.MaxUploadSize

	if cfg.Store.DBDsn == "" {
		return Config{}, ErrNoDatabase
	}
	if cfg.Auth.TokenSecret == "" {
		return Config{}, errors.New("token secret is not set")
	}
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string, getenv func(string) string) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
