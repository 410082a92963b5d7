package config

import "time"

// Конфигурация фоновых задач
type Config struct {
	JanitorSchedule   string        `yaml:"janitor_schedule"`
	JanitorStaleAfter time.Duration `yaml:"janitor_stale_after"`
}
