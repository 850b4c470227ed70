package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/agenda/internal/calendar"
)

// Storage drivers accepted by AGENDA_STORAGE_DRIVER.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config captures environment driven configuration values for the agenda.
type Config struct {
	StorageDriver      string
	SQLitePath         string
	SQLitePollInterval time.Duration
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	StorageKey         string
	WriteLatency       time.Duration
	Timezone           string
	LogLevel           string
	HTTPAddr           string
}

// Load parses configuration values from the current process environment.
//
// Optional fields fall back to defaults. Every missing or malformed value is
// collected and reported in a single error.
func Load() (Config, error) {
	cfg := Config{
		StorageDriver:      DriverSQLite,
		SQLitePath:         "agenda.db",
		SQLitePollInterval: 500 * time.Millisecond,
		StorageKey:         "agenda.bookings",
		WriteLatency:       time.Second,
		Timezone:           calendar.DefaultTimezone,
		LogLevel:           "info",
		HTTPAddr:           ":8080",
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 4)

	if driver := strings.ToLower(strings.TrimSpace(os.Getenv("AGENDA_STORAGE_DRIVER"))); driver != "" {
		switch driver {
		case DriverMemory, DriverSQLite, DriverRedis:
			cfg.StorageDriver = driver
		default:
			invalid = append(invalid, "AGENDA_STORAGE_DRIVER")
		}
	}

	if path := strings.TrimSpace(os.Getenv("AGENDA_SQLITE_PATH")); path != "" {
		cfg.SQLitePath = path
	}

	if pollValue := strings.TrimSpace(os.Getenv("AGENDA_SQLITE_POLL_INTERVAL")); pollValue != "" {
		poll, err := time.ParseDuration(pollValue)
		if err != nil || poll <= 0 {
			invalid = append(invalid, "AGENDA_SQLITE_POLL_INTERVAL")
		} else {
			cfg.SQLitePollInterval = poll
		}
	}

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("AGENDA_REDIS_ADDR"))
	if cfg.StorageDriver == DriverRedis && cfg.RedisAddr == "" {
		missing = append(missing, "AGENDA_REDIS_ADDR")
	}
	cfg.RedisPassword = os.Getenv("AGENDA_REDIS_PASSWORD")

	if dbValue := strings.TrimSpace(os.Getenv("AGENDA_REDIS_DB")); dbValue != "" {
		db, err := strconv.Atoi(dbValue)
		if err != nil || db < 0 {
			invalid = append(invalid, "AGENDA_REDIS_DB")
		} else {
			cfg.RedisDB = db
		}
	}

	if key := strings.TrimSpace(os.Getenv("AGENDA_STORAGE_KEY")); key != "" {
		cfg.StorageKey = key
	}

	if latencyValue := strings.TrimSpace(os.Getenv("AGENDA_WRITE_LATENCY")); latencyValue != "" {
		latency, err := time.ParseDuration(latencyValue)
		if err != nil || latency < 0 {
			invalid = append(invalid, "AGENDA_WRITE_LATENCY")
		} else {
			cfg.WriteLatency = latency
		}
	}

	if tz := strings.TrimSpace(os.Getenv("AGENDA_TIMEZONE")); tz != "" {
		if !calendar.IsValidTimezone(tz) {
			invalid = append(invalid, "AGENDA_TIMEZONE")
		} else {
			cfg.Timezone = tz
		}
	}

	if level := strings.ToLower(strings.TrimSpace(os.Getenv("AGENDA_LOG_LEVEL"))); level != "" {
		switch level {
		case "debug", "info", "warn", "warning", "error":
			cfg.LogLevel = level
		default:
			invalid = append(invalid, "AGENDA_LOG_LEVEL")
		}
	}

	if addr := strings.TrimSpace(os.Getenv("AGENDA_HTTP_ADDR")); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			invalid = append(invalid, "AGENDA_HTTP_ADDR")
		} else {
			cfg.HTTPAddr = addr
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
