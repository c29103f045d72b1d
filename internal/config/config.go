package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis (optional: fire guard + rate limiting)
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Engine
	ScanInterval    time.Duration // cadence of the alert scan
	DispatchTimeout time.Duration // deadline per outbound push

	// Push provider: "onesignal", "sns" or "log"
	PushProvider    string
	OneSignalAppID  string
	OneSignalAPIKey string
	AWSRegion       string
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		DBHost:    "localhost",
		DBPort:    5432,
		DBUser:    "lembra",
		DBName:    "lembra",
		DBSSLMode: "disable",

		RedisHost: "localhost",
		RedisPort: 6379,

		ScanInterval:    time.Minute,
		DispatchTimeout: 10 * time.Second,

		PushProvider: "log",
		AWSRegion:    "us-east-1",
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	if interval := os.Getenv("SCAN_INTERVAL_SECONDS"); interval != "" {
		s, err := strconv.Atoi(interval)
		if err != nil || s <= 0 {
			return nil, fmt.Errorf("invalid SCAN_INTERVAL_SECONDS: %q", interval)
		}
		cfg.ScanInterval = time.Duration(s) * time.Second
	}

	if timeout := os.Getenv("DISPATCH_TIMEOUT_SECONDS"); timeout != "" {
		s, err := strconv.Atoi(timeout)
		if err != nil || s <= 0 {
			return nil, fmt.Errorf("invalid DISPATCH_TIMEOUT_SECONDS: %q", timeout)
		}
		cfg.DispatchTimeout = time.Duration(s) * time.Second
	}

	if provider := os.Getenv("PUSH_PROVIDER"); provider != "" {
		switch provider {
		case "onesignal", "sns", "log":
			cfg.PushProvider = provider
		default:
			return nil, fmt.Errorf("invalid PUSH_PROVIDER: %q (onesignal, sns or log)", provider)
		}
	}

	if appID := os.Getenv("ONESIGNAL_APP_ID"); appID != "" {
		cfg.OneSignalAppID = appID
	}

	if apiKey := os.Getenv("ONESIGNAL_API_KEY"); apiKey != "" {
		cfg.OneSignalAPIKey = apiKey
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	return cfg, nil
}
