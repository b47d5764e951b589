package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"leasio/internal/model"
)

type Config struct {
	DBUser        string
	DBPass        string
	DBHost        string
	DBPort        string
	DBName        string
	SSLMode       string
	RedisHost     string
	RedisPort     string
	NatsHost      string
	NatsPort      string
	ApiPort       string
	ApiEnabled    string
	StoreProvider string
	Manager       string
	RegistryOwner string
	EngineKind    model.Kind
	CatalogFile   string
	PauseEnabled  bool
	Env           string
}

// New loads and validates configuration from environment variables.
// The HTTP server is optional: if LEASIO_API_ENABLED != "true", ApiAddr()
// returns an error and the HTTP server simply won't start.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:        os.Getenv("LEASIO_POSTGRES_USER"),
		DBPass:        os.Getenv("LEASIO_POSTGRES_PASSWORD"),
		DBHost:        os.Getenv("LEASIO_POSTGRES_HOST"),
		DBPort:        os.Getenv("LEASIO_POSTGRES_PORT"),
		DBName:        os.Getenv("LEASIO_POSTGRES_DB"),
		SSLMode:       os.Getenv("LEASIO_POSTGRES_SSLMODE"),
		RedisHost:     os.Getenv("LEASIO_REDIS_HOST"),
		RedisPort:     os.Getenv("LEASIO_REDIS_PORT"),
		NatsHost:      os.Getenv("LEASIO_NATS_HOST"),
		NatsPort:      os.Getenv("LEASIO_NATS_PORT"),
		ApiPort:       os.Getenv("LEASIO_API_PORT"),
		ApiEnabled:    os.Getenv("LEASIO_API_ENABLED"),
		StoreProvider: getEnv("LEASIO_STORE_PROVIDER", "postgres"),
		Manager:       os.Getenv("LEASIO_MANAGER_ACCOUNT"),
		RegistryOwner: os.Getenv("LEASIO_REGISTRY_OWNER"),
		EngineKind:    model.Kind(getEnv("LEASIO_ENGINE_KIND", string(model.KindVirtualMachine))),
		CatalogFile:   os.Getenv("LEASIO_CATALOG_FILE"),
		PauseEnabled:  getEnv("LEASIO_PAUSE_ENABLED", "true") == "true",
		Env:           getEnv("LEASIO_ENV", "prod"),
	}

	// Required: the administrative accounts are fixed at construction.
	if cfg.Manager == "" {
		return nil, fmt.Errorf("missing required env: LEASIO_MANAGER_ACCOUNT")
	}
	if cfg.RegistryOwner == "" {
		return nil, fmt.Errorf("missing required env: LEASIO_REGISTRY_OWNER")
	}

	switch cfg.EngineKind {
	case model.KindVirtualMachine, model.KindVolume, model.KindOther:
	default:
		return nil, fmt.Errorf("invalid engine kind %q, must be vm, volume or other", cfg.EngineKind)
	}

	switch cfg.StoreProvider {
	case "postgres":
		if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
			return nil, fmt.Errorf("missing required env for database: LEASIO_POSTGRES_USER/HOST/DB/SSLMODE")
		}
		if cfg.RedisHost == "" || cfg.RedisPort == "" {
			return nil, fmt.Errorf("missing required env for redis: LEASIO_REDIS_HOST/PORT")
		}
	case "memory":
		// Volatile store for local development; no database or cache needed.
	default:
		return nil, fmt.Errorf("invalid store provider %q, must be 'postgres' or 'memory'", cfg.StoreProvider)
	}

	// Required: the event bus.
	if cfg.NatsHost == "" || cfg.NatsPort == "" {
		return nil, fmt.Errorf("missing required env for nats: LEASIO_NATS_HOST/PORT")
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

// ApiAddr returns the HTTP listen address if the API is enabled.
// Returns an error if LEASIO_API_ENABLED != "true" — callers should skip
// starting the HTTP server.
func (c *Config) ApiAddr() (string, error) {
	if c.ApiEnabled == "true" {
		if c.ApiPort == "" {
			return "", fmt.Errorf("LEASIO_API_PORT is required when LEASIO_API_ENABLED=true")
		}
		return ":" + c.ApiPort, nil
	}
	return "", fmt.Errorf("HTTP API is disabled (LEASIO_API_ENABLED != true)")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}
