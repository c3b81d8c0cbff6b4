package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/PratikDhanave/event-pipeline/internal/bus"
	"github.com/PratikDhanave/event-pipeline/internal/logging"
)

// Config contains runtime configuration required by the collector.
type Config struct {
	DBURL       string
	APIKeys     map[string]string // apiKey -> tenantID
	Addr        string
	NATSURL     string // empty disables the bus
	NATSSubject string
	CORSOrigin  string
	LogLevel    slog.Level
}

// Load reads required values from environment variables.
// API_KEYS format: "tenant1:key1,tenant2:key2"
func Load() (Config, error) {
	dbURL := strings.TrimSpace(os.Getenv("DB_URL"))
	if dbURL == "" {
		return Config{}, errors.New("DB_URL required")
	}

	apiKeys, err := parseAPIKeys(os.Getenv("API_KEYS"))
	if err != nil {
		return Config{}, err
	}

	// Local dev fallback so the service runs out-of-the-box.
	if len(apiKeys) == 0 {
		apiKeys["tenant-key-123"] = "tenant1"
	}

	level, err := logging.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	return Config{
		DBURL:       dbURL,
		APIKeys:     apiKeys,
		Addr:        envOrDefault("ADDR", ":8080"),
		NATSURL:     strings.TrimSpace(os.Getenv("NATS_URL")),
		NATSSubject: envOrDefault("NATS_SUBJECT", bus.DefaultSubject),
		CORSOrigin:  envOrDefault("CORS_ORIGIN", "*"),
		LogLevel:    level,
	}, nil
}

func parseAPIKeys(raw string) (map[string]string, error) {
	apiKeys := map[string]string{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return apiKeys, nil
	}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			return nil, errors.New(`API_KEYS must be "tenant:key,tenant:key"`)
		}
		tenant := strings.TrimSpace(parts[0])
		key := strings.TrimSpace(parts[1])
		if tenant == "" || key == "" {
			return nil, errors.New(`API_KEYS must be "tenant:key,tenant:key"`)
		}
		apiKeys[key] = tenant
	}
	return apiKeys, nil
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
