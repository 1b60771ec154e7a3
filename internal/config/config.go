// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Authorization mode values for AUTH_MODE.
const (
	AuthModeStrict  = "strict"
	AuthModeRelaxed = "relaxed"
)

// Config holds the configuration for the three store connections and the
// HTTP API.
type Config struct {
	MongoURI      string // document store connection string (default mongodb://localhost:27017)
	MongoDatabase string // document store database name (default "sensorgrid")

	Neo4jURI      string // graph store bolt URI (default bolt://localhost:7687)
	Neo4jUser     string
	Neo4jPassword string

	CassandraHosts    []string // column store contact points (default localhost)
	CassandraKeyspace string   // keyspace for reading projections (default "readings")

	ListenAddr string // HTTP listen address (default ":8080")
	LogLevel   string // log level: debug, info, warn, error (default "info")

	// AuthMode selects the ingestion authorization strategy: "strict"
	// requires geography-scoped permission checks, "relaxed" checks the
	// permission alone.
	AuthMode string

	// BatchFanOutAll makes the batch ingest path fan every reading out to
	// all four projections instead of the per-sensor projection only.
	BatchFanOutAll bool

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		MongoURI:          os.Getenv("MONGO_URI"),
		MongoDatabase:     os.Getenv("MONGO_DATABASE"),
		Neo4jURI:          os.Getenv("NEO4J_URI"),
		Neo4jUser:         os.Getenv("NEO4J_USER"),
		Neo4jPassword:     os.Getenv("NEO4J_PASSWORD"),
		CassandraKeyspace: os.Getenv("CASSANDRA_KEYSPACE"),
		ListenAddr:        os.Getenv("LISTEN_ADDR"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		AuthMode:          strings.ToLower(os.Getenv("AUTH_MODE")),
		BatchFanOutAll:    parseBoolEnvDefault("ING_BATCH_FANOUT_ALL", false),
	}

	if v := os.Getenv("CASSANDRA_HOSTS"); v != "" {
		hosts := strings.Split(v, ",")
		for i := range hosts {
			hosts[i] = strings.TrimSpace(hosts[i])
		}
		cfg.CassandraHosts = compactNonEmpty(hosts)
	}

	// Defaults
	if cfg.MongoURI == "" {
		cfg.MongoURI = "mongodb://localhost:27017"
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = "sensorgrid"
	}
	if cfg.Neo4jURI == "" {
		cfg.Neo4jURI = "bolt://localhost:7687"
	}
	if cfg.Neo4jUser == "" {
		cfg.Neo4jUser = "neo4j"
	}
	if len(cfg.CassandraHosts) == 0 {
		cfg.CassandraHosts = []string{"localhost"}
	}
	if cfg.CassandraKeyspace == "" {
		cfg.CassandraKeyspace = "readings"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	switch cfg.AuthMode {
	case AuthModeStrict, AuthModeRelaxed:
	case "":
		cfg.AuthMode = AuthModeStrict
	default:
		return nil, fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeStrict, AuthModeRelaxed, cfg.AuthMode)
	}

	if cfg.Neo4jPassword == "" {
		cfg.Warnings = append(cfg.Warnings, "NEO4J_PASSWORD not set — connecting without credentials")
	}
	if cfg.AuthMode == AuthModeRelaxed {
		cfg.Warnings = append(cfg.Warnings, "AUTH_MODE=relaxed — geographic scoping of writes is disabled")
	}

	return cfg, nil
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
