// Package config loads application settings from the environment and the
// sample, mapping and connection files used by the CLI.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BartekS5/fieldmap/internal/sink"
	"github.com/BartekS5/fieldmap/internal/validation"
)

const (
	defaultMongoDatabase = "fieldmap"
	defaultTestRate      = 1.0
)

// Config holds all configuration for the application, typically loaded from
// environment variables (populated from .env in main.go).
type Config struct {
	Sink               string
	MongoConnString    string
	MongoDatabase      string
	SQLConnString      string
	PostgresConnString string
	ValidationDebounce time.Duration
	LogFile            string
	LogLevel           string
	// ConnectionTestRate is the number of connection tests allowed per second.
	ConnectionTestRate float64
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Sink:               strings.ToLower(envOr("FIELDMAP_SINK", sink.KindStdout)),
		MongoConnString:    os.Getenv("MONGO_CONNECTION_STRING"),
		MongoDatabase:      envOr("MONGO_DATABASE", defaultMongoDatabase),
		SQLConnString:      os.Getenv("SQL_CONNECTION_STRING"),
		PostgresConnString: os.Getenv("POSTGRES_CONNECTION_STRING"),
		ValidationDebounce: validation.DefaultDebounce,
		LogFile:            os.Getenv("LOG_FILE"),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		ConnectionTestRate: defaultTestRate,
	}

	if v := os.Getenv("VALIDATION_DEBOUNCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("VALIDATION_DEBOUNCE must be a non-negative duration, got %q", v)
		}
		cfg.ValidationDebounce = d
	}

	if v := os.Getenv("CONNECTION_TEST_RATE"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			return nil, fmt.Errorf("CONNECTION_TEST_RATE must be a positive number, got %q", v)
		}
		cfg.ConnectionTestRate = r
	}

	return cfg, nil
}

// SinkConnString returns the connection string of the selected sink. It
// fails when a database sink is selected without one.
func (c *Config) SinkConnString() (string, error) {
	var conn, name string
	switch c.Sink {
	case sink.KindStdout:
		return "", nil
	case sink.KindMongo:
		conn, name = c.MongoConnString, "MONGO_CONNECTION_STRING"
	case sink.KindSQLServer:
		conn, name = c.SQLConnString, "SQL_CONNECTION_STRING"
	case sink.KindPostgres:
		conn, name = c.PostgresConnString, "POSTGRES_CONNECTION_STRING"
	default:
		return "", fmt.Errorf("FIELDMAP_SINK %q is not one of stdout, mongo, sqlserver, postgres", c.Sink)
	}
	if conn == "" {
		return "", fmt.Errorf("%s environment variable not set", name)
	}
	return conn, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
