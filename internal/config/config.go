// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port           int
	Host           string
	RequestTimeout time.Duration
}

// DatabaseConfig holds database configuration settings
type DatabaseConfig struct {
	Type string // "mongo" or "memory"
	URI  string
	Name string

	// SeedUsers are created at startup by the memory store.
	SeedUsers []string
}

// Config holds the complete application configuration
type Config struct {
	Server         *ServerConfig
	Database       *DatabaseConfig
	JWTSecret      string
	AllowedOrigins []string
	Debug          bool
	LogLevel       string
}

// Addr is the listen address for the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DefaultConfig provides default server settings
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Port:           8080,
		Host:           "0.0.0.0",
		RequestTimeout: 5 * time.Second,
	}
}

// DefaultDatabaseConfig provides default database settings
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Type: "mongo",
		Name: "connectyou",
	}
}

// loadEnvFile tries the usual .env locations. A missing file is fine.
func loadEnvFile() {
	envLocations := []string{
		".env",          // Current directory
		"../../.env",    // Project root when running from cmd/engine
		"../../../.env", // Even higher directory
	}
	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			return
		}
	}
}

// LoadConfig loads configuration from environment variables and applies defaults
func LoadConfig() (*Config, error) {
	loadEnvFile()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv. Split out so tests need not touch the
// process environment.
func FromEnv(getenv func(string) string) (*Config, error) {
	serverConfig := DefaultConfig()

	if portStr := getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid PORT %q", portStr)
		}
		serverConfig.Port = port
	}

	if host := getenv("HOST"); host != "" {
		serverConfig.Host = host
	}

	if timeout := getenv("REQUEST_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid REQUEST_TIMEOUT %q", timeout)
		}
		serverConfig.RequestTimeout = d
	}

	dbConfig := DefaultDatabaseConfig()
	if dbType := getenv("DB_TYPE"); dbType != "" {
		dbConfig.Type = strings.ToLower(dbType)
	}
	if name := getenv("MONGODB_DATABASE"); name != "" {
		dbConfig.Name = name
	}

	switch dbConfig.Type {
	case "mongo":
		dbConfig.URI = getenv("MONGODB_URI")
		if dbConfig.URI == "" {
			return nil, fmt.Errorf("MONGODB_URI environment variable is required when DB_TYPE is mongo")
		}
	case "memory":
		// Local runs and demos only; nothing survives a restart.
		dbConfig.SeedUsers = splitList(getenv("SEED_USERS"))
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q (want mongo or memory)", dbConfig.Type)
	}

	config := &Config{
		Server:         serverConfig,
		Database:       dbConfig,
		JWTSecret:      getenv("JWT_SECRET"),
		AllowedOrigins: []string{"*"}, // Default to allow all origins
		LogLevel:       getEnvOrDefault(getenv, "LOG_LEVEL", "info"),
	}
	if config.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	if origins := getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = splitList(origins)
	}

	if debug := getenv("DEBUG"); debug == "true" {
		config.Debug = true
	}

	return config, nil
}

// Helper function to get environment variable with default fallback
func getEnvOrDefault(getenv func(string) string, key, defaultValue string) string {
	if value := getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
