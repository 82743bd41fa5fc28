// Package testutil provides shared utilities for tests.
package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/pideploy/pideploy/internal/config"
)

// SetEnv sets an environment variable for the duration of a test.
func SetEnv(t *testing.T, key, value string) {
	t.Helper()
	t.Setenv(key, value)
}

// SkipIfShort skips long-running tests when -short flag is used.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping test in short mode")
	}
}

// SkipUnlessEnv skips tests that need an external service unless key=true,
// e.g. TEST_POSTGRES, TEST_REDIS or TEST_KAFKA.
func SkipUnlessEnv(t *testing.T, key string) {
	t.Helper()
	if os.Getenv(key) != "true" {
		t.Skipf("Skipping: %s not set. Run with docker-compose up -d", key)
	}
}

// GetEnvOrDefault reads an environment variable with a fallback.
func GetEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// PostgresConfig returns the run history database used by TEST_POSTGRES tests.
func PostgresConfig() *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Host:            GetEnvOrDefault("DB_HOST", "localhost"),
		Port:            5432,
		User:            GetEnvOrDefault("DB_USER", "pideploy"),
		Password:        GetEnvOrDefault("DB_PASSWORD", "pideploy_dev_password"),
		DBName:          GetEnvOrDefault("DB_NAME", "pideploy"),
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}
