package e2e

import (
	"fmt"
	"os"
	"testing"
)

// TestMain prints the environment the suite will run against. Every test
// skips itself when the infrastructure it needs is not reachable, so the
// suite is safe to run anywhere.
func TestMain(m *testing.M) {
	fmt.Println("=== vecimport end-to-end suite ===")
	fmt.Printf("REDIS_URL:         %s\n", getEnvOrDefault("REDIS_URL", "redis://localhost:6379 (default)"))
	fmt.Printf("VECIMPORT_BINARY:  %s\n", getEnvOrDefault("VECIMPORT_BINARY", "(unset, daemon tests skipped)"))
	fmt.Println()

	os.Exit(m.Run())
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
