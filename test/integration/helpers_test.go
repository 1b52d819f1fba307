//go:build integration

package integration

import (
	"fmt"
	"os"
	"testing"
)

func pgConnString(t *testing.T) string {
	t.Helper()
	host := envOrDefault("DATASYNC_TEST_PG_HOST", "localhost")
	port := envOrDefault("DATASYNC_TEST_PG_PORT", "25432")
	db := envOrDefault("DATASYNC_TEST_PG_DATABASE", "datasync_test")
	user := envOrDefault("DATASYNC_TEST_PG_USER", "postgres")
	pass := envOrDefault("DATASYNC_TEST_PG_PASSWORD", "postgres")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, db)
}

func skipIfNoPostgres(t *testing.T) {
	t.Helper()
	if os.Getenv("DATASYNC_TEST_PG_HOST") == "" && os.Getenv("DATASYNC_TEST_PG_PORT") == "" {
		t.Skip("skipping: DATASYNC_TEST_PG_HOST/PORT not set")
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
