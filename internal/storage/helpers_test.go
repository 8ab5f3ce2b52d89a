package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// testMigrationsPath is relative to this package directory
const testMigrationsPath = "../../migrations/postgres"

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// setupTestRedis starts an in-memory Redis and returns a cache bound to it
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCacheFromClient(client)
	t.Cleanup(func() { _ = cache.Close() })

	return cache, mr
}

// setupTestDB connects to TEST_DATABASE_URL, migrates it and empties every
// table. Skips the test when the variable is unset or the database is down.
func setupTestDB(t *testing.T) *PostgresDB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Skipping integration test - TEST_DATABASE_URL not set")
	}
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := NewPostgresDBFromURL(url, 20)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	require.NoError(t, RunMigrations(url, testMigrationsPath))

	_, err = db.Pool().Exec(testContext(t), `
		TRUNCATE scan_jobs, clan_session_tasks, player_tasks, ffa_game_tasks,
			win_records, player_registrations CASCADE
	`)
	require.NoError(t, err)

	return db
}
