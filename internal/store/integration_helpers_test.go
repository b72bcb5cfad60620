package store

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"communitydms/api/internal/util"
)

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("DMS_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("DMS_TEST_DATABASE_URL is not set")
	}
	return dsn
}

// openMigratedDB resets the public schema and applies every migration.
func openMigratedDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := getTestDatabaseURL(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn, PoolOptions{})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := ApplyMigrations(dsn, util.DiscardLogger()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db, dsn
}

func seedUser(t *testing.T, s *PostgresStore, id, role string) User {
	t.Helper()
	u := User{ID: id, Email: id + "@example.org", PasswordHash: "x", FirstName: "Test", LastName: id, Role: role, Active: true}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return u
}
