package store

import (
	"testing"

	"communitydms/api/internal/util"
)

func TestMigrationsRoundTripPostgres(t *testing.T) {
	_, dsn := openMigratedDB(t)
	logger := util.DiscardLogger()

	if err := RollbackMigrations(dsn, 0, logger); err != nil {
		t.Fatalf("apply down migrations: %v", err)
	}
	if err := ApplyMigrations(dsn, logger); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
	if err := ApplyMigrations(dsn, logger); err != nil {
		t.Fatalf("re-applying current migrations should be a no-op: %v", err)
	}
}
