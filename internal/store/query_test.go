package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestPageClause(t *testing.T) {
	t.Run("zero page selects every row", func(t *testing.T) {
		args, clause := pageClause([]any{"doc-1"}, Page{})
		if clause != "" {
			t.Fatalf("expected no limit clause, got %q", clause)
		}
		if len(args) != 1 {
			t.Fatalf("expected args untouched, got %v", args)
		}
	})
	t.Run("limit and offset are numbered after existing args", func(t *testing.T) {
		args, clause := pageClause([]any{"doc-1", "pending"}, Page{Number: 3, Limit: 10})
		if clause != " LIMIT $3 OFFSET $4" {
			t.Fatalf("unexpected clause: %q", clause)
		}
		if len(args) != 4 || args[2] != 10 || args[3] != 20 {
			t.Fatalf("unexpected args: %v", args)
		}
	})
}

func TestTranslateTransactionConflicts(t *testing.T) {
	for _, code := range []string{"40P01", "40001"} {
		t.Run(code, func(t *testing.T) {
			err := translate("update document", fmt.Errorf("exec: %w", &pgconn.PgError{Code: code}))
			if !errors.Is(err, ErrTxConflict) {
				t.Fatalf("expected ErrTxConflict, got %v", err)
			}
		})
	}
	if err := translate("update document", &pgconn.PgError{Code: "22001"}); errors.Is(err, ErrTxConflict) {
		t.Fatalf("unexpected conflict mapping for %v", err)
	}
}
