package database

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert token: %w", &pgconn.PgError{Code: "23505"})
	if !IsUniqueViolation(err) {
		t.Error("expected unique violation")
	}
	if IsUniqueViolation(errors.New("boom")) {
		t.Error("plain error is not a unique violation")
	}
	if !IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("expected fk violation")
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	sql, err := migrationsFS.ReadFile("migrations/001_schema.sql")
	if err != nil {
		t.Fatalf("read embedded schema: %v", err)
	}
	for _, table := range []string{"students", "transactions", "tokens", "co_transactions", "payment_orders"} {
		if !strings.Contains(string(sql), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("schema missing table %s", table)
		}
	}
	if !strings.Contains(string(sql), "transaction_id UUID NOT NULL UNIQUE") {
		t.Error("tokens.transaction_id must be unique")
	}
}
