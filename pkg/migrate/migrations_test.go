package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := ValidateFS(Embedded()); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}

func TestPaymentTransactionsMigrationEnforcesLedgerRules(t *testing.T) {
	content := readMigration(t, "_create_payment_transactions.sql")
	checks := []string{
		"CONSTRAINT payment_transactions_txn_ref_key UNIQUE (txn_ref)",
		"CHECK (status IN ('pending', 'processing', 'success', 'failed', 'cancelled'))",
		"amount_minor bigint NOT NULL CHECK (amount_minor > 0)",
		"WHERE status = 'pending'",
		"DROP TABLE IF EXISTS payment_transactions",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCartMigrationKeysLinesByProductAndVariant(t *testing.T) {
	content := readMigration(t, "_create_carts.sql")
	checks := []string{
		"CONSTRAINT cart_records_user_id_key UNIQUE (user_id)",
		"CONSTRAINT cart_items_line_key UNIQUE (cart_id, product_id, variant_id)",
		"CHECK (quantity > 0)",
		"REFERENCES cart_records(id) ON DELETE CASCADE",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "1_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename to be rejected")
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Refunds Table")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(path, "_add_refunds_table.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated migration invalid: %v", err)
	}
}

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	var content string
	err := fs.WalkDir(Embedded(), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasSuffix(path, suffix) {
			b, readErr := fs.ReadFile(Embedded(), path)
			if readErr != nil {
				return readErr
			}
			content = string(b)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk migrations: %v", err)
	}
	if content == "" {
		t.Fatalf("no migration ending in %s", suffix)
	}
	return content
}
