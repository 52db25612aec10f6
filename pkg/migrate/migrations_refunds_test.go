package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRefundsMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_refunds.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no refunds migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS refunds",
		"CONSTRAINT ux_refunds_order_intent UNIQUE (order_id, payment_intent_id)",
		"CHECK (amount_cents >= 0)",
		"DROP TABLE IF EXISTS refunds",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationFilenamesAreValid(t *testing.T) {
	entries, err := os.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("no migrations found")
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}
		if len(name) < 15 || name[14] != '_' {
			t.Errorf("unexpected migration filename %q", name)
		}
	}
}
