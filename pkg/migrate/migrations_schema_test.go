package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/servicelink/servicelink-backend/pkg/migrate"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestTransactionsMigrationKeepsReferenceUnique(t *testing.T) {
	content := readMigration(t, "*_create_transactions.sql")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS transactions",
		"CONSTRAINT transactions_payment_reference_key UNIQUE (payment_reference)",
		"CHECK (amount >= 0)",
		"DROP TABLE IF EXISTS transactions",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestLeadsMigrationEnforcesSingleUnlock(t *testing.T) {
	content := readMigration(t, "*_create_job_posts_and_leads.sql")
	for _, sub := range []string{
		"CONSTRAINT leads_job_post_provider_key UNIQUE (job_post_id, provider_profile_id)",
		"FOREIGN KEY (job_post_id) REFERENCES job_posts(id) ON DELETE CASCADE",
		"DROP TABLE IF EXISTS leads",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestEnumMigrationMatchesBookingStatuses(t *testing.T) {
	content := readMigration(t, "*_create_enum_types.sql")
	want := "CREATE TYPE booking_status AS ENUM ('pending', 'confirmed', 'in_progress', 'completed', 'cancelled', 'disputed');"
	if !strings.Contains(content, want) {
		t.Errorf("booking_status enum drifted")
	}
}
