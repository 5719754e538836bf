package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"Add Bookings Index": "add_bookings_index",
		"  drop--column!! ":  "drop_column",
		"***":                "",
	}
	for in, want := range cases {
		if got := SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateAtWritesTemplateOnce(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)

	path, err := createAt(dir, "Add Payout Index", now)
	if err != nil {
		t.Fatalf("createAt: %v", err)
	}
	if filepath.Base(path) != "20260401083000_add_payout_index.sql" {
		t.Fatalf("unexpected file %s", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "-- rollback add_payout_index") {
		t.Fatalf("template not rendered: %s", data)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}

	if _, err := createAt(dir, "Add Payout Index", now); err == nil {
		t.Fatalf("expected duplicate file error")
	}
	if _, err := createAt(dir, "!!!", now); err == nil {
		t.Fatalf("expected empty name error")
	}
}

func TestVersionsRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	write("20260101000000_a.sql", "-- +goose Up\n-- +goose Down\n")
	write("20260102000000_b.sql", "-- +goose Up\n-- +goose Down\n")
	versions, err := Versions(dir)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(versions) != 2 || versions[0] != "20260101000000" {
		t.Fatalf("unexpected versions %v", versions)
	}

	write("20260103000000_c.sql", "-- +goose Down\n-- +goose Up\n")
	if err := ValidateDir(dir); err == nil {
		t.Fatalf("expected ordering error")
	}
	_ = os.Remove(filepath.Join(dir, "20260103000000_c.sql"))

	write("20260101000000_dup.sql", "-- +goose Up\n-- +goose Down\n")
	if err := ValidateDir(dir); err == nil {
		t.Fatalf("expected duplicate version error")
	}
	_ = os.Remove(filepath.Join(dir, "20260101000000_dup.sql"))

	write("bad-name.sql", "")
	if err := ValidateDir(dir); err == nil {
		t.Fatalf("expected filename error")
	}
}
