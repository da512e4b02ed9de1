package migrate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("shipped migrations failed validation: %v", err)
	}
}

func TestValidateDirRejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "001_short_version.sql")
	if err := os.WriteFile(bad, []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatalf("expected error for invalid filename")
	}
}

func TestValidateDirRejectsMissingDownSection(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "20260101000000_missing_down.sql")
	if err := os.WriteFile(bad, []byte("-- +goose Up\nSELECT 1;\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatalf("expected error for missing down section")
	}
}
