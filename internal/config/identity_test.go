package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestInstallationIDIsCreatedOnceAndReused(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "installation-id")

	first, err := InstallationID(IdentityConfig{Path: path})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Fatalf("expected a uuid, got %q", first)
	}

	second, err := InstallationID(IdentityConfig{Path: path})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if first != second {
		t.Fatalf("expected stable id, got %q then %q", first, second)
	}

	data, _ := os.ReadFile(path)
	if strings.TrimSpace(string(data)) != first {
		t.Fatalf("id not persisted: %q", data)
	}
}

func TestInstallationIDPrefersConfiguredValue(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "installation-id")
	id, err := InstallationID(IdentityConfig{Path: path, InstallationID: " user-42 "})
	if err != nil || id != "user-42" {
		t.Fatalf("unexpected id %q err=%v", id, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("configured id must not touch the identity file")
	}
}

func TestInstallationIDReplacesCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "installation-id")
	if err := os.WriteFile(path, []byte("not-a-uuid"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	id, err := InstallationID(IdentityConfig{Path: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected regenerated uuid, got %q", id)
	}
}

func TestInstallationIDRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := InstallationID(IdentityConfig{}); err == nil {
		t.Fatalf("expected error without path or id")
	}
}
