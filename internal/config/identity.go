package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// InstallationID returns the configured id, or the id persisted at the identity
// path. A new id is generated and written when none exists yet.
func InstallationID(cfg IdentityConfig) (string, error) {
	if id := strings.TrimSpace(cfg.InstallationID); id != "" {
		return id, nil
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return "", errors.New("identity path is not configured")
	}

	data, err := os.ReadFile(cfg.Path)
	switch {
	case err == nil:
		if parsed, parseErr := uuid.Parse(strings.TrimSpace(string(data))); parseErr == nil {
			return parsed.String(), nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("failed to read installation id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create identity directory: %w", err)
	}
	if err := os.WriteFile(cfg.Path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to persist installation id: %w", err)
	}
	return id, nil
}
