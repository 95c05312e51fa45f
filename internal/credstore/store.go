// Package credstore persists per-clinic WhatsApp pairing state on disk.
// Each clinic owns one directory under the root; logging out deletes the
// directory wholesale.
package credstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const credentialsFile = "credentials.json"

type Store struct {
	root string
}

func New(root string) (*Store, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, fmt.Errorf("credential store root is required")
	}
	if err := os.MkdirAll(trimmed, 0o700); err != nil {
		return nil, fmt.Errorf("create credential store root: %w", err)
	}
	return &Store{root: trimmed}, nil
}

// Dir returns the clinic's credential namespace, creating it if needed. The
// transport keeps its own session database inside this directory so Purge
// removes everything at once.
func (s *Store) Dir(tenantID string) (string, error) {
	id, err := sanitizeTenantID(tenantID)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create credential dir: %w", err)
	}
	return dir, nil
}

// Load reads the clinic's credential blob. A missing blob is reported as an
// empty slice, not an error.
func (s *Store) Load(tenantID string) ([]byte, error) {
	id, err := sanitizeTenantID(tenantID)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(filepath.Join(s.root, id, credentialsFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return blob, nil
}

// Save writes the credential blob atomically. It is called on every
// credential mutation during pairing, so repeated partial saves must be safe.
func (s *Store) Save(tenantID string, blob []byte) error {
	dir, err := s.Dir(tenantID)
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, credentialsFile+".tmp")
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, credentialsFile)); err != nil {
		return fmt.Errorf("commit credentials: %w", err)
	}
	return nil
}

// Purge removes the clinic's entire credential namespace.
func (s *Store) Purge(tenantID string) error {
	id, err := sanitizeTenantID(tenantID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.root, id)); err != nil {
		return fmt.Errorf("purge credentials: %w", err)
	}
	return nil
}

// List enumerates clinics with any persisted session state.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list credential store: %w", err)
	}
	tenants := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		children, err := os.ReadDir(filepath.Join(s.root, entry.Name()))
		if err != nil || len(children) == 0 {
			continue
		}
		tenants = append(tenants, entry.Name())
	}
	return tenants, nil
}

func sanitizeTenantID(tenantID string) (string, error) {
	id := strings.TrimSpace(tenantID)
	if id == "" {
		return "", fmt.Errorf("tenant id is required")
	}
	if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return "", fmt.Errorf("invalid tenant id: %s", tenantID)
	}
	return id, nil
}
