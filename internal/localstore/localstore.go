// Package localstore is a file-backed key→value store for persisted client
// state: the credential, tax/service rates, the price-visibility flag and
// the order history blob. Every key is independently readable and writable,
// values are plain strings, and absent or unreadable keys default safely.
//
// Writes are synchronous; there is no multi-key atomicity beyond last write
// wins per key.
package localstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Well-known keys.
const (
	KeyAPIKey      = "gemini_api_key"
	KeyTaxRate     = "tax_rate"
	KeyServiceRate = "service_rate"
	KeyHidePrice   = "hide_price"
	KeyIsPro       = "is_pro"
	KeyHistory     = "order_history"
	KeyMenuSession = "current_menu_session"
)

const (
	dirMode  = 0o700
	fileMode = 0o600
)

// Store persists one value per key as a file under dir.
type Store struct {
	dir string
}

// Open creates the backing directory if needed and returns a store over it.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory required")
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Get returns the stored value for key, or "" when the key is absent or
// unreadable.
func (s *Store) Get(key string) string {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return ""
	}
	return string(data)
}

// GetFloat returns the stored value parsed as a float, or 0 when absent or
// unparseable.
func (s *Store) GetFloat(key string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s.Get(key)), 64)
	if err != nil {
		return 0
	}
	return v
}

// GetBool returns true only when the stored value is the string "true".
func (s *Store) GetBool(key string) bool {
	return strings.TrimSpace(s.Get(key)) == "true"
}

// Set stores value under key, replacing any prior value.
func (s *Store) Set(key, value string) error {
	if err := os.WriteFile(s.path(key), []byte(value), fileMode); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// SetFloat stores a float value under key.
func (s *Store) SetFloat(key string, value float64) error {
	return s.Set(key, strconv.FormatFloat(value, 'f', -1, 64))
}

// SetBool stores a boolean value under key.
func (s *Store) SetBool(key string, value bool) error {
	return s.Set(key, strconv.FormatBool(value))
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// path maps a key to its backing file. Keys are flat names; separators are
// stripped so a key can never escape the store directory.
func (s *Store) path(key string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(s.dir, safe)
}
