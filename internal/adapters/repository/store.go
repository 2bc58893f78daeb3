// Package repository persists user settings as string key/value pairs.
//
// It stands in for browser local storage: the selected sender account and
// the payments API key live under fixed keys and survive restarts when the
// SQLite store is used.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Fixed setting keys.
const (
	KeyAccount = "merit-sender-user"
	KeyAPIKey  = "merit-api-key"
)

// Store provides read/write access to settings.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the store.
	Close() error
}

// GetJSON decodes the JSON value stored under key into v. A value that does
// not decode yields ErrCorruptValue.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorruptValue, key, err)
	}
	return nil
}

// SetJSON stores v under key as JSON.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(b))
}

// IsNotFound reports whether err means the key is absent.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
