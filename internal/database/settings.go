package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSetting reads an install-local setting. Returns ErrNotFound when the
// key was never written.
func (d *Database) GetSetting(ctx context.Context, key string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting writes an install-local setting, replacing any prior value.
func (d *Database) SetSetting(ctx context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// EnsureSetting returns the current value for key, storing the result of
// generate() on first use. The write path tolerates a concurrent writer by
// re-reading after a conflict.
func (d *Database) EnsureSetting(ctx context.Context, key string, generate func() (string, error)) (string, error) {
	value, err := d.GetSetting(ctx, key)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	value, err = generate()
	if err != nil {
		return "", fmt.Errorf("failed to generate setting %s: %w", key, err)
	}

	d.mu.Lock()
	ctxIns, cancel := context.WithTimeout(ctx, defaultTimeout)
	_, insErr := d.db.ExecContext(ctxIns,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING", key, value)
	cancel()
	d.mu.Unlock()
	if insErr != nil {
		return "", fmt.Errorf("failed to store setting %s: %w", key, insErr)
	}

	// Another writer may have won; the stored value is authoritative.
	return d.GetSetting(ctx, key)
}
