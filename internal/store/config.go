package store

import (
	"database/sql"
	"fmt"
)

// GetConfig returns the value for key, or "" if unset.
func (s *Store) GetConfig(key string) (string, error) {
	var value string
	err := s.conn.QueryRow(`SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get config %s: %w", key, err)
	}
	return value, nil
}

// SetConfig upserts key, bumping updated_at.
func (s *Store) SetConfig(key, value, description string) error {
	_, err := s.conn.Exec(`
		INSERT INTO config (key, value, description, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at,
			description = CASE WHEN excluded.description != '' THEN excluded.description ELSE config.description END
	`, key, value, description, shanghaiNow())
	if err != nil {
		return fmt.Errorf("store: set config %s: %w", key, err)
	}
	return nil
}
