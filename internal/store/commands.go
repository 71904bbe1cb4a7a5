package store

import (
	"database/sql"
	"fmt"

	"github.com/linspirer/proxy/internal/models"
)

// InsertCommand queues a new device command in the unverified state.
func (s *Store) InsertCommand(commandJSON string) (int64, error) {
	res, err := s.conn.Exec(`
		INSERT INTO commands (command_json, status, received_at) VALUES (?, ?, ?)
	`, commandJSON, models.CommandUnverified, shanghaiNow())
	if err != nil {
		return 0, fmt.Errorf("store: insert command: %w", err)
	}
	return res.LastInsertId()
}

// ListCommands returns every command, newest first.
func (s *Store) ListCommands() ([]models.Command, error) {
	rows, err := s.conn.Query(`
		SELECT id, command_json, status, notes, received_at, processed_at
		FROM commands ORDER BY received_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list commands: %w", err)
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, c)
	}
	return cmds, rows.Err()
}

// ListCommandsByStatus filters ListCommands down to one status.
func (s *Store) ListCommandsByStatus(status string) ([]models.Command, error) {
	rows, err := s.conn.Query(`
		SELECT id, command_json, status, notes, received_at, processed_at
		FROM commands WHERE status = ? ORDER BY received_at DESC
	`, status)
	if err != nil {
		return nil, fmt.Errorf("store: list commands by status: %w", err)
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, c)
	}
	return cmds, rows.Err()
}

// FindCommandByID returns nil, nil if no command has that id.
func (s *Store) FindCommandByID(id int64) (*models.Command, error) {
	row := s.conn.QueryRow(`
		SELECT id, command_json, status, notes, received_at, processed_at
		FROM commands WHERE id = ?
	`, id)
	c, err := scanCommand(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find command: %w", err)
	}
	return &c, nil
}

// UpdateCommandStatus transitions a command's lifecycle state and stamps
// processed_at. notes is optional and left unchanged when empty.
func (s *Store) UpdateCommandStatus(id int64, status, notes string) error {
	var err error
	if notes != "" {
		_, err = s.conn.Exec(`UPDATE commands SET status = ?, notes = ?, processed_at = ? WHERE id = ?`,
			status, notes, shanghaiNow(), id)
	} else {
		_, err = s.conn.Exec(`UPDATE commands SET status = ?, processed_at = ? WHERE id = ?`,
			status, shanghaiNow(), id)
	}
	if err != nil {
		return fmt.Errorf("store: update command status: %w", err)
	}
	return nil
}

// ClearVerified deletes every command in the verified state and returns how
// many rows were removed.
func (s *Store) ClearVerified() (int, error) {
	res, err := s.conn.Exec(`DELETE FROM commands WHERE status = ?`, models.CommandVerified)
	if err != nil {
		return 0, fmt.Errorf("store: clear verified commands: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: clear verified commands: %w", err)
	}
	return int(n), nil
}

func scanCommand(row rowScanner) (models.Command, error) {
	var c models.Command
	var notes sql.NullString
	var processedAt sql.NullTime
	err := row.Scan(&c.ID, &c.CommandJSON, &c.Status, &notes, &c.ReceivedAt, &processedAt)
	if err != nil {
		return c, err
	}
	c.Notes = notes.String
	if processedAt.Valid {
		c.ProcessedAt = &processedAt.Time
	}
	return c, nil
}
