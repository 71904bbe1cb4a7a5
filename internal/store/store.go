// Package store persists the proxy's interception rules, audit logs, admin
// config, device commands, and tactics templates in SQLite.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

var shanghai = mustLoadShanghai()

func mustLoadShanghai() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		// tzdata isn't guaranteed to be present in every deployment image;
		// fall back to the fixed UTC+8 offset Shanghai never deviates from.
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}

// shanghaiNow returns the current time in the Asia/Shanghai zone, matching
// the reference deployment's pytz.timezone('Asia/Shanghai') timestamps.
func shanghaiNow() time.Time {
	return time.Now().In(shanghai)
}

// Store wraps the SQLite connection shared by every repository method in
// this package.
type Store struct {
	conn *sql.DB
}

// Open creates the database directory if needed, opens the connection in
// WAL mode, and applies the embedded schema. Safe to call against an
// already-initialized database — every statement in schema.sql is
// CREATE-IF-NOT-EXISTS.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("store: creating database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: enabling WAL mode: %w", err)
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: executing schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
