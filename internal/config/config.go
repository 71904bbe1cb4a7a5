// Package config loads the process's environment-derived settings: the
// seven LINSPIRER_* variables the original deployment expects, plus the
// optional LINSPIRER_TACTICS_SEED path.
package config

import (
	"fmt"
	"os"

	"github.com/linspirer/proxy/internal/assert"
)

// Settings holds the resolved runtime configuration.
type Settings struct {
	Key             []byte
	IV              []byte
	TargetURL       string
	DBPath          string
	Host            string
	Port            string
	JWTSecret       string
	TacticsSeedPath string
}

const (
	defaultTargetURL = "https://cloud.linspirer.com:883"
	defaultDBPath    = "./data/linspirer.db"
	defaultHost      = "0.0.0.0"
	defaultPort      = "8080"
)

// Load reads LINSPIRER_KEY, LINSPIRER_IV, LINSPIRER_TARGET_URL,
// LINSPIRER_DB_PATH, LINSPIRER_HOST, LINSPIRER_PORT and
// LINSPIRER_JWT_SECRET from the environment, applying the same defaults as
// the reference deployment for everything but the key/IV/secret, which have
// no safe default and must be set explicitly. It also reads the optional
// LINSPIRER_TACTICS_SEED path, which has no default.
func Load() (*Settings, error) {
	key := os.Getenv("LINSPIRER_KEY")
	iv := os.Getenv("LINSPIRER_IV")
	secret := os.Getenv("LINSPIRER_JWT_SECRET")

	if err := assert.Check(len(key) == 16, "LINSPIRER_KEY must be 16 bytes, got %d", len(key)); err != nil {
		return nil, err
	}
	if err := assert.Check(len(iv) == 16, "LINSPIRER_IV must be 16 bytes, got %d", len(iv)); err != nil {
		return nil, err
	}
	if secret == "" {
		return nil, fmt.Errorf("config: LINSPIRER_JWT_SECRET must be set")
	}

	s := &Settings{
		Key:       []byte(key),
		IV:        []byte(iv),
		TargetURL: envOr("LINSPIRER_TARGET_URL", defaultTargetURL),
		DBPath:    envOr("LINSPIRER_DB_PATH", defaultDBPath),
		Host:      envOr("LINSPIRER_HOST", defaultHost),
		Port:      envOr("LINSPIRER_PORT", defaultPort),
		JWTSecret:       secret,
		TacticsSeedPath: os.Getenv("LINSPIRER_TACTICS_SEED"),
	}
	return s, nil
}

// Addr returns the host:port pair to bind the HTTP server to.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
