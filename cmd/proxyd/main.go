// Command proxyd runs the Linspirer interception proxy: the JSON-RPC
// intercept handler on InterceptPath plus the admin CRUD API, on one
// listener.
package main

import (
	"log"
	"net/http"

	"github.com/linspirer/proxy/internal/adminapi"
	"github.com/linspirer/proxy/internal/auth"
	"github.com/linspirer/proxy/internal/config"
	"github.com/linspirer/proxy/internal/cryptor"
	"github.com/linspirer/proxy/internal/logging"
	"github.com/linspirer/proxy/internal/pipeline"
	"github.com/linspirer/proxy/internal/store"
)

const defaultAdminPassword = "admin123"

func main() {
	settings, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	c, err := cryptor.New(settings.Key, settings.IV)
	if err != nil {
		log.Fatalf("cryptor: %v", err)
	}

	db, err := store.Open(settings.DBPath)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer db.Close()

	if err := seedDefaults(db, settings.TargetURL); err != nil {
		log.Fatalf("seed: %v", err)
	}
	if err := db.LoadTacticsSeedFile(settings.TacticsSeedPath); err != nil {
		log.Fatalf("tactics seed: %v", err)
	}

	mux := http.NewServeMux()
	p := pipeline.New(c, db, settings.TargetURL)
	mux.Handle(pipeline.InterceptPath, p)

	adminapi.New(db, settings.JWTSecret).Mount(mux)

	logging.Info("starting server", logging.Fields{Component: "main"})
	if err := http.ListenAndServe(settings.Addr(), mux); err != nil {
		log.Fatalf("server: %v", err)
	}
}

// seedDefaults writes the bootstrap admin password when none is stored yet,
// matching the reference deployment's init_db seed, and records the
// configured target URL on every start.
func seedDefaults(db *store.Store, targetURL string) error {
	existing, err := db.GetConfig("admin_password_hash")
	if err != nil {
		return err
	}
	if existing == "" {
		hash, err := auth.HashPassword(defaultAdminPassword)
		if err != nil {
			return err
		}
		if err := db.SetConfig("admin_password_hash", hash, "bootstrap default, change after first login"); err != nil {
			return err
		}
	}
	return db.SetConfig("target_url", targetURL, "upstream control server URL")
}
