// Command proxyctl is a small operator CLI for the Linspirer proxy: rotate
// the admin password and seed an interception rule without going through
// the HTTP admin API.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/linspirer/proxy/internal/auth"
	"github.com/linspirer/proxy/internal/models"
	"github.com/linspirer/proxy/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "rotate-password":
		rotatePasswordCommand()
	case "seed-rule":
		seedRuleCommand()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("proxyctl - Linspirer proxy operator tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  proxyctl rotate-password --db <path> --password <new>")
	fmt.Println("  proxyctl seed-rule --db <path> --method <name> --action <replace|modify|randomize_app_duration|passthrough> --response <json> [--email <addr>] [--global]")
}

func rotatePasswordCommand() {
	fs := flag.NewFlagSet("rotate-password", flag.ExitOnError)
	dbPath := fs.String("db", "./data/linspirer.db", "path to the sqlite database")
	password := fs.String("password", "", "new admin password")
	_ = fs.Parse(os.Args[2:])

	if *password == "" {
		log.Fatal("--password is required")
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("hashing password: %v", err)
	}
	if err := db.SetConfig("admin_password_hash", hash, ""); err != nil {
		log.Fatalf("saving password: %v", err)
	}
	fmt.Println("admin password updated")
}

func seedRuleCommand() {
	fs := flag.NewFlagSet("seed-rule", flag.ExitOnError)
	dbPath := fs.String("db", "./data/linspirer.db", "path to the sqlite database")
	method := fs.String("method", "", "JSON-RPC method name")
	action := fs.String("action", "", "replace | modify | randomize_app_duration | passthrough")
	response := fs.String("response", "", "custom_response JSON payload")
	email := fs.String("email", "", "comma-separated allow-list of user emails")
	global := fs.Bool("global", false, "apply to every user")
	_ = fs.Parse(os.Args[2:])

	if *method == "" || *action == "" {
		log.Fatal("--method and --action are required")
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	id, err := db.CreateRule(models.InterceptionRule{
		MethodName:     *method,
		Action:         *action,
		CustomResponse: *response,
		Email:          *email,
		IsGlobal:       *global,
		IsEnabled:      true,
	})
	if err != nil {
		log.Fatalf("creating rule: %v", err)
	}
	fmt.Printf("rule %d created\n", id)
}
