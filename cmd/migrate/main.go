package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "modernc.org/sqlite"

	"gazette_outreach/internal/config"
	"gazette_outreach/migrations"
)

// goose command names keyed by the names this tool accepts.
var commands = map[string]string{
	"up":      "up",
	"up-one":  "up-by-one",
	"down":    "down",
	"redo":    "redo",
	"status":  "status",
	"version": "version",
	"reset":   "reset",
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate [-db path] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "The database defaults to DATABASE_PATH from the environment or .env.")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  up          Migrate to the latest version")
	fmt.Fprintln(os.Stderr, "  up-one      Migrate one version up")
	fmt.Fprintln(os.Stderr, "  down        Roll back one version")
	fmt.Fprintln(os.Stderr, "  redo        Roll back and re-apply the latest version")
	fmt.Fprintln(os.Stderr, "  status      Show migration status")
	fmt.Fprintln(os.Stderr, "  version     Show current version")
	fmt.Fprintln(os.Stderr, "  reset       Roll back all migrations")
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbPath := flag.String("db", cfg.DatabasePath, "path to sqlite database")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cmd, ok := commands[args[0]]
	if !ok {
		log.Fatalf("unknown command: %s", args[0])
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Command(db, cmd); err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}

	if cmd != "status" && cmd != "version" {
		v, err := migrations.Version(db)
		if err != nil {
			log.Fatalf("read version: %v", err)
		}
		fmt.Printf("%s is at version %d\n", *dbPath, v)
	}
}
