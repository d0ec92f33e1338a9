// Command migrate manages the digest bot's database schema by hand. The bot
// migrates on startup by itself; this tool exists for rollbacks and for
// inspecting schema state.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"digest_bot/migrations"
)

var commands = map[string]func(*sql.DB) error{
	"up":      func(db *sql.DB) error { return goose.Up(db, ".") },
	"down":    func(db *sql.DB) error { return goose.Down(db, ".") },
	"redo":    func(db *sql.DB) error { return goose.Redo(db, ".") },
	"status":  func(db *sql.DB) error { return goose.Status(db, ".") },
	"version": func(db *sql.DB) error { return goose.Version(db, ".") },
	"reset":   func(db *sql.DB) error { return goose.Reset(db, ".") },
}

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/bot.db"), "path to the digest database")
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(1)
	}
	run, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", flag.Arg(0))
		usage()
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		log.Fatalf("set dialect: %v", err)
	}

	if err := run(db); err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate [-db path] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  up       Apply all pending migrations")
	fmt.Fprintln(os.Stderr, "  down     Roll back the last migration")
	fmt.Fprintln(os.Stderr, "  redo     Roll back and re-apply the last migration")
	fmt.Fprintln(os.Stderr, "  status   Show applied and pending migrations")
	fmt.Fprintln(os.Stderr, "  version  Print the current schema version")
	fmt.Fprintln(os.Stderr, "  reset    Roll back everything")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
