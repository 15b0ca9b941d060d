package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/leafsii/sqlkv/internal/config"
	"github.com/leafsii/sqlkv/internal/migrate"
	"github.com/leafsii/sqlkv/pkg/kv"
)

var (
	flags = flag.NewFlagSet("migrate", flag.ExitOnError)
	table = flags.String("table", "", "table to migrate (defaults to SQLKV_TABLE)")
)

func main() {
	flags.Parse(os.Args[1:])
	args := flags.Args()

	if len(args) < 1 {
		log.Fatal("Usage: migrate [-table NAME] COMMAND\n\nCommands:\n  up\n  down\n  status")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *table == "" {
		*table = cfg.Store.Table
	}

	ctx := context.Background()
	driver := kv.Driver(cfg.Store.Driver)
	db, err := migrate.Open(ctx, driver, cfg.Store.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	provider, err := migrate.NewProvider(db, driver, *table)
	if err != nil {
		log.Fatalf("Failed to create migration provider: %v", err)
	}

	command := args[0]
	switch command {
	case "up":
		results, err := provider.Up(ctx)
		if err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		for _, r := range results {
			log.Printf("OK version %d of %s (%s)", r.Source.Version, *table, r.Duration)
		}
		if len(results) == 0 {
			log.Printf("%s is up to date", *table)
		}
	case "down":
		result, err := provider.Down(ctx)
		if err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Printf("Rolled back version %d of %s", result.Source.Version, *table)
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			log.Fatalf("Migration status failed: %v", err)
		}
		for _, s := range statuses {
			applied := "Pending"
			if !s.AppliedAt.IsZero() {
				applied = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-8d %-10s %s\n", s.Source.Version, s.State, applied)
		}
	default:
		log.Fatalf("Unknown command: %s", command)
	}
}
