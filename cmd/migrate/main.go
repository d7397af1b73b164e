package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"tubewatch/internal/config"
	"tubewatch/migrations"
)

const usage = `Usage: migrate [-db path] <command> [version]

Commands:
  up              Migrate to the latest version
  up-to <v>       Migrate up to version v
  down            Roll back one version
  down-to <v>     Roll back to version v (0 resets the schema)
  redo            Roll back and re-apply the latest version
  status          Show migration status
  version         Show current version
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	dbPath := flag.String("db", cfg.DatabasePath, "path to sqlite database")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(context.Background(), *dbPath, flag.Args()); err != nil {
		slog.Error("migrate", "command", flag.Arg(0), "db", *dbPath, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dbPath string, args []string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	provider, err := migrations.NewProvider(db)
	if err != nil {
		return err
	}

	switch cmd := args[0]; cmd {
	case "up":
		results, err := provider.Up(ctx)
		printResults(results...)
		return err
	case "up-to", "down-to":
		v, err := versionArg(args)
		if err != nil {
			return err
		}
		var results []*goose.MigrationResult
		if cmd == "up-to" {
			results, err = provider.UpTo(ctx, v)
		} else {
			results, err = provider.DownTo(ctx, v)
		}
		printResults(results...)
		return err
	case "down":
		res, err := provider.Down(ctx)
		printResults(res)
		return err
	case "redo":
		res, err := provider.Down(ctx)
		printResults(res)
		if err != nil {
			return err
		}
		res, err = provider.UpByOne(ctx)
		printResults(res)
		return err
	case "status":
		statuses, err := provider.Status(ctx)
		for _, s := range statuses {
			applied := "pending"
			if s.State == goose.StateApplied {
				applied = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-20s %s\n", applied, s.Source.Path)
		}
		return err
	case "version":
		v, err := provider.GetDBVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("version %d\n", v)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func versionArg(args []string) (int64, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s needs a version", args[0])
	}
	v, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid version %q", args[1])
	}
	return v, nil
}

func printResults(results ...*goose.MigrationResult) {
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		fmt.Printf("%-4s %s (%s)\n", r.Direction, r.Source.Path, r.Duration)
	}
}
