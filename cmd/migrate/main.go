package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/tokenizr-backend/pkg/config"
	"github.com/angelmondragon/tokenizr-backend/pkg/db"
	"github.com/angelmondragon/tokenizr-backend/pkg/logger"
	"github.com/angelmondragon/tokenizr-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|redo|status|version|create|validate")
	dir := flag.String("dir", "", "migrations directory on disk (default: migrations embedded in the binary)")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate work on files only
	switch *cmd {
	case "create":
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		if *name == "" {
			exit("missing -name for create")
		}
		file, err := migrate.CreateSQLMigration(target, *name, time.Now())
		if err != nil {
			exit("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", file)
		return

	case "validate":
		fsys, err := migrate.Source(*dir)
		if err != nil {
			exit("failed to open migrations: %v", err)
		}
		if err := migrate.ValidateFS(fsys); err != nil {
			exit("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": sourceLabel(*dir),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	fsys, err := migrate.Source(*dir)
	requireResource(ctx, logg, "migrations source", err)

	runner, err := migrate.NewRunner(sqlDB, fsys)
	requireResource(ctx, logg, "migration runner", err)

	logg.Info(ctx, "migrate ready")

	switch *cmd {
	case "up":
		results, err := runner.Up(ctx)
		printResults(results)
		failOn(ctx, logg, err)

	case "down":
		result, err := runner.Down(ctx)
		printResults([]*goose.MigrationResult{result})
		failOn(ctx, logg, err)

	case "redo":
		results, err := runner.Redo(ctx)
		printResults(results)
		failOn(ctx, logg, err)

	case "status":
		statuses, err := runner.Status(ctx)
		failOn(ctx, logg, err)
		for _, st := range statuses {
			applied := "-"
			if !st.AppliedAt.IsZero() {
				applied = st.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Printf("%-8s %-20s %s\n", st.State, applied, path.Base(st.Source.Path))
		}

	case "version":
		target, err := migrate.ParseVersion(*version)
		if err != nil {
			exit("%v", err)
		}
		results, err := runner.ToVersion(ctx, target)
		printResults(results)
		failOn(ctx, logg, err)

	default:
		exit("unknown -cmd value: %s", *cmd)
	}
}

func printResults(results []*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		fmt.Printf("%-4s %d %s (%s)\n", res.Direction, res.Source.Version, path.Base(res.Source.Path), res.Duration.Round(time.Millisecond))
	}
}

func sourceLabel(dir string) string {
	if dir == "" {
		return "embedded"
	}
	return dir
}

func failOn(ctx context.Context, logg *logger.Logger, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "migration failed", err)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

func exit(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
