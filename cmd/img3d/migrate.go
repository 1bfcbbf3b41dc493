package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/img3d/config"
	"github.com/BaSui01/img3d/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移命令
// =============================================================================

// runMigrate handles the migrate command and its subcommands
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage(os.Stderr)
		os.Exit(1)
	}

	sub := args[0]
	if sub == "help" || sub == "-h" || sub == "--help" {
		printMigrateUsage(os.Stdout)
		return
	}

	fs := flag.NewFlagSet("migrate "+sub, flag.ExitOnError)
	migrator, rest, err := createMigrator(fs, args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	if err := cli.Run(context.Background(), sub, rest); err != nil {
		if errors.Is(err, migration.ErrUnknownCommand) {
			fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", sub)
			printMigrateUsage(os.Stderr)
		} else {
			fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		}
		migrator.Close()
		os.Exit(1)
	}
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage(w io.Writer) {
	fmt.Fprintln(w, `Database Migration Commands

Usage:
  img3d migrate <subcommand> [args] [options]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration
  reset       Rollback all migrations
  steps <n>   Apply (n > 0) or rollback (n < 0) n migrations
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  status      Show migration status
  version     Show current migration version
  info        Show driver and migration details
  help        Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  img3d migrate up
  img3d migrate up --config /etc/img3d/config.yaml
  img3d migrate status --db-type sqlite --db-url sqlite3://img3d.db
  img3d migrate goto 1
  img3d migrate force 0`)
}

// createMigrator 根据命令行参数创建 migrator，返回参数中剩余的位置参数
func createMigrator(fs *flag.FlagSet, args []string) (migration.Migrator, []string, error) {
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")

	// 位置参数（goto/force/steps 的数字）位于选项之前
	var positional []string
	for len(args) > 0 && len(args[0]) > 0 && (args[0][0] != '-' || isNumber(args[0])) {
		positional = append(positional, args[0])
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	positional = append(positional, fs.Args()...)

	logger := zap.NewNop()

	if *dbType != "" && *dbURL != "" {
		m, err := migration.NewMigratorFromURL(*dbType, *dbURL, logger)
		return m, positional, err
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if *dbType != "" {
		cfg.Database.Driver = *dbType
	}

	m, err := migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
	return m, positional, err
}

func isNumber(s string) bool {
	if s == "" || s == "-" {
		return false
	}
	for i, c := range s {
		if c == '-' && i == 0 {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
