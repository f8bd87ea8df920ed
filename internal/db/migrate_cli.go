package db

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
)

// Swapped in tests.
var (
	migrateOut io.Writer = os.Stdout
	migrateIn  io.Reader = os.Stdin
)

// RunMigrateCommand handles the 'migrate' subcommand dispatching.
func RunMigrateCommand(args []string, dbPath string) error {
	if len(args) < 1 {
		PrintMigrateHelp(migrateOut)
		return fmt.Errorf("missing migrate action")
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp(migrateOut)
		return nil
	}

	// Open without migrating; the command manages the schema itself.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		return handleMigrateUp(database)
	case "down":
		return handleMigrateDown(database)
	case "status":
		return handleMigrateStatus(database)
	case "version":
		if len(args) < 2 {
			return fmt.Errorf("usage: msod migrate version <version_number>")
		}
		return handleMigrateVersion(database, args[1])
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: msod migrate force <version_number> [-y]")
		}
		yes := len(args) > 2 && (args[2] == "-y" || args[2] == "--yes")
		return handleMigrateForce(database, args[1], yes)
	default:
		fmt.Fprintf(migrateOut, "Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp(migrateOut)
		return fmt.Errorf("unknown migrate action %q", action)
	}
}

func handleMigrateUp(database *DB) error {
	log.Printf("Running migrations...")
	if err := database.MigrateUp(); err != nil {
		return err
	}
	version, dirty, _ := database.MigrateVersion()
	log.Printf("All migrations applied; current version: %d (dirty: %v)", version, dirty)
	return nil
}

func handleMigrateDown(database *DB) error {
	log.Printf("Rolling back one migration...")
	if err := database.MigrateDown(); err != nil {
		return err
	}
	version, dirty, _ := database.MigrateVersion()
	log.Printf("Rolled back; current version: %d (dirty: %v)", version, dirty)
	return nil
}

func handleMigrateStatus(database *DB) error {
	status, err := database.GetMigrationStatus()
	if err != nil {
		return err
	}
	fmt.Fprintln(migrateOut, "=== Migration Status ===")
	fmt.Fprintf(migrateOut, "Current version: %d\n", status.Current)
	fmt.Fprintf(migrateOut, "Latest version: %d\n", status.Latest)
	fmt.Fprintf(migrateOut, "Pending: %d\n", status.Pending())
	fmt.Fprintf(migrateOut, "Dirty: %v\n", status.Dirty)
	if status.Dirty {
		fmt.Fprintln(migrateOut, "\nWARNING: a migration failed mid-execution.")
		fmt.Fprintln(migrateOut, "Inspect the database, fix it, then run: msod migrate force <version>")
	}
	return nil
}

func handleMigrateVersion(database *DB, versionStr string) error {
	target, err := strconv.ParseUint(versionStr, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid version number: %s", versionStr)
	}
	log.Printf("Migrating to version %d...", target)
	if err := database.MigrateTo(uint(target)); err != nil {
		return err
	}
	log.Printf("Migrated to version %d", target)
	return nil
}

func handleMigrateForce(database *DB, versionStr string, yes bool) error {
	version, err := strconv.Atoi(versionStr)
	if err != nil {
		return fmt.Errorf("invalid version number: %s", versionStr)
	}

	if !yes {
		fmt.Fprintf(migrateOut, "WARNING: forcing migration version to %d\n", version)
		fmt.Fprintln(migrateOut, "This should only be used to recover from a dirty migration state.")
		fmt.Fprint(migrateOut, "Continue? [y/N]: ")
		answer, _ := bufio.NewReader(migrateIn).ReadString('\n')
		answer = strings.TrimSpace(answer)
		if answer != "y" && answer != "Y" {
			log.Println("Aborted")
			return nil
		}
	}

	if err := database.MigrateForce(version); err != nil {
		return err
	}
	log.Printf("Migration version forced to %d", version)
	return nil
}

// PrintMigrateHelp prints usage for the migrate subcommand.
func PrintMigrateHelp(w io.Writer) {
	fmt.Fprint(w, `Usage: msod migrate <action> [args]

Actions:
  up                 Apply all pending migrations
  down               Roll back the most recent migration
  status             Show current and latest schema versions
  version <N>        Migrate up or down to version N
  force <N> [-y]     Record version N without running migrations (recovery only)
  help               Show this help
`)
}
