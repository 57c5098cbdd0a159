package db

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
)

// MigrateCommand runs the 'migrate' subcommand. Out receives the report and
// In answers the confirmation prompt of 'force'.
type MigrateCommand struct {
	Out io.Writer
	In  io.Reader
}

// Run dispatches a migrate action against the database at dbPath.
func (c MigrateCommand) Run(args []string, dbPath string) error {
	if len(args) < 1 {
		c.PrintHelp()
		return fmt.Errorf("missing migrate action")
	}
	action := args[0]
	if action == "help" {
		c.PrintHelp()
		return nil
	}

	// opened without migrating so that old or dirty databases can be inspected
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	migrations := MigrationsFS()

	switch action {
	case "up":
		log.Printf("[migrate] running migrations...")
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
		return c.printVersion(database)

	case "down":
		log.Printf("[migrate] rolling back one migration...")
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
		return c.printVersion(database)

	case "status":
		status, err := database.GetMigrationStatus(migrations)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.Out, "=== Migration Status ===")
		fmt.Fprintf(c.Out, "Current version: %d\n", status.Version)
		fmt.Fprintf(c.Out, "Latest available: %d\n", status.Latest)
		fmt.Fprintf(c.Out, "Dirty: %v\n", status.Dirty)
		switch {
		case status.Dirty:
			fmt.Fprintln(c.Out, "\nWARNING: a migration failed mid-execution. Inspect the database, then run: vproducts migrate force <version>")
		case status.Pending() > 0:
			fmt.Fprintf(c.Out, "\n%d migration(s) pending. Run: vproducts migrate up\n", status.Pending())
		default:
			fmt.Fprintln(c.Out, "\nDatabase is up to date.")
		}
		return nil

	case "version":
		v, err := versionArg(args)
		if err != nil {
			return err
		}
		log.Printf("[migrate] migrating to version %d...", v)
		if err := database.MigrateTo(migrations, uint(v)); err != nil {
			return err
		}
		return c.printVersion(database)

	case "force":
		v, err := versionArg(args)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.Out, "WARNING: forcing migration version to %d\n", v)
		fmt.Fprintln(c.Out, "This should only be used to recover from a dirty migration state.")
		fmt.Fprint(c.Out, "Continue? [y/N]: ")
		if !c.confirm() {
			fmt.Fprintln(c.Out, "Aborted")
			return nil
		}
		if err := database.MigrateForce(migrations, v); err != nil {
			return err
		}
		return c.printVersion(database)
	}
	c.PrintHelp()
	return fmt.Errorf("unknown migrate action: %s", action)
}

func (c MigrateCommand) printVersion(database *DB) error {
	version, dirty, err := database.MigrateVersion(MigrationsFS())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "Current version: %d (dirty: %v)\n", version, dirty)
	return nil
}

func (c MigrateCommand) confirm() bool {
	if c.In == nil {
		return false
	}
	line, _ := bufio.NewReader(c.In).ReadString('\n')
	answer := strings.TrimSpace(line)
	return answer == "y" || answer == "Y"
}

func versionArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("usage: vproducts migrate %s <version_number>", args[0])
	}
	v, err := strconv.Atoi(args[1])
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid version number: %s", args[1])
	}
	return v, nil
}

// PrintHelp writes the usage of the migrate command.
func (c MigrateCommand) PrintHelp() {
	fmt.Fprint(c.Out, `Database Migration Commands

Usage: vproducts migrate <command> [options]

Commands:
  up              Apply all pending migrations
  down            Roll back one migration
  status          Show current migration status and version
  version <N>     Migrate to specific version N
  force <N>       Force migration version to N (recovery only)
  help            Show this help message

Options:
  -db <path>      Path to database file (default from config: vproducts.db)
`)
}
