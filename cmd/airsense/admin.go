package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nerrad567/airsense-core/internal/auth"
	"github.com/nerrad567/airsense-core/internal/infrastructure/config"
	"github.com/nerrad567/airsense-core/internal/infrastructure/database"
	"github.com/nerrad567/airsense-core/migrations"
)

const usage = "usage: airsense [migrate <up|down|status> | hash-secret -serial <serial>]"

// dispatch runs the backend when no command is given, otherwise the named
// admin command.
func dispatch(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return run(ctx)
	}

	switch args[0] {
	case "migrate":
		return runMigrate(ctx, args[1:], stdout)
	case "hash-secret":
		return runHashSecret(args[1:], stdin, stdout)
	case "-h", "-help", "--help", "help":
		_, err := fmt.Fprintln(stdout, usage)
		return err
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

// runMigrate applies, rolls back or lists schema migrations against the
// configured database.
func runMigrate(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: airsense migrate <up|down|status>")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := database.Open(database.Config{
		Path:         cfg.Database.Path,
		WALMode:      cfg.Database.WALMode,
		BusyTimeout:  cfg.Database.BusyTimeout,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-mostly admin command

	applied, pending, err := db.GetMigrationStatus(ctx, migrations.FS)
	if err != nil {
		return err
	}

	switch args[0] {
	case "up":
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		for _, m := range pending {
			fmt.Fprintf(stdout, "applied %s %s\n", m.Version, m.Name)
		}
		fmt.Fprintf(stdout, "%s: %d applied, 0 pending\n", db.Path(), len(applied)+len(pending))
		return nil

	case "down":
		if len(applied) == 0 {
			fmt.Fprintln(stdout, "nothing to roll back")
			return nil
		}
		if err := db.MigrateDown(ctx, migrations.FS); err != nil {
			return fmt.Errorf("rolling back: %w", err)
		}
		fmt.Fprintf(stdout, "rolled back %s\n", applied[len(applied)-1].Version)
		return nil

	case "status":
		return printMigrationStatus(stdout, db.Path(), applied, pending)

	default:
		return fmt.Errorf("unknown migrate command %q (want up, down or status)", args[0])
	}
}

func printMigrationStatus(w io.Writer, path string, applied []database.MigrationRecord, pending []database.Migration) error {
	fmt.Fprintf(w, "database: %s\n", path)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT")
	for _, r := range applied {
		fmt.Fprintf(tw, "%s\tapplied\t%s\n", r.Version, r.AppliedAt.Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(tw, "%s\tpending\t%s\n", m.Version, m.Name)
	}
	return tw.Flush()
}

// runHashSecret reads a password from the first line of stdin and prints the
// Argon2id form to store in sensors.secret or devices.secret.
func runHashSecret(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("hash-secret", flag.ContinueOnError)
	serial := fs.String("serial", "", "serial number the secret belongs to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *serial == "" {
		return errors.New("hash-secret: -serial is required")
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("hash-secret: empty password on stdin")
	}

	hashed, err := auth.HashSecret(password, *serial)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, hashed)
	return err
}
