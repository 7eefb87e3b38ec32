// Package database provides SQLite connectivity for the Airsense backend.
//
// This package manages:
//   - Database connection with WAL mode for concurrent readers
//   - Schema migrations read from an fs.FS (see the migrations package)
//   - Connection checkout for per-message units of work
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql.
package database
