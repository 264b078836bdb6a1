// Package database provides SQLite connectivity (mattn/go-sqlite3) for the
// pubsubd lifecycle journal.
//
// This package manages:
//   - Database connection with WAL mode so readers don't block the writer
//   - Additive schema migrations read from an fs.FS
//   - In-memory databases for tests (MemoryPath)
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Journal.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
