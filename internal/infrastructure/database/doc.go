// Package database provides SQLite connectivity for the lock bridge.
//
// It owns the connection lifecycle (WAL mode, busy timeout, single writer)
// and applies versioned SQL migrations from an fs.FS, normally the
// embedded migrations package.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. Each migration runs in its own transaction
// and is recorded in schema_migrations.
package database
