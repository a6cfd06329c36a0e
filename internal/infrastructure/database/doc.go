// Package database opens the SQLite store behind Glove Core and runs
// its embedded schema migrations.
//
// The store holds accounts, the device registry, binding history and
// all telemetry rows. WAL mode keeps dashboard reads from blocking the
// ingest writer, and the pool is pinned to a single connection to match
// SQLite's one-writer model. The database file is chmodded 0600.
//
// Migrations are embedded .sql pairs (<version>_<name>.up.sql /
// .down.sql) registered by the migrations package; each applies in its
// own transaction so a failed migration leaves the earlier ones
// committed. Schema changes are additive: new columns are nullable or
// defaulted, and binding history rows are never rewritten by a
// migration.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
