// Package database provides SQLite access for the pin core service.
//
// It owns connection setup (WAL, busy timeout, foreign keys), embedded
// schema migrations, transaction helpers and the timestamp encoding shared
// by every repository.
//
// SQLite allows a single writer, so the pool is capped at one connection.
// Module mutations are already serialised per module by the scheduler; the
// cap only matters across modules.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/pincore.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
