// Package database provides SQLite connectivity for IR Learn's capture
// history.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Additive schema migrations embedded into the binary
//   - Health checks and lifecycle
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
package database
