// Package database provides the core's SQLite store.
//
// It holds the durable half of the device model: the recent paired-device
// list and small key-value blobs (session flag, profile, login method).
// Live device status is never persisted; it is rebuilt from provider events.
//
// Open applies WAL, busy-timeout and foreign-key pragmas; Migrate applies
// versioned SQL files from any fs.FS (production passes the embedded
// migrations package).
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
