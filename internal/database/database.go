// Package database centralises sqlx connection helpers for the optional
// cluster registry.  The default driver is go-sql-driver/mysql, which also
// works with MariaDB and TiDB.
//
// OpenWithOptions pings the database before returning so callers can fail
// fast during bootstrap.  Pool sizes come from `database.max_open` and
// `database.max_idle` (5 and 2 unless configured).  Callers should Close()
// the returned *sqlx.DB when no longer needed.
package database

import (
	"context"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// OpenWithOptions returns a pooled *sqlx.DB with a 30-minute connection
// lifetime.
func OpenWithOptions(ctx context.Context, dsn string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
