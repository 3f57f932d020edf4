package cashout

import (
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// OpenDB opens the Postgres handle backing the ledger. An empty dsn means the
// service runs on the JSON file store instead; (nil, nil) is returned so
// callers can fall back without treating it as a failure.
func OpenDB(dsn string, maxConns int) (*sql.DB, error) {
	if dsn == "" {
		return nil, nil
	}
	pgcfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	// Simple protocol: PgBouncer-style poolers break server-side prepared
	// statements.
	pgcfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	db := stdlib.OpenDB(*pgcfg)
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(4 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
