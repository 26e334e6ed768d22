// Package store owns the sqlite database: schema lifecycle, the pictures and
// tags tables, and the query surface. All mutations go through this package.
package store

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Limits cap the predicate lists accepted by QueryRandom.
type Limits struct {
	MaxImages  int
	MaxAuthors int
	MaxTags    int
}

// DefaultLimits mirror the API defaults.
var DefaultLimits = Limits{MaxImages: 10, MaxAuthors: 5, MaxTags: 10}

type DB struct {
	*sqlx.DB
	Limits Limits
	log    zerolog.Logger
}

// NewSQLiteDB opens (creating if needed) the database at dsn and applies the
// schema. Foreign keys are enabled so the picture_tags cascades declared in
// the schema actually fire.
func NewSQLiteDB(dsn string, log zerolog.Logger) (*DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=30000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{DB: db, Limits: DefaultLimits, log: log}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// isConstraintErr reports whether err is a sqlite constraint violation
// (duplicate key, unique clash, foreign key failure).
func isConstraintErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "constraint")
}
