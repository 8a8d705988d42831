package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// DialectForDriver maps a sql driver name to the bun dialect the stores
// expect. The result feeds persistence.New alongside the opened *sql.DB.
func DialectForDriver(driver string) (schema.Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverPostgres, "postgresql", "pg":
		return pgdialect.New(), nil
	case DriverSQLite, "sqlite":
		return sqlitedialect.New(), nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

// OpenDB opens a database handle plus its matching bun dialect. The driver
// name follows database/sql registration, so "postgres" uses lib/pq and
// "sqlite3" uses mattn/go-sqlite3.
func OpenDB(driver, dsn string) (*sql.DB, schema.Dialect, error) {
	dialect, err := DialectForDriver(driver)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, nil, fmt.Errorf("sqlstore: dsn is required")
	}
	name := strings.ToLower(strings.TrimSpace(driver))
	switch name {
	case "postgresql", "pg":
		name = DriverPostgres
	case "sqlite":
		name = DriverSQLite
	}
	sqlDB, err := sql.Open(name, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlstore: open %s database: %w", name, err)
	}
	return sqlDB, dialect, nil
}

// OpenBunDB opens a ready-to-use bun handle for callers that skip the
// persistence client and wire stores straight from *bun.DB.
func OpenBunDB(driver, dsn string) (*bun.DB, error) {
	sqlDB, dialect, err := OpenDB(driver, dsn)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqlDB, dialect), nil
}
