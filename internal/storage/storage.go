// Package storage opens the publication ledger selected by the environment.
package storage

import (
	"context"
	"fmt"
	"os"

	"foodpantry/internal/infra/persistence/memory"
	"foodpantry/internal/infra/persistence/postgres"
	"foodpantry/internal/infra/persistence/sqlite"
	"foodpantry/internal/ledger"
)

// Driver names a ledger backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// OpenLedger selects a ledger.Store using environment variables.
//
//	PANTRY_LEDGER_DRIVER: memory|sqlite|postgres (default sqlite)
//	PANTRY_SQLITE_PATH: database file when driver=sqlite (default ./pantry.db)
//	PANTRY_POSTGRES_DSN: connection string when driver=postgres
func OpenLedger(ctx context.Context) (ledger.Store, error) {
	driver := os.Getenv("PANTRY_LEDGER_DRIVER")
	if driver == "" {
		driver = string(DriverSQLite)
	}
	switch Driver(driver) {
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		s, err := sqlite.NewStore(os.Getenv("PANTRY_SQLITE_PATH"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := postgres.NewStore(ctx, os.Getenv("PANTRY_POSTGRES_DSN"))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown ledger driver %s", driver)
	}
}
