package refs

import (
	"context"
	"fmt"
	"os"

	ledgermemory "trailvision/internal/infra/refledger/memory"
	ledgerpostgres "trailvision/internal/infra/refledger/postgres"
	ledgersqlite "trailvision/internal/infra/refledger/sqlite"
)

// Open selects a Ledger implementation using environment variables.
//
//	TRAILVISION_REFS_DRIVER: sqlite|postgres|memory (default sqlite)
//	TRAILVISION_REFS_SQLITE_PATH: database file when driver=sqlite (default trailvision.db)
//	TRAILVISION_REFS_POSTGRES_DSN: connection string when driver=postgres (required)
func Open(ctx context.Context) (Ledger, error) {
	driver := os.Getenv("TRAILVISION_REFS_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	switch driver {
	case "sqlite":
		return NewSQLite(os.Getenv("TRAILVISION_REFS_SQLITE_PATH"))
	case "postgres":
		dsn := os.Getenv("TRAILVISION_REFS_POSTGRES_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("TRAILVISION_REFS_POSTGRES_DSN required for postgres driver")
		}
		return NewPostgres(ctx, dsn)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown refs driver %s", driver)
	}
}

// NewSQLite constructs a SQLite-backed Ledger at the given file path.
func NewSQLite(path string) (Ledger, error) { return ledgersqlite.New(path) }

// NewPostgres constructs a PostgreSQL-backed Ledger from a DSN.
func NewPostgres(ctx context.Context, dsn string) (Ledger, error) {
	return ledgerpostgres.New(ctx, dsn)
}

// NewMemory returns an in-memory Ledger suitable for tests.
func NewMemory() Ledger { return ledgermemory.New() }
