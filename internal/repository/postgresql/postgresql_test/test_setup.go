package postgresqltest

import (
	"context"
	"fmt"
	"os"

	"github.com/linkpulse/notifyhub/internal/pkg/database"
	"github.com/linkpulse/notifyhub/internal/repository/postgresql"
)

// TestDatabaseSetup holds the connection used by repository integration tests
type TestDatabaseSetup struct {
	DB *database.DB
}

// NewTestDatabase connects to TEST_DATABASE_URL and applies the schema.
// It returns (nil, nil) when the variable is unset so callers can skip.
func NewTestDatabase(ctx context.Context) (*TestDatabaseSetup, error) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		return nil, nil
	}

	db, err := database.NewPostgreSQLDB(ctx, dsn, database.PoolConfig{MaxConns: 5, MinConns: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	if err := postgresql.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate test database: %w", err)
	}

	return &TestDatabaseSetup{DB: db}, nil
}

// TruncateAllTables clears every table the service owns
func (t *TestDatabaseSetup) TruncateAllTables(ctx context.Context) error {
	tables := []string{"notifications"}

	for _, table := range tables {
		if _, err := t.DB.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}
	return nil
}

// Close closes the database connection
func (t *TestDatabaseSetup) Close() {
	t.DB.Close()
}
