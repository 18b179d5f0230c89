// Package testutil provides testing utilities for the MedTrack backend.
// It includes a testcontainers PostgreSQL harness, sqlmock helpers and
// common fixtures.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "medtrack_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "medtrack_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// CreatePharmacySchema creates the catalog mirror, batch and movement tables.
// The named CHECK constraints back up the service-level invariants so a bug
// that bypasses the row locks still cannot corrupt the ledger.
func (c *PostgresContainer) CreatePharmacySchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS catalog_pharmacies (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL
		);

		CREATE TABLE IF NOT EXISTS catalog_suppliers (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL
		);

		CREATE TABLE IF NOT EXISTS catalog_items (
			id UUID PRIMARY KEY,
			generic_name VARCHAR(255) NOT NULL,
			brand_name VARCHAR(255),
			strength VARCHAR(100),
			form VARCHAR(100),
			reorder_level INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS pharmacy_batches (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			pharmacy_id UUID NOT NULL REFERENCES catalog_pharmacies(id),
			item_id UUID NOT NULL REFERENCES catalog_items(id),
			supplier_id UUID NOT NULL REFERENCES catalog_suppliers(id),
			batch_no VARCHAR(100) NOT NULL,
			expiry_date DATE,
			qty_received_units INTEGER NOT NULL,
			qty_on_hand_units INTEGER NOT NULL,
			purchase_unit_price NUMERIC(12,2) NOT NULL DEFAULT 0,
			sale_unit_price NUMERIC(12,2) NOT NULL DEFAULT 0,
			notes TEXT,
			received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT qty_received_positive CHECK (qty_received_units > 0),
			CONSTRAINT qty_on_hand_non_negative CHECK (qty_on_hand_units >= 0),
			CONSTRAINT qty_on_hand_within_received CHECK (qty_on_hand_units <= qty_received_units)
		);

		CREATE INDEX IF NOT EXISTS idx_batches_allocation
			ON pharmacy_batches (pharmacy_id, item_id, expiry_date ASC NULLS LAST, received_at ASC);

		CREATE TABLE IF NOT EXISTS stock_movements (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			pharmacy_id UUID NOT NULL REFERENCES catalog_pharmacies(id),
			item_id UUID NOT NULL REFERENCES catalog_items(id),
			batch_id UUID NOT NULL REFERENCES pharmacy_batches(id),
			movement_type VARCHAR(20) NOT NULL,
			qty_units INTEGER NOT NULL,
			patient_id UUID,
			reference TEXT,
			created_by VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT qty_units_nonzero CHECK (qty_units <> 0),
			CONSTRAINT movement_type_valid CHECK (movement_type IN ('RECEIVE', 'DISPENSE', 'SALE', 'ADJUST', 'WASTE'))
		);

		CREATE INDEX IF NOT EXISTS idx_movements_ledger
			ON stock_movements (pharmacy_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_movements_batch
			ON stock_movements (batch_id, created_at ASC);
	`

	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create pharmacy schema: %w", err)
	}

	return nil
}

// TruncateAll empties every pharmacy table between tests
func (c *PostgresContainer) TruncateAll(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		TRUNCATE stock_movements, pharmacy_batches,
			catalog_items, catalog_suppliers, catalog_pharmacies CASCADE
	`)
	if err != nil {
		return fmt.Errorf("failed to truncate tables: %w", err)
	}
	return nil
}
