// Package testsupport starts ephemeral containers (PostgreSQL, Redis, NATS)
// for integration tests and offers Prometheus assertions shared by unit tests.
package testsupport

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rafaeljc/vigil/internal/config"
	"github.com/rafaeljc/vigil/internal/database"
)

// PostgresContainer holds the running container, a migrated pool and the
// config used to reach it.
type PostgresContainer struct {
	Container testcontainers.Container
	DB        *pgxpool.Pool
	Config    *config.DatabaseConfig
}

// Terminate closes the pool and removes the container.
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	c.DB.Close()
	return c.Container.Terminate(ctx)
}

// StartPostgresContainer starts postgres:15-alpine and applies the embedded
// migrations, so the schema and sample rules match production.
func StartPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("vigil_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	cfg := &config.DatabaseConfig{
		URL:             connStr,
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  5 * time.Second,
		MigrationsTable: "schema_migrations",
	}

	migrator, err := database.NewMigrator(cfg, nil)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, err
	}
	upErr := migrator.Up()
	_ = migrator.Close()
	if upErr != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, upErr
	}

	pool, err := database.NewPostgresPool(ctx, cfg, nil)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	return &PostgresContainer{
		Container: pgContainer,
		DB:        pool,
		Config:    cfg,
	}, nil
}
