package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	PostgresImage    = "postgres:17-alpine"
	PostgresUser     = "postgres"
	PostgresPassword = "postgres"
	PostgresDB       = "postgres"
)

type PostgresContainer struct {
	*postgres.PostgresContainer
	ConnString string
}

// StartPostgres runs a throwaway PostgreSQL server for integration tests.
// The caller owns the container and should Terminate it when done.
func StartPostgres(ctx context.Context) (*PostgresContainer, error) {
	ctr, err := postgres.Run(ctx,
		PostgresImage,
		postgres.WithUsername(PostgresUser),
		postgres.WithPassword(PostgresPassword),
		postgres.WithDatabase(PostgresDB),
		testcontainers.WithWaitStrategy(
			// The entrypoint restarts the server once after init.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get connection string: %w", err)
	}

	return &PostgresContainer{PostgresContainer: ctr, ConnString: connStr}, nil
}
