package db

import (
	"context"
	"fmt"
	"net"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// GoogleCloudSQLConnector implements the Connector interface for Google Cloud SQL
// using IAM database authentication via the Cloud SQL Go Connector.
//
// Implements io.Closer: call Close() after the pool is closed to release
// the Cloud SQL dialer.
type GoogleCloudSQLConnector struct {
	config   *stockimport.ConnectionConfig
	instance string
	logger   stockimport.Logger
	dialer   *cloudsqlconn.Dialer
}

// NewGoogleCloudSQLConnector creates a connector for Google Cloud SQL IAM authentication.
// instance is the instance connection name in format: project:region:instance
func NewGoogleCloudSQLConnector(config *stockimport.ConnectionConfig, instance string, logger stockimport.Logger) *GoogleCloudSQLConnector {
	return &GoogleCloudSQLConnector{
		config:   config,
		instance: instance,
		logger:   logger,
	}
}

// Connect establishes a connection pool using Google Cloud SQL IAM authentication.
// The Cloud SQL Go Connector handles authentication and TLS.
func (c *GoogleCloudSQLConnector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	dialer, err := cloudsqlconn.NewDialer(ctx, cloudsqlconn.WithIAMAuthN())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Cloud SQL dialer: %w", stockimport.ErrConnectionFailed, err)
	}

	dsn := fmt.Sprintf(
		"host=%s user=%s dbname=%s sslmode=disable",
		c.instance,
		c.config.Username,
		c.config.Database,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		dialer.Close()
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}

	poolConfig.ConnConfig.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(ctx, c.instance)
	}

	configurePool(poolConfig, c.logger)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		dialer.Close()
		return nil, fmt.Errorf("%w: %w", stockimport.ErrConnectionFailed, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		dialer.Close()
		return nil, fmt.Errorf("%w: failed to ping %s: %w", stockimport.ErrConnectionFailed, c.instance, err)
	}

	c.dialer = dialer
	return pool, nil
}

// Close releases the Cloud SQL dialer resources.
func (c *GoogleCloudSQLConnector) Close() error {
	if c.dialer != nil {
		err := c.dialer.Close()
		c.dialer = nil
		return err
	}
	return nil
}
