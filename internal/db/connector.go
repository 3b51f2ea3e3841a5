package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vvka-141/stockimport/internal/retry"
	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// Connection pool configuration constants
const (
	// DefaultMaxConns covers the single chunk transaction in flight plus
	// one spare connection for the rollback of a cancelled chunk.
	DefaultMaxConns = 2

	// DefaultMinConns maintains at least one connection in the pool.
	DefaultMinConns = 1

	// DefaultMaxConnIdleTime keeps the connection alive while a slow
	// source is being read between chunks.
	DefaultMaxConnIdleTime = 30 * time.Minute

	// DefaultApplicationName is reported in pg_stat_activity.
	DefaultApplicationName = "stockimport"
)

func configurePool(poolConfig *pgxpool.Config, logger stockimport.Logger) {
	poolConfig.MaxConns = DefaultMaxConns
	poolConfig.MinConns = DefaultMinConns
	poolConfig.MaxConnIdleTime = DefaultMaxConnIdleTime
	if poolConfig.ConnConfig.RuntimeParams["application_name"] == "" {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = DefaultApplicationName
	}
	poolConfig.ConnConfig.OnNotice = func(_ *pgconn.PgConn, notice *pgconn.Notice) {
		logger.Verbose("postgres %s: %s", strings.ToLower(notice.Severity), notice.Message)
	}
}

// newConnectExecutor retries connection attempts that failed for a
// transient reason (server starting up, too many connections, network blip).
func newConnectExecutor(logger stockimport.Logger) *retry.Executor {
	strategy := retry.NewExponentialBackoff(stockimport.DefaultRetryMaxAttempts,
		retry.WithInitialDelay(stockimport.DefaultRetryInitialDelay),
		retry.WithMaxDelay(stockimport.DefaultRetryMaxDelay),
	)
	return retry.NewExecutor(retry.NewPostgreSQLErrorClassifier(), strategy).
		WithOnRetry(func(attempt int, err error, delay time.Duration) {
			logger.Warn("Connection attempt %d failed, retrying in %v: %v", attempt+1, delay, err)
		})
}

// openPool creates and pings a pool for connStr.
func openPool(ctx context.Context, connStr string, config *stockimport.ConnectionConfig, logger stockimport.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}

	configurePool(poolConfig, logger)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, wrapConnectionError(err, config)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrapConnectionError(err, config)
	}
	return pool, nil
}

// StandardConnector implements the Connector interface for standard
// username/password authentication with automatic retry on transient failures.
type StandardConnector struct {
	config        *stockimport.ConnectionConfig
	logger        stockimport.Logger
	retryExecutor *retry.Executor
}

// NewStandardConnector creates a new StandardConnector with the given configuration.
// Retry behavior uses the package defaults: DefaultRetryMaxAttempts attempts,
// exponential backoff starting at DefaultRetryInitialDelay, max DefaultRetryMaxDelay.
func NewStandardConnector(config *stockimport.ConnectionConfig, logger stockimport.Logger) *StandardConnector {
	return &StandardConnector{
		config:        config,
		logger:        logger,
		retryExecutor: newConnectExecutor(logger),
	}
}

// Connect establishes a connection pool using standard authentication with automatic retry.
func (c *StandardConnector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	connStr := BuildConnectionString(c.config)

	err := c.retryExecutor.Execute(ctx, func(ctx context.Context) error {
		var err error
		pool, err = openPool(ctx, connStr, c.config, c.logger)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", stockimport.ErrConnectionFailed, err)
	}

	return pool, nil
}

// NewConnector is a factory function that creates the appropriate Connector
// based on the ConnectionConfig's AuthMethod.
func NewConnector(config *stockimport.ConnectionConfig, logger stockimport.Logger) (stockimport.Connector, error) {
	switch config.AuthMethod {
	case stockimport.AuthMethodStandard:
		return NewStandardConnector(config, logger), nil
	case stockimport.AuthMethodAWSIAM:
		return newAWSConnector(config, logger)
	case stockimport.AuthMethodGoogleIAM:
		return newGoogleConnector(config, logger)
	case stockimport.AuthMethodAzureEntraID:
		return newAzureConnector(config, logger)
	default:
		return nil, fmt.Errorf("unsupported auth method %v: %w", config.AuthMethod, stockimport.ErrUnsupportedAuthMethod)
	}
}

// connFailure turns one class of connection error into guidance.
type connFailure struct {
	match    func(err error, msg string) bool
	headline func(cfg *stockimport.ConnectionConfig) string
	causes   []string
}

func pgCode(err error, codes ...string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && slices.Contains(codes, pgErr.Code)
}

func addr(cfg *stockimport.ConnectionConfig) string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

var connFailures = []connFailure{
	{
		match: func(err error, msg string) bool {
			return errors.Is(err, syscall.ECONNREFUSED) || strings.Contains(msg, "connection refused") || strings.Contains(msg, "actively refused")
		},
		headline: func(cfg *stockimport.ConnectionConfig) string { return "connection refused to " + addr(cfg) },
		causes: []string{
			"PostgreSQL is not running",
			"wrong host or port (check -h/-p, $PGHOST or $DB_SERVERNAME)",
			"a firewall blocks the connection",
		},
	},
	{
		match: func(err error, msg string) bool {
			var dnsErr *net.DNSError
			return errors.As(err, &dnsErr) || strings.Contains(msg, "no such host")
		},
		headline: func(cfg *stockimport.ConnectionConfig) string { return fmt.Sprintf("cannot resolve host %q", cfg.Host) },
		causes:   []string{"the hostname is misspelled", "DNS is not reachable from this machine"},
	},
	{
		match: func(err error, msg string) bool {
			return pgCode(err, "28P01", "28000") || strings.Contains(msg, "password authentication failed")
		},
		headline: func(cfg *stockimport.ConnectionConfig) string {
			return fmt.Sprintf("authentication failed for user %q on database %q", cfg.Username, cfg.Database)
		},
		causes: []string{
			"wrong password ($PGPASSWORD, $DB_PASSWORD or ~/.pgpass)",
			"the user has no access to the database",
			"an expired IAM token when using --aws or --azure",
		},
	},
	{
		match: func(err error, msg string) bool {
			return pgCode(err, "3D000") || strings.Contains(msg, "does not exist")
		},
		headline: func(cfg *stockimport.ConnectionConfig) string { return fmt.Sprintf("database %q does not exist", cfg.Database) },
		causes:   []string{"check -d, $PGDATABASE or $DB_NAME"},
	},
	{
		match: func(err error, msg string) bool {
			return pgCode(err, "53300") || strings.Contains(msg, "too many connections")
		},
		headline: func(cfg *stockimport.ConnectionConfig) string {
			return fmt.Sprintf("too many connections to database %q", cfg.Database)
		},
		causes: []string{"the server's max_connections limit is reached; retry later"},
	},
	{
		match: func(err error, msg string) bool {
			var netErr net.Error
			return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) ||
				strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out")
		},
		headline: func(cfg *stockimport.ConnectionConfig) string { return "connection timed out to " + addr(cfg) },
		causes:   []string{"the server is overloaded", "a firewall silently drops packets", "nothing listens on that port"},
	},
	{
		match: func(_ error, msg string) bool { return strings.Contains(msg, "ssl") || strings.Contains(msg, "tls") },
		headline: func(*stockimport.ConnectionConfig) string {
			return "SSL/TLS connection error"
		},
		causes: []string{"the server requires SSL but --sslmode disables it", "certificate verification failed (try --sslmode=require)"},
	},
}

// wrapConnectionError adds guidance for the failure classes users hit most.
// The original error stays in the chain.
func wrapConnectionError(err error, cfg *stockimport.ConnectionConfig) error {
	msg := strings.ToLower(err.Error())
	for _, f := range connFailures {
		if !f.match(err, msg) {
			continue
		}
		var b strings.Builder
		b.WriteString(f.headline(cfg))
		b.WriteString("\n\nPossible causes:\n")
		for _, c := range f.causes {
			b.WriteString("  - " + c + "\n")
		}
		return fmt.Errorf("%s\nOriginal error: %w", b.String(), err)
	}
	return fmt.Errorf("failed to connect to database: %w", err)
}

// newAWSConnector creates a token-based connector with the AWS IAM token provider.
func newAWSConnector(config *stockimport.ConnectionConfig, logger stockimport.Logger) (stockimport.Connector, error) {
	endpoint := fmt.Sprintf("%s:%d", config.Host, config.Port)

	tokenProvider, err := NewAWSIAMTokenProvider(endpoint, config.AWSRegion, config.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS IAM token provider: %w", err)
	}

	return NewTokenBasedConnector(config, tokenProvider, "AWS IAM", logger), nil
}

// newGoogleConnector creates a GoogleCloudSQLConnector for Google Cloud SQL IAM authentication.
func newGoogleConnector(config *stockimport.ConnectionConfig, logger stockimport.Logger) (stockimport.Connector, error) {
	if config.GoogleInstance == "" {
		return nil, fmt.Errorf("Google Cloud SQL IAM auth requires --google-instance (project:region:instance): %w", stockimport.ErrInvalidConfig)
	}
	if config.Username == "" {
		return nil, fmt.Errorf("Google Cloud SQL IAM auth requires username (-U): %w", stockimport.ErrInvalidConfig)
	}

	return NewGoogleCloudSQLConnector(config, config.GoogleInstance, logger), nil
}

// newAzureConnector creates a token-based connector with the Azure Entra ID token provider.
// If explicit credentials (tenant, client, secret) are provided, uses Service Principal auth.
// Otherwise, falls back to DefaultAzureCredential chain.
func newAzureConnector(config *stockimport.ConnectionConfig, logger stockimport.Logger) (stockimport.Connector, error) {
	var tokenProvider TokenProvider
	var err error

	if config.AzureTenantID != "" && config.AzureClientID != "" && config.AzureClientSecret != "" {
		tokenProvider, err = NewAzureServicePrincipalProvider(
			config.AzureTenantID,
			config.AzureClientID,
			config.AzureClientSecret,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure Service Principal provider: %w", err)
		}
	} else {
		tokenProvider, err = NewAzureDefaultCredentialProvider()
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure Default Credential provider: %w", err)
		}
	}

	return NewTokenBasedConnector(config, tokenProvider, "Azure", logger), nil
}
