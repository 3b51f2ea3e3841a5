package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vvka-141/stockimport/internal/retry"
	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// tokenExpiryWarning is how close to expiry a freshly issued token may be
// before a warning is logged. An import that outlives its token keeps its
// established connection; only new connections need a valid token.
const tokenExpiryWarning = 5 * time.Minute

// TokenBasedConnector implements the Connector interface for cloud providers
// that authenticate via short-lived tokens (AWS IAM, Azure Entra ID).
// The token is acquired from a TokenProvider and used as the PostgreSQL password.
type TokenBasedConnector struct {
	config        *stockimport.ConnectionConfig
	tokenProvider TokenProvider
	retryExecutor *retry.Executor
	providerName  string
	logger        stockimport.Logger
}

// NewTokenBasedConnector creates a connector that uses a TokenProvider for authentication.
// providerName is used in error/warning messages (e.g., "AWS IAM", "Azure").
func NewTokenBasedConnector(config *stockimport.ConnectionConfig, tokenProvider TokenProvider, providerName string, logger stockimport.Logger) *TokenBasedConnector {
	return &TokenBasedConnector{
		config:        config,
		tokenProvider: tokenProvider,
		retryExecutor: newConnectExecutor(logger),
		providerName:  providerName,
		logger:        logger,
	}
}

func (c *TokenBasedConnector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool

	err := c.retryExecutor.Execute(ctx, func(ctx context.Context) error {
		token, expiresOn, err := c.tokenProvider.GetToken(ctx)
		if err != nil {
			return fmt.Errorf("failed to acquire %s token: %w", c.providerName, err)
		}
		c.logger.Verbose("Acquired token from %s", c.tokenProvider)

		if remaining := time.Until(expiresOn); remaining < tokenExpiryWarning {
			c.logger.Warn("%s token expires in %v", c.providerName, remaining.Round(time.Second))
		}

		configWithToken := *c.config
		configWithToken.Password = token

		pool, err = openPool(ctx, BuildConnectionString(&configWithToken), c.config, c.logger)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", stockimport.ErrConnectionFailed, err)
	}

	return pool, nil
}
