package db

import (
	"context"
	"time"
)

// TokenProvider issues short-lived database passwords for cloud IAM auth.
type TokenProvider interface {
	// GetToken returns a token to use as the password and its expiry.
	GetToken(ctx context.Context) (token string, expiresOn time.Time, err error)

	// String describes the provider for logs. It must not include secrets.
	String() string
}

// AzurePostgreSQLScope is the OAuth scope for Azure Database for PostgreSQL.
const AzurePostgreSQLScope = "https://ossrdbms-aad.database.windows.net/.default"

// rdsTokenLifetime is how long an RDS IAM auth token stays valid.
const rdsTokenLifetime = 15 * time.Minute
