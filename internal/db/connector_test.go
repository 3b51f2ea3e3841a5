package db

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/stockimport/internal/logging"
	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// mockTokenProvider counts token requests and returns a fixed result.
type mockTokenProvider struct {
	token     string
	expiresOn time.Time
	err       error
	calls     int
}

func (m *mockTokenProvider) GetToken(ctx context.Context) (string, time.Time, error) {
	m.calls++
	if m.err != nil {
		return "", time.Time{}, m.err
	}
	return m.token, m.expiresOn, nil
}

func (m *mockTokenProvider) String() string {
	return "mockTokenProvider"
}

func testConfig(method stockimport.AuthMethod) *stockimport.ConnectionConfig {
	return &stockimport.ConnectionConfig{
		Host:       "prices.example.com",
		Port:       5432,
		Database:   "prices",
		Username:   "loader",
		AuthMethod: method,
	}
}

func TestNewConnector_SelectsByAuthMethod(t *testing.T) {
	logger := logging.NewNullLogger()

	standard, err := NewConnector(testConfig(stockimport.AuthMethodStandard), logger)
	require.NoError(t, err)
	assert.IsType(t, &StandardConnector{}, standard)

	awsCfg := testConfig(stockimport.AuthMethodAWSIAM)
	awsCfg.AWSRegion = "ap-northeast-1"
	aws, err := NewConnector(awsCfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &TokenBasedConnector{}, aws)

	azureCfg := testConfig(stockimport.AuthMethodAzureEntraID)
	azureCfg.AzureTenantID = "tenant"
	azureCfg.AzureClientID = "client"
	azureCfg.AzureClientSecret = "secret"
	azure, err := NewConnector(azureCfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &TokenBasedConnector{}, azure)

	googleCfg := testConfig(stockimport.AuthMethodGoogleIAM)
	googleCfg.GoogleInstance = "proj:asia-northeast1:prices"
	google, err := NewConnector(googleCfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &GoogleCloudSQLConnector{}, google)
}

func TestNewConnector_Errors(t *testing.T) {
	logger := logging.NewNullLogger()

	_, err := NewConnector(testConfig(stockimport.AuthMethodAWSIAM), logger)
	assert.ErrorIs(t, err, stockimport.ErrInvalidConfig, "AWS without region")

	_, err = NewConnector(testConfig(stockimport.AuthMethodGoogleIAM), logger)
	assert.ErrorIs(t, err, stockimport.ErrInvalidConfig, "Google without instance")

	_, err = NewConnector(testConfig(stockimport.AuthMethod(99)), logger)
	assert.ErrorIs(t, err, stockimport.ErrUnsupportedAuthMethod)
}

func TestNewAzureServicePrincipalProvider_RequiresAllParams(t *testing.T) {
	tests := []struct {
		name                   string
		tenant, client, secret string
		wantErr                bool
	}{
		{"all params provided", "tenant", "client", "secret", false},
		{"missing tenant", "", "client", "secret", true},
		{"missing client", "tenant", "", "secret", true},
		{"missing secret", "tenant", "client", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewAzureServicePrincipalProvider(tt.tenant, tt.client, tt.secret)
			if tt.wantErr {
				assert.ErrorIs(t, err, stockimport.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.NotContains(t, p.String(), tt.secret)
		})
	}
}

func TestNewAWSIAMTokenProvider_Validation(t *testing.T) {
	_, err := NewAWSIAMTokenProvider("", "us-east-1", "loader")
	assert.ErrorIs(t, err, stockimport.ErrInvalidConfig)
	_, err = NewAWSIAMTokenProvider("db:5432", "", "loader")
	assert.ErrorIs(t, err, stockimport.ErrInvalidConfig)
	_, err = NewAWSIAMTokenProvider("db:5432", "us-east-1", "")
	assert.ErrorIs(t, err, stockimport.ErrInvalidConfig)

	p, err := NewAWSIAMTokenProvider("db:5432", "us-east-1", "loader")
	require.NoError(t, err)
	assert.Contains(t, p.String(), "db:5432")
}

func TestTokenBasedConnector_TokenFailure(t *testing.T) {
	provider := &mockTokenProvider{err: errors.New("no credentials in chain")}
	connector := NewTokenBasedConnector(testConfig(stockimport.AuthMethodAzureEntraID), provider, "Azure", logging.NewNullLogger())

	_, err := connector.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, stockimport.ErrConnectionFailed)
	assert.Contains(t, err.Error(), "failed to acquire Azure token")
	assert.Equal(t, 1, provider.calls, "credential errors are not retried")
}

func TestStandardConnector_RespectsContextTimeout(t *testing.T) {
	config := testConfig(stockimport.AuthMethodStandard)
	config.Host = "nonexistent.invalid"

	connector := NewStandardConnector(config, logging.NewNullLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := connector.Connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, stockimport.ErrConnectionFailed)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWrapConnectionError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		host         string
		database     string
		wantContains string
	}{
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connection refused"), "127.0.0.1", "prices", "connection refused to 127.0.0.1:5432"},
		{"actively refused", errors.New("No connection could be made because the target machine actively refused it"), "127.0.0.1", "prices", "connection refused to 127.0.0.1:5432"},
		{"refused syscall", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, "10.0.0.2", "prices", "connection refused to 10.0.0.2:5432"},
		{"ipv6 address", errors.New("connection refused"), "::1", "prices", "connection refused to [::1]:5432"},
		{"no such host", errors.New("dial tcp: lookup badhost: no such host"), "badhost", "prices", `cannot resolve host "badhost"`},
		{"dns error", &net.DNSError{Err: "server misbehaving", Name: "db.internal"}, "db.internal", "prices", `cannot resolve host "db.internal"`},
		{"password", errors.New(`password authentication failed for user "loader"`), "db", "prices", `authentication failed for user "loader" on database "prices"`},
		{"auth sqlstate", &pgconn.PgError{Code: "28P01", Message: "bad password"}, "db", "prices", "authentication failed"},
		{"missing database", errors.New(`database "nope" does not exist`), "db", "nope", `database "nope" does not exist`},
		{"missing database sqlstate", &pgconn.PgError{Code: "3D000"}, "db", "nope", `database "nope" does not exist`},
		{"timeout", errors.New("dial tcp 10.0.0.1:5432: i/o timeout"), "10.0.0.1", "prices", "connection timed out to 10.0.0.1:5432"},
		{"deadline", context.DeadlineExceeded, "10.0.0.1", "prices", "connection timed out to 10.0.0.1:5432"},
		{"tls", errors.New("tls: handshake failure"), "db", "prices", "SSL/TLS connection error"},
		{"too many connections", &pgconn.PgError{Code: "53300"}, "db", "busy", `too many connections to database "busy"`},
		{"other", errors.New("something odd"), "db", "prices", "failed to connect to database"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &stockimport.ConnectionConfig{Host: tt.host, Port: 5432, Database: tt.database, Username: "loader"}
			err := wrapConnectionError(tt.err, cfg)
			assert.Contains(t, err.Error(), tt.wantContains)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
