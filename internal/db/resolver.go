package db

import (
	"fmt"
	"os"
	"strconv"

	"github.com/vvka-141/stockimport/internal/config"
	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// GranularConnFlags represents connection parameters from CLI flags.
// These follow PostgreSQL standard flag conventions (-h, -p, -U, -d).
//
// Password is NOT a flag. Use $PGPASSWORD, $DB_PASSWORD, .pgpass or a
// connection string instead.
type GranularConnFlags struct {
	Host     string
	Port     int
	Username string
	Database string
	SSLMode  string
}

// IsEmpty returns true if no connection-related granular flags were provided by the user.
// Database is excluded: -d may override the database of a connection string.
func (g *GranularConnFlags) IsEmpty() bool {
	return g.Host == "" && g.Port == 0 && g.Username == "" && g.SSLMode == ""
}

// CloudFlags selects a cloud IAM authentication method from CLI flags.
// The Azure client secret only comes from $AZURE_CLIENT_SECRET.
type CloudFlags struct {
	AWS            bool
	AWSRegion      string
	Google         bool
	GoogleInstance string
	Azure          bool
	AzureTenantID  string
	AzureClientID  string
}

func (c *CloudFlags) count() int {
	n := 0
	for _, on := range []bool{c.AWS, c.Google, c.Azure} {
		if on {
			n++
		}
	}
	return n
}

// EnvVars holds the connection-related environment.
// See: https://www.postgresql.org/docs/current/libpq-envars.html
type EnvVars struct {
	PGHOST       string
	PGPORT       string
	PGUSER       string
	PGPASSWORD   string
	PGDATABASE   string
	PGSSLMODE    string
	DATABASE_URL string

	STOCKIMPORT_CONNECTION_STRING string

	// Variables of the legacy import job, used when the PG* ones are unset.
	DB_SERVERNAME string
	DB_PORT       string
	DB_USERID     string
	DB_PASSWORD   string
	DB_NAME       string

	AZURE_TENANT_ID     string
	AZURE_CLIENT_ID     string
	AZURE_CLIENT_SECRET string
	AWS_REGION          string
}

// LoadFromEnvironment reads EnvVars from the process environment.
func LoadFromEnvironment() *EnvVars {
	return &EnvVars{
		PGHOST:                        os.Getenv("PGHOST"),
		PGPORT:                        os.Getenv("PGPORT"),
		PGUSER:                        os.Getenv("PGUSER"),
		PGPASSWORD:                    os.Getenv("PGPASSWORD"),
		PGDATABASE:                    os.Getenv("PGDATABASE"),
		PGSSLMODE:                     os.Getenv("PGSSLMODE"),
		DATABASE_URL:                  os.Getenv("DATABASE_URL"),
		STOCKIMPORT_CONNECTION_STRING: os.Getenv("STOCKIMPORT_CONNECTION_STRING"),
		DB_SERVERNAME:                 os.Getenv("DB_SERVERNAME"),
		DB_PORT:                       os.Getenv("DB_PORT"),
		DB_USERID:                     os.Getenv("DB_USERID"),
		DB_PASSWORD:                   os.Getenv("DB_PASSWORD"),
		DB_NAME:                       os.Getenv("DB_NAME"),
		AZURE_TENANT_ID:               os.Getenv("AZURE_TENANT_ID"),
		AZURE_CLIENT_ID:               os.Getenv("AZURE_CLIENT_ID"),
		AZURE_CLIENT_SECRET:           os.Getenv("AZURE_CLIENT_SECRET"),
		AWS_REGION:                    os.Getenv("AWS_REGION"),
	}
}

// connectionString returns the first connection string set in the environment.
func (e *EnvVars) connectionString() string {
	if e.STOCKIMPORT_CONNECTION_STRING != "" {
		return e.STOCKIMPORT_CONNECTION_STRING
	}
	return e.DATABASE_URL
}

// ResolveConnectionParams resolves connection parameters using PostgreSQL-standard precedence:
//
//  1. --connection flag
//  2. $STOCKIMPORT_CONNECTION_STRING or $DATABASE_URL, when no granular flags are set
//  3. per field: flag > PG* variable > DB_* variable > stockimport.yaml > default
//
// -d overrides the database of a connection string. The auth method comes
// from the cloud flags, then the connection string's auth_method, then
// stockimport.yaml, then the presence of Azure environment credentials.
func ResolveConnectionParams(
	connStringFlag string,
	granularFlags *GranularConnFlags,
	cloudFlags *CloudFlags,
	envVars *EnvVars,
	projectConfig *config.ProjectConfig,
) (*stockimport.ConnectionConfig, error) {
	if granularFlags == nil {
		granularFlags = &GranularConnFlags{}
	}
	if cloudFlags == nil {
		cloudFlags = &CloudFlags{}
	}
	if envVars == nil {
		envVars = &EnvVars{}
	}

	if connStringFlag != "" && !granularFlags.IsEmpty() {
		return nil, fmt.Errorf(
			"cannot specify both --connection and granular flags (-h, -p, -U)\n"+
				"Choose one approach:\n"+
				"  1. Connection string: --connection \"postgresql://user@localhost:5432/prices\"\n"+
				"  2. Granular flags: -h localhost -p 5432 -U loader -d prices\n"+
				"  3. Environment variables: export PGHOST=localhost PGUSER=loader PGDATABASE=prices: %w",
			stockimport.ErrInvalidConfig,
		)
	}
	if cloudFlags.count() > 1 {
		return nil, fmt.Errorf("--aws, --google and --azure are mutually exclusive: %w", stockimport.ErrInvalidConfig)
	}

	var cfg *stockimport.ConnectionConfig
	var err error

	switch {
	case connStringFlag != "":
		cfg, err = resolveFromConnectionString(connStringFlag, envVars)
	case granularFlags.IsEmpty() && envVars.connectionString() != "":
		cfg, err = resolveFromConnectionString(envVars.connectionString(), envVars)
	default:
		cfg, err = resolveFromGranularParams(granularFlags, envVars, projectConfig)
	}
	if err != nil {
		return nil, err
	}

	if granularFlags.Database != "" {
		cfg.Database = granularFlags.Database
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database name is required\n"+
			"Provide via:\n"+
			"  1. --database/-d flag\n"+
			"  2. Connection string: --connection \"postgresql://user@host/prices\"\n"+
			"  3. Environment variable: $PGDATABASE or $DB_NAME: %w", stockimport.ErrInvalidConfig)
	}

	var pc config.ConnectionConfig
	if projectConfig != nil {
		pc = projectConfig.Connection
	}
	if err := applyAuthMethod(cfg, cloudFlags, envVars, pc); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyAuthMethod sets the auth method and its parameters on cfg.
func applyAuthMethod(cfg *stockimport.ConnectionConfig, flags *CloudFlags, env *EnvVars, pc config.ConnectionConfig) error {
	method, err := ParseAuthMethod(pc.AuthMethod)
	if err != nil {
		return err
	}
	explicit := pc.AuthMethod != ""
	if cfg.AuthMethod != stockimport.AuthMethodStandard {
		// auth_method in the connection string
		method, explicit = cfg.AuthMethod, true
	}
	switch {
	case flags.AWS:
		method = stockimport.AuthMethodAWSIAM
	case flags.Google:
		method = stockimport.AuthMethodGoogleIAM
	case flags.Azure, flags.AzureTenantID != "", flags.AzureClientID != "":
		method = stockimport.AuthMethodAzureEntraID
	case !explicit && (env.AZURE_TENANT_ID != "" || env.AZURE_CLIENT_ID != ""):
		method = stockimport.AuthMethodAzureEntraID
	}
	cfg.AuthMethod = method

	switch method {
	case stockimport.AuthMethodAWSIAM:
		cfg.AWSRegion = firstNonEmpty(flags.AWSRegion, env.AWS_REGION, pc.AWSRegion)
	case stockimport.AuthMethodGoogleIAM:
		cfg.GoogleInstance = firstNonEmpty(flags.GoogleInstance, pc.GoogleInstance)
	case stockimport.AuthMethodAzureEntraID:
		cfg.AzureTenantID = firstNonEmpty(flags.AzureTenantID, env.AZURE_TENANT_ID, pc.AzureTenantID)
		cfg.AzureClientID = firstNonEmpty(flags.AzureClientID, env.AZURE_CLIENT_ID, pc.AzureClientID)
		cfg.AzureClientSecret = env.AZURE_CLIENT_SECRET
	}
	return nil
}

// resolveFromConnectionString parses a connection string, using the
// environment for parameters it leaves out (libpq behavior).
func resolveFromConnectionString(connStr string, envVars *EnvVars) (*stockimport.ConnectionConfig, error) {
	cfg, err := ParseConnectionString(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}

	if cfg.SSLMode == "" {
		cfg.SSLMode = firstNonEmpty(envVars.PGSSLMODE, "prefer")
	}
	if cfg.Password == "" {
		cfg.Password = firstNonEmpty(envVars.PGPASSWORD, envVars.DB_PASSWORD)
	}
	return cfg, nil
}

// resolveFromGranularParams builds a ConnectionConfig field by field.
func resolveFromGranularParams(
	flags *GranularConnFlags,
	envVars *EnvVars,
	projectConfig *config.ProjectConfig,
) (*stockimport.ConnectionConfig, error) {
	cfg := &stockimport.ConnectionConfig{
		AuthMethod:       stockimport.AuthMethodStandard,
		AdditionalParams: make(map[string]string),
	}

	var pc config.ConnectionConfig
	if projectConfig != nil {
		pc = projectConfig.Connection
	}

	cfg.Host = firstNonEmpty(flags.Host, envVars.PGHOST, envVars.DB_SERVERNAME, pc.Host, "localhost")

	port, err := resolvePort(flags.Port, envVars, pc.Port)
	if err != nil {
		return nil, err
	}
	cfg.Port = port

	cfg.Username = firstNonEmpty(flags.Username, envVars.PGUSER, envVars.DB_USERID, pc.Username, os.Getenv("USER"), os.Getenv("USERNAME"))
	cfg.Password = firstNonEmpty(envVars.PGPASSWORD, envVars.DB_PASSWORD)
	cfg.Database = firstNonEmpty(flags.Database, envVars.PGDATABASE, envVars.DB_NAME, pc.Database)
	cfg.SSLMode = firstNonEmpty(flags.SSLMode, envVars.PGSSLMODE, pc.SSLMode, "prefer")

	return cfg, nil
}

func resolvePort(flag int, envVars *EnvVars, fromConfig int) (int, error) {
	if flag != 0 {
		return flag, nil
	}
	for _, v := range []struct{ name, value string }{
		{"PGPORT", envVars.PGPORT},
		{"DB_PORT", envVars.DB_PORT},
	} {
		if v.value == "" {
			continue
		}
		port, err := strconv.Atoi(v.value)
		if err != nil || port < 1 || port > 65535 {
			return 0, fmt.Errorf("invalid $%s value '%s': must be a port number: %w", v.name, v.value, stockimport.ErrInvalidConfig)
		}
		return port, nil
	}
	if fromConfig != 0 {
		return fromConfig, nil
	}
	return 5432, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
