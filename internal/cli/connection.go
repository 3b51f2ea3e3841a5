package cli

import (
	"context"
	"io"

	"github.com/vvka-141/stockimport/internal/config"
	"github.com/vvka-141/stockimport/internal/db"
	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// connectionFlags holds the common connection-related flag values.
type connectionFlags struct {
	connection     string
	host           string
	port           int
	username       string
	database       string
	sslMode        string
	aws            bool
	awsRegion      string
	google         bool
	googleInstance string
	azure          bool
	azureTenantID  string
	azureClientID  string
}

func (f connectionFlags) granular() *db.GranularConnFlags {
	return &db.GranularConnFlags{
		Host:     f.host,
		Port:     f.port,
		Username: f.username,
		Database: f.database,
		SSLMode:  f.sslMode,
	}
}

func (f connectionFlags) cloud() *db.CloudFlags {
	return &db.CloudFlags{
		AWS:            f.aws,
		AWSRegion:      f.awsRegion,
		Google:         f.google,
		GoogleInstance: f.googleInstance,
		Azure:          f.azure,
		AzureTenantID:  f.azureTenantID,
		AzureClientID:  f.azureClientID,
	}
}

// resolveConnection resolves connection parameters from flags, the
// environment and stockimport.yaml.
func resolveConnection(flags connectionFlags, projectCfg *config.ProjectConfig) (*stockimport.ConnectionConfig, error) {
	return db.ResolveConnectionParams(
		flags.connection,
		flags.granular(),
		flags.cloud(),
		db.LoadFromEnvironment(),
		projectCfg,
	)
}

// connectStore opens a pool for connConfig and adapts it to a Store. The
// returned release func closes the pool and any connector resources.
func connectStore(ctx context.Context, connConfig *stockimport.ConnectionConfig, logger stockimport.Logger) (stockimport.Store, func(), error) {
	connector, err := db.NewConnector(connConfig, logger)
	if err != nil {
		return nil, nil, err
	}

	closeConnector := func() {
		if c, ok := connector.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Verbose("closing connector: %v", err)
			}
		}
	}

	pool, err := connector.Connect(ctx)
	if err != nil {
		closeConnector()
		return nil, nil, err
	}

	store := db.NewPoolAdapter(pool)
	return store, func() {
		store.Close()
		closeConnector()
	}, nil
}

// logConnectionVerbose logs connection details when verbose mode is enabled.
func logConnectionVerbose(logger stockimport.Logger, connConfig *stockimport.ConnectionConfig) {
	logger.Verbose("Connection resolved: host=%s port=%d user=%s database=%s sslmode=%s auth=%s",
		connConfig.Host, connConfig.Port, connConfig.Username, connConfig.Database, connConfig.SSLMode, connConfig.AuthMethod)
}
