package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// newTestImportCmd returns a detached import command with args parsed into
// fresh flag values, so tests never share the package-level flags.
func newTestImportCmd(t *testing.T, args ...string) (*cobra.Command, importFlagValues) {
	t.Helper()
	var values importFlagValues
	cmd := &cobra.Command{Use: "import"}
	cmd.Flags().BoolP("verbose", "v", false, "")
	cmd.Flags().String("log-format", "text", "")
	registerImportFlags(cmd.Flags(), &values)
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd, values
}

// isolateEnv clears every variable the import command reads and moves into
// an empty working directory so no .env or stockimport.yaml is picked up.
func isolateEnv(t *testing.T) string {
	t.Helper()
	for _, name := range []string{
		"PGHOST", "PGPORT", "PGUSER", "PGPASSWORD", "PGDATABASE", "PGSSLMODE",
		"DATABASE_URL", "STOCKIMPORT_CONNECTION_STRING",
		"DB_SERVERNAME", "DB_PORT", "DB_USERID", "DB_PASSWORD", "DB_NAME",
		"FILESTORAGE_HOST", "FILESTORAGE_USERID", "FILESTORAGE_PASSWORD", "FILESTORAGE_BASEDIR",
		"AZURE_TENANT_ID", "AZURE_CLIENT_ID", "AZURE_CLIENT_SECRET", "AWS_REGION",
	} {
		t.Setenv(name, "")
	}
	t.Setenv("STOCKIMPORT_NON_INTERACTIVE", "1")
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}
