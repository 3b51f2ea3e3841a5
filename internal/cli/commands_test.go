package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/stockimport/internal/checksum"
	"github.com/vvka-141/stockimport/pkg/stockimport"
)

const pricesCSV = `RowId,Date,SecuritiesCode,RecordedDate,Close,AdjustedClose,AdjustedCloseIncludingExDividend
20240301_1301,2024-03-01,1301,2024-03-01,3550,3550,3550.0
20240301_1332,2024-03-01,1332,2024-03-01,782.5,782.5,
20240301_1333,2024-03-01,1333,2024-03-01,n/a,2741,2741
20240301_1375,2024-03-01,oops,2024-03-01,1400,1400,1400
20240304_1301,2024-03-04,1301,2024-03-04,3560,3560,3560
`

func TestImportCmd_ArgsValidation(t *testing.T) {
	err := importCmd.Args(importCmd, []string{})
	require.Error(t, err)
	assert.Equal(t, stockimport.ExitUsageError, stockimport.ExitCodeForError(err))

	err = importCmd.Args(importCmd, []string{"a.csv", "b.csv"})
	assert.Error(t, err)
}

func TestImportCmd_IsRegistered(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"import"})
	require.NoError(t, err)
	assert.Equal(t, importCmd, cmd)

	for _, name := range []string{"host", "port", "username", "database"} {
		assert.NotNil(t, importCmd.Flags().Lookup(name), "flag %s", name)
	}
	assert.Equal(t, "h", importCmd.Flags().Lookup("host").Shorthand)
}

func TestImportCmd_DryRunWritesReport(t *testing.T) {
	dir := isolateEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prices.csv"), []byte(pricesCSV), 0o644))
	reportPath := filepath.Join(dir, "report.json")

	cmd, flags := newTestImportCmd(t, "--dry-run", "--chunk-size", "2", "--base-dir", dir, "--report-file", reportPath)
	require.NoError(t, runImport(cmd, "prices.csv", flags))

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)

	var doc struct {
		Outcome string `json:"outcome"`
		Source  struct {
			Name   string `json:"name"`
			SHA256 string `json:"sha256"`
			Bytes  int64  `json:"bytes"`
		} `json:"source"`
		RowsRead int `json:"rows_read"`
		Warnings []struct {
			Line  int    `json:"line"`
			Field string `json:"field"`
		} `json:"warnings"`
		Chunks []struct {
			State string `json:"state"`
			Rows  int    `json:"rows"`
		} `json:"chunks"`
		Totals struct {
			Parsed  int `json:"parsed"`
			Dropped int `json:"dropped"`
		} `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "dry_run", doc.Outcome)
	assert.Equal(t, filepath.Join(dir, "prices.csv"), doc.Source.Name)
	assert.Equal(t, checksum.Of([]byte(pricesCSV)), doc.Source.SHA256)
	assert.Equal(t, int64(len(pricesCSV)), doc.Source.Bytes)
	assert.Equal(t, 5, doc.RowsRead)
	require.Len(t, doc.Warnings, 1)
	assert.Equal(t, 5, doc.Warnings[0].Line)
	assert.Equal(t, "securities_code", doc.Warnings[0].Field)
	require.Len(t, doc.Chunks, 2)
	assert.Equal(t, "not attempted", doc.Chunks[0].State)
	assert.Equal(t, 4, doc.Totals.Parsed)
	assert.Equal(t, 1, doc.Totals.Dropped)
}

func TestImportCmd_MissingFile(t *testing.T) {
	dir := isolateEnv(t)

	cmd, flags := newTestImportCmd(t, "--dry-run", "--base-dir", dir)
	err := runImport(cmd, "missing.csv", flags)
	require.Error(t, err)
	assert.Equal(t, stockimport.ExitSourceUnavailable, stockimport.ExitCodeForError(err))
}

func TestImportCmd_MissingDatabase(t *testing.T) {
	dir := isolateEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prices.csv"), []byte(pricesCSV), 0o644))

	cmd, flags := newTestImportCmd(t, "--host", "localhost")
	err := runImport(cmd, filepath.Join(dir, "prices.csv"), flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database name is required")
	assert.Equal(t, stockimport.ExitConfigError, stockimport.ExitCodeForError(err))
}

func TestImportCmd_InvalidImportSettings(t *testing.T) {
	isolateEnv(t)

	cmd, flags := newTestImportCmd(t, "--dry-run", "--on-chunk-failure", "sometimes")
	err := runImport(cmd, "prices.csv", flags)
	assert.Equal(t, stockimport.ExitConfigError, stockimport.ExitCodeForError(err))
}

func TestImportCmd_ConfigFileOverridesDefaults(t *testing.T) {
	dir := isolateEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prices.csv"), []byte(pricesCSV), 0o644))
	configPath := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("import:\n  chunk_size: 1\n"), 0o644))
	reportPath := filepath.Join(dir, "report.json")

	cmd, flags := newTestImportCmd(t, "--dry-run", "--config", configPath, "--report-file", reportPath)
	require.NoError(t, runImport(cmd, filepath.Join(dir, "prices.csv"), flags))

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var doc struct {
		ChunkSize int               `json:"chunk_size"`
		Chunks    []json.RawMessage `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 1, doc.ChunkSize)
	assert.Len(t, doc.Chunks, 4)
}

func TestNewLogger(t *testing.T) {
	cmd, _ := newTestImportCmd(t)
	_, err := newLogger(cmd, false)
	assert.NoError(t, err)

	require.NoError(t, cmd.Flags().Set("log-format", "json"))
	_, err = newLogger(cmd, true)
	assert.NoError(t, err)

	require.NoError(t, cmd.Flags().Set("log-format", "xml"))
	_, err = newLogger(cmd, false)
	assert.ErrorIs(t, err, stockimport.ErrInvalidConfig)
}
