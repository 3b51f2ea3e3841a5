package cli

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vvka-141/stockimport/internal/config"
	"github.com/vvka-141/stockimport/internal/source"
	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// importFlagValues holds every flag of the import command.
type importFlagValues struct {
	conn connectionFlags

	// source
	sourceKind            string
	sftpHost              string
	sftpPort              int
	sftpUser              string
	baseDir               string
	knownHosts            string
	insecureIgnoreHostKey bool
	delimiter             string
	noHeader              bool
	encoding              string
	lazyQuotes            bool

	// import
	table          string
	chunkSize      int
	onChunkFailure string
	chunkRetries   int
	noMergeLock    bool
	dryRun         bool

	timeout    time.Duration
	reportFile string
	configFile string
}

// fileStorageEnv holds the file storage variables of the legacy loader.
type fileStorageEnv struct {
	Host     string
	User     string
	Password string
	BaseDir  string
}

func loadFileStorageEnv() fileStorageEnv {
	return fileStorageEnv{
		Host:     os.Getenv("FILESTORAGE_HOST"),
		User:     os.Getenv("FILESTORAGE_USERID"),
		Password: os.Getenv("FILESTORAGE_PASSWORD"),
		BaseDir:  os.Getenv("FILESTORAGE_BASEDIR"),
	}
}

// loadProjectConfig loads .env and stockimport.yaml. Without --config a
// missing stockimport.yaml in the working directory is not an error.
func loadProjectConfig(configFile string) (*config.ProjectConfig, error) {
	_ = godotenv.Load()

	if configFile != "" {
		cfg, err := config.LoadFile(configFile)
		if err != nil {
			if errors.Is(err, config.ErrConfigNotFound) {
				return nil, fmt.Errorf("config file %s not found: %w", configFile, stockimport.ErrInvalidConfig)
			}
			return nil, fmt.Errorf("failed to load %s: %w: %w", configFile, stockimport.ErrInvalidConfig, err)
		}
		return cfg, nil
	}

	cfg, err := config.Load(".")
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load %s: %w: %w", config.ConfigFileName, stockimport.ErrInvalidConfig, err)
	}
	return cfg, nil
}

// resolveEffectiveTimeout returns the effective timeout, preferring
// stockimport.yaml if the flag wasn't set.
func resolveEffectiveTimeout(cmd *cobra.Command, projectCfg *config.ProjectConfig, flagTimeout time.Duration) (time.Duration, error) {
	if cmd.Flags().Changed("timeout") {
		return flagTimeout, nil
	}
	fromConfig, err := projectCfg.TimeoutDuration()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", stockimport.ErrInvalidConfig, err)
	}
	if fromConfig > 0 {
		return fromConfig, nil
	}
	return flagTimeout, nil
}

// resolveImportConfig layers flags over stockimport.yaml over defaults.
func resolveImportConfig(cmd *cobra.Command, flags importFlagValues, projectCfg *config.ProjectConfig) (stockimport.ImportConfig, error) {
	cfg := stockimport.DefaultImportConfig()
	changed := cmd.Flags().Changed

	if projectCfg != nil {
		ic := projectCfg.Import
		if ic.Table != "" {
			cfg.Table = ic.Table
		}
		if ic.ChunkSize != 0 {
			cfg.ChunkSize = ic.ChunkSize
		}
		if ic.OnChunkFailure != "" {
			policy, err := stockimport.ParseFailurePolicy(ic.OnChunkFailure)
			if err != nil {
				return cfg, err
			}
			cfg.OnChunkFailure = policy
		}
		if ic.ChunkRetries != nil {
			cfg.ChunkRetries = *ic.ChunkRetries
		}
		if ic.MergeLock != nil {
			cfg.MergeLock = *ic.MergeLock
		}
	}

	if changed("table") {
		cfg.Table = flags.table
	}
	if changed("chunk-size") {
		cfg.ChunkSize = flags.chunkSize
	}
	if changed("on-chunk-failure") {
		policy, err := stockimport.ParseFailurePolicy(flags.onChunkFailure)
		if err != nil {
			return cfg, err
		}
		cfg.OnChunkFailure = policy
	}
	if changed("chunk-retries") {
		cfg.ChunkRetries = flags.chunkRetries
	}
	if flags.noMergeLock {
		cfg.MergeLock = false
	}

	return cfg, cfg.Validate()
}

// resolveSource builds the opener and CSV options.
// Precedence per field: flag > FILESTORAGE_* > stockimport.yaml > default.
// A FILESTORAGE_HOST without an explicit kind selects SFTP, as the legacy
// loader always read from file storage.
func resolveSource(flags importFlagValues, env fileStorageEnv, projectCfg *config.ProjectConfig) (source.Config, source.Options, error) {
	var sc config.SourceConfig
	if projectCfg != nil {
		sc = projectCfg.Source
	}

	kindName := firstNonEmpty(flags.sourceKind, sc.Kind)
	if kindName == "" && (flags.sftpHost != "" || env.Host != "") {
		kindName = string(source.KindSFTP)
	}
	kind, err := source.ParseKind(kindName)
	if err != nil {
		return source.Config{}, source.Options{}, err
	}

	srcCfg := source.Config{
		Kind:    kind,
		BaseDir: firstNonEmpty(flags.baseDir, env.BaseDir, sc.BaseDir),
	}

	if kind == source.KindSFTP {
		host, port, err := splitHostPort(firstNonEmpty(flags.sftpHost, env.Host, sc.Host))
		if err != nil {
			return source.Config{}, source.Options{}, err
		}
		switch {
		case flags.sftpPort != 0:
			port = flags.sftpPort
		case port == 0:
			port = sc.Port
		}
		srcCfg.SFTP = source.SFTPConfig{
			Host:                  host,
			Port:                  port,
			User:                  firstNonEmpty(flags.sftpUser, env.User, sc.Username),
			Password:              env.Password,
			BaseDir:               srcCfg.BaseDir,
			KnownHostsFile:        firstNonEmpty(flags.knownHosts, sc.KnownHosts),
			InsecureIgnoreHostKey: flags.insecureIgnoreHostKey || sc.InsecureIgnoreHostKey,
		}
	}

	opts := source.DefaultOptions()
	delim, err := parseDelimiter(firstNonEmpty(flags.delimiter, sc.Delimiter))
	if err != nil {
		return source.Config{}, source.Options{}, err
	}
	if delim != 0 {
		opts.Delimiter = delim
	}
	if sc.HasHeader != nil {
		opts.HasHeader = *sc.HasHeader
	}
	if flags.noHeader {
		opts.HasHeader = false
	}
	opts.Encoding = firstNonEmpty(flags.encoding, sc.Encoding)
	if _, err := source.LookupEncoding(opts.Encoding); err != nil {
		return source.Config{}, source.Options{}, err
	}
	opts.LazyQuotes = flags.lazyQuotes || sc.LazyQuotes

	return srcCfg, opts, nil
}

// splitHostPort accepts "host" or "host:port".
func splitHostPort(addr string) (string, int, error) {
	if addr == "" {
		return "", 0, nil
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid file storage port in %q: %w", addr, stockimport.ErrInvalidConfig)
	}
	return host, port, nil
}

// parseDelimiter accepts a single character or the word "tab".
func parseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, fmt.Errorf("invalid delimiter %q (want a single character): %w", s, stockimport.ErrInvalidConfig)
	}
	return r, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
