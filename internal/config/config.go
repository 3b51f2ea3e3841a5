package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned when the config file does not exist.
// Callers can check for this with errors.Is(err, config.ErrConfigNotFound).
var ErrConfigNotFound = errors.New("config file not found")

type ConnectionConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Database       string `yaml:"database"`
	SSLMode        string `yaml:"sslmode"`
	AuthMethod     string `yaml:"auth_method,omitempty"`
	AzureTenantID  string `yaml:"azure_tenant_id,omitempty"`
	AzureClientID  string `yaml:"azure_client_id,omitempty"`
	AWSRegion      string `yaml:"aws_region,omitempty"`
	GoogleInstance string `yaml:"google_instance,omitempty"`
}

// SourceConfig describes where price files are read from and how they
// are laid out. Unset booleans keep the built-in defaults.
type SourceConfig struct {
	Kind                  string `yaml:"kind,omitempty"`
	Host                  string `yaml:"host,omitempty"`
	Port                  int    `yaml:"port,omitempty"`
	Username              string `yaml:"username,omitempty"`
	BaseDir               string `yaml:"base_dir,omitempty"`
	KnownHosts            string `yaml:"known_hosts,omitempty"`
	InsecureIgnoreHostKey bool   `yaml:"insecure_ignore_host_key,omitempty"`
	Delimiter             string `yaml:"delimiter,omitempty"`
	HasHeader             *bool  `yaml:"has_header,omitempty"`
	Encoding              string `yaml:"encoding,omitempty"`
	LazyQuotes            bool   `yaml:"lazy_quotes,omitempty"`
}

type ImportConfig struct {
	Table          string `yaml:"table,omitempty"`
	ChunkSize      int    `yaml:"chunk_size,omitempty"`
	OnChunkFailure string `yaml:"on_chunk_failure,omitempty"`
	ChunkRetries   *int   `yaml:"chunk_retries,omitempty"`
	MergeLock      *bool  `yaml:"merge_lock,omitempty"`
}

type ProjectConfig struct {
	Connection ConnectionConfig `yaml:"connection"`
	Source     SourceConfig     `yaml:"source"`
	Import     ImportConfig     `yaml:"import"`
	Timeout    string           `yaml:"timeout"`
}

// TimeoutDuration parses Timeout. A blank value yields zero.
func (c *ProjectConfig) TimeoutDuration() (time.Duration, error) {
	if c == nil || c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q in %s: %w", c.Timeout, ConfigFileName, err)
	}
	return d, nil
}

const ConfigFileName = "stockimport.yaml"

// Load reads ConfigFileName from dir.
func Load(dir string) (*ProjectConfig, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads a config file at an explicit path.
func LoadFile(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}
