package db

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// ParseConnectionString parses a connection string into a ConnectionConfig.
// Three forms are accepted:
//
//	postgresql://loader:secret@db:5432/prices?sslmode=require
//	Server=db;Port=5432;Database=prices;User Id=loader;Password=secret
//	host=db port=5432 dbname=prices user=loader
//
// Keywords are matched case-insensitively and may use the names of the
// legacy import job's environment (DB_SERVERNAME, DB_USERID, ...).
// "auth_method" selects cloud IAM authentication. Unknown keywords are
// passed through to the driver. Every error wraps ErrInvalidConfig.
func ParseConnectionString(connStr string) (*stockimport.ConnectionConfig, error) {
	connStr = strings.TrimSpace(connStr)
	switch {
	case connStr == "":
		return nil, invalidConn("connection string is empty")
	case strings.HasPrefix(connStr, "postgresql://"), strings.HasPrefix(connStr, "postgres://"):
		return parseURI(connStr)
	case strings.Contains(connStr, "=") && strings.Contains(connStr, ";"):
		return parsePairs(strings.Split(connStr, ";"))
	case strings.Contains(connStr, "="):
		return parsePairs(strings.Fields(connStr))
	}
	return nil, invalidConn("unrecognized connection string format")
}

// ParseAuthMethod maps a config-file auth method name to an AuthMethod.
// A blank name means standard authentication.
func ParseAuthMethod(name string) (stockimport.AuthMethod, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "standard", "password":
		return stockimport.AuthMethodStandard, nil
	case "aws", "aws_iam", "aws-iam":
		return stockimport.AuthMethodAWSIAM, nil
	case "google", "google_iam", "google-iam", "gcp":
		return stockimport.AuthMethodGoogleIAM, nil
	case "azure", "azure_entra_id", "entra", "entra-id":
		return stockimport.AuthMethodAzureEntraID, nil
	default:
		return stockimport.AuthMethodStandard, fmt.Errorf("unknown auth method %q (use standard, aws, google or azure): %w", name, stockimport.ErrInvalidConfig)
	}
}

type keywordSetter func(cfg *stockimport.ConnectionConfig, value string) error

// connKeywords maps every accepted keyword spelling to its field.
var connKeywords = map[string]keywordSetter{}

func init() {
	register := func(set keywordSetter, names ...string) {
		for _, n := range names {
			connKeywords[n] = set
		}
	}
	register(func(c *stockimport.ConnectionConfig, v string) error { c.Host = v; return nil },
		"host", "server", "db_servername")
	register(setPort, "port", "db_port")
	register(func(c *stockimport.ConnectionConfig, v string) error { c.Database = v; return nil },
		"dbname", "database", "initial catalog", "db_name")
	register(func(c *stockimport.ConnectionConfig, v string) error { c.Username = v; return nil },
		"user", "username", "user id", "uid", "db_userid")
	register(func(c *stockimport.ConnectionConfig, v string) error { c.Password = v; return nil },
		"password", "pwd", "db_password")
	register(func(c *stockimport.ConnectionConfig, v string) error { c.SSLMode = v; return nil },
		"sslmode", "ssl mode")
	register(func(c *stockimport.ConnectionConfig, v string) error { c.AppName = v; return nil },
		"application_name", "application name", "applicationname")
	register(setConnectTimeout, "connect_timeout", "connect timeout", "connecttimeout", "timeout")
	register(func(c *stockimport.ConnectionConfig, v string) error {
		m, err := ParseAuthMethod(v)
		c.AuthMethod = m
		return err
	}, "auth_method", "auth method")
}

func setPort(cfg *stockimport.ConnectionConfig, value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return invalidConn("invalid port %q", value)
	}
	cfg.Port = port
	return nil
}

func setConnectTimeout(cfg *stockimport.ConnectionConfig, value string) error {
	secs, err := strconv.Atoi(value)
	if err != nil || secs < 0 {
		return invalidConn("invalid connect timeout %q: want whole seconds", value)
	}
	cfg.ConnectTimeout = time.Duration(secs) * time.Second
	return nil
}

func (set keywordSetter) apply(cfg *stockimport.ConnectionConfig, key, value string) error {
	if set == nil {
		cfg.AdditionalParams[key] = value
		return nil
	}
	return set(cfg, value)
}

func newParsedConfig() *stockimport.ConnectionConfig {
	return &stockimport.ConnectionConfig{
		Host:             "localhost",
		Port:             5432,
		Database:         "postgres",
		AuthMethod:       stockimport.AuthMethodStandard,
		AdditionalParams: make(map[string]string),
	}
}

func parseURI(connStr string) (*stockimport.ConnectionConfig, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, invalidConn("invalid PostgreSQL URI: %v", err)
	}
	if strings.Contains(u.Host, ",") {
		return nil, invalidConn("multiple hosts are not supported")
	}

	cfg := newParsedConfig()
	if h := u.Hostname(); h != "" {
		cfg.Host = h
	}
	if p := u.Port(); p != "" {
		if err := setPort(cfg, p); err != nil {
			return nil, err
		}
	}
	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		cfg.Database = db
	}

	for key, values := range u.Query() {
		if len(values) == 0 {
			continue
		}
		if err := connKeywords[strings.ToLower(key)].apply(cfg, key, values[0]); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// parsePairs handles both the semicolon and the libpq whitespace form.
func parsePairs(pairs []string) (*stockimport.ConnectionConfig, error) {
	cfg := newParsedConfig()
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			if strings.TrimSpace(pair) == "" {
				continue
			}
			return nil, invalidConn("malformed connection string segment %q", pair)
		}
		value = strings.Trim(strings.TrimSpace(value), "'")
		if err := connKeywords[strings.ToLower(key)].apply(cfg, key, value); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// BuildConnectionString renders cfg as a URI for pgx. Auth method and cloud
// settings are not part of the result.
func BuildConnectionString(cfg *stockimport.ConnectionConfig) string {
	u := &url.URL{
		Scheme: "postgresql",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Database,
	}
	switch {
	case cfg.Username != "" && cfg.Password != "":
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	case cfg.Username != "":
		u.User = url.User(cfg.Username)
	}

	query := url.Values{}
	for key, value := range cfg.AdditionalParams {
		query.Set(key, value)
	}
	if cfg.SSLMode != "" {
		query.Set("sslmode", cfg.SSLMode)
	}
	if cfg.AppName != "" {
		query.Set("application_name", cfg.AppName)
	}
	if cfg.ConnectTimeout > 0 {
		query.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout/time.Second)))
	}
	u.RawQuery = query.Encode()
	return u.String()
}

func invalidConn(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), stockimport.ErrInvalidConfig)
}
