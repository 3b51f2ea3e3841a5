package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// Kind selects where files are read from.
type Kind string

const (
	KindSFTP  Kind = "sftp"
	KindLocal Kind = "local"
)

// ParseKind parses a source kind; empty means local.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindLocal:
		return KindLocal, nil
	case KindSFTP:
		return KindSFTP, nil
	default:
		return "", fmt.Errorf("unknown source kind %q (want sftp or local): %w", s, stockimport.ErrInvalidConfig)
	}
}

// Opener opens a named file for streaming.
type Opener interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Describe returns a human-readable location for name, used in reports.
	Describe(name string) string
}

// Config selects and configures an Opener.
type Config struct {
	Kind    Kind
	BaseDir string
	SFTP    SFTPConfig
}

// NewOpener builds the opener for cfg.
func NewOpener(cfg Config, logger stockimport.Logger) (Opener, error) {
	switch cfg.Kind {
	case KindSFTP:
		sftpCfg := cfg.SFTP
		if sftpCfg.BaseDir == "" {
			sftpCfg.BaseDir = cfg.BaseDir
		}
		if err := sftpCfg.Validate(); err != nil {
			return nil, err
		}
		return NewSFTPOpener(sftpCfg, logger), nil
	case KindLocal, "":
		return &LocalOpener{BaseDir: cfg.BaseDir}, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q: %w", cfg.Kind, stockimport.ErrInvalidConfig)
	}
}

// LocalOpener reads files from disk. Relative names resolve against BaseDir.
type LocalOpener struct {
	BaseDir string
}

func (o *LocalOpener) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(o.path(name))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", o.path(name), stockimport.ErrSourceUnavailable, err)
	}
	return f, nil
}

func (o *LocalOpener) Describe(name string) string {
	return o.path(name)
}

func (o *LocalOpener) path(name string) string {
	if o.BaseDir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(o.BaseDir, name)
}
