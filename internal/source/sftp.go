package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// SFTPConfig describes the file storage server.
type SFTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	BaseDir  string

	// KnownHostsFile verifies the server key. Defaults to ~/.ssh/known_hosts.
	KnownHostsFile string
	// InsecureIgnoreHostKey skips host key verification entirely.
	InsecureIgnoreHostKey bool

	Timeout time.Duration
}

// Validate checks if the SFTPConfig has all required fields.
// It returns a multi-error if multiple validation failures occur.
func (c *SFTPConfig) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, fmt.Errorf("sftp host is required (--sftp-host or $FILESTORAGE_HOST): %w", stockimport.ErrInvalidConfig))
	}
	if c.User == "" {
		errs = append(errs, fmt.Errorf("sftp user is required (--sftp-user or $FILESTORAGE_USERID): %w", stockimport.ErrInvalidConfig))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("sftp port %d out of range: %w", c.Port, stockimport.ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

func (c *SFTPConfig) addr() string {
	port := c.Port
	if port == 0 {
		port = stockimport.DefaultSFTPPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// SFTPOpener opens files on an SFTP server, one SSH session per file.
type SFTPOpener struct {
	cfg    SFTPConfig
	logger stockimport.Logger
}

// NewSFTPOpener creates an opener for cfg.
func NewSFTPOpener(cfg SFTPConfig, logger stockimport.Logger) *SFTPOpener {
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &SFTPOpener{cfg: cfg, logger: logger}
}

func (o *SFTPOpener) Describe(name string) string {
	return fmt.Sprintf("sftp://%s@%s%s", o.cfg.User, o.cfg.addr(), o.remotePath(name))
}

func (o *SFTPOpener) remotePath(name string) string {
	if o.cfg.BaseDir == "" || path.IsAbs(name) {
		return name
	}
	return path.Join(o.cfg.BaseDir, name)
}

// Open dials the server and returns the remote file. Closing it tears down
// the SFTP client and the SSH connection.
func (o *SFTPOpener) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	hostKeys, err := o.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	timeout := o.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	clientCfg := &ssh.ClientConfig{
		User: o.cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(o.cfg.Password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = o.cfg.Password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	}

	addr := o.cfg.addr()
	o.logger.Verbose("Connecting to file storage %s as %s", addr, o.cfg.User)

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w: %w", addr, stockimport.ErrSourceUnavailable, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w: %w", addr, stockimport.ErrSourceUnavailable, err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("start sftp session on %s: %w: %w", addr, stockimport.ErrSourceUnavailable, err)
	}

	remote := o.remotePath(name)
	f, err := sftpClient.Open(remote)
	if err != nil {
		sftpClient.Close()
		sshClient.Close()
		return nil, fmt.Errorf("open %s: %w: %w", o.Describe(name), stockimport.ErrSourceUnavailable, err)
	}

	o.logger.Verbose("Opened %s", o.Describe(name))
	return &sftpFile{File: f, sftp: sftpClient, ssh: sshClient}, nil
}

func (o *SFTPOpener) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if o.cfg.InsecureIgnoreHostKey {
		o.logger.Warn("Host key verification for %s is disabled", o.cfg.Host)
		return ssh.InsecureIgnoreHostKey(), nil
	}

	file := o.cfg.KnownHostsFile
	if file == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate known_hosts: %w", err)
		}
		file = filepath.Join(home, ".ssh", "known_hosts")
	}

	cb, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("load known hosts %s (use --known-hosts or --insecure-ignore-host-key): %w: %w",
			file, stockimport.ErrInvalidConfig, err)
	}
	return cb, nil
}

type sftpFile struct {
	*sftp.File
	sftp *sftp.Client
	ssh  *ssh.Client
}

func (f *sftpFile) Close() error {
	return errors.Join(f.File.Close(), f.sftp.Close(), f.ssh.Close())
}
