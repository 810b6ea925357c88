package backup

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/melbahja/goph"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const defaultSSHTimeout = 20 * time.Second

type SFTPConfig struct {
	User string
	Addr string
	// 0 means 22
	Port uint
	// private key used for authentication
	KeyPath       string
	KeyPassphrase string
	// directory on the server where snapshots are stored
	Dir string
	// skip checking server key against ~/.ssh/known_hosts
	InsecureIgnoreHostKey bool
	// 0 means 20 seconds
	Timeout time.Duration
}

// SFTP stores snapshots on a server over ssh.
// Each Put / Get opens a new connection.
type SFTP struct {
	config *SFTPConfig
}

var _ Target = &SFTP{}

func NewSFTP(config *SFTPConfig) (*SFTP, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: must provide SFTPConfig", ErrMissingConfig)
	}
	c := config
	var missing []string
	if c.User == "" {
		missing = append(missing, "User")
	}
	if c.Addr == "" {
		missing = append(missing, "Addr")
	}
	if c.KeyPath == "" {
		missing = append(missing, "KeyPath")
	}
	if c.Dir == "" {
		missing = append(missing, "Dir")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	return &SFTP{config: config}, nil
}

func (s *SFTP) Name() string {
	return fmt.Sprintf("sftp:%s@%s:%s", s.config.User, s.config.Addr, s.config.Dir)
}

func (s *SFTP) remotePath(name string) string {
	return path.Join(s.config.Dir, name)
}

func (s *SFTP) connect() (*goph.Client, error) {
	c := s.config
	auth, err := goph.Key(c.KeyPath, c.KeyPassphrase)
	if err != nil {
		return nil, fmt.Errorf("goph.Key('%s') failed with '%w'", c.KeyPath, err)
	}
	var callback ssh.HostKeyCallback
	if c.InsecureIgnoreHostKey {
		callback = ssh.InsecureIgnoreHostKey()
	} else {
		callback, err = goph.DefaultKnownHosts()
		if err != nil {
			return nil, err
		}
	}
	port := c.Port
	if port == 0 {
		port = 22
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = defaultSSHTimeout
	}
	return goph.NewConn(&goph.Config{
		User:     c.User,
		Addr:     c.Addr,
		Port:     port,
		Auth:     auth,
		Timeout:  timeout,
		Callback: callback,
	})
}

// withClient runs fn with a connected sftp client.
// Cancelling ctx closes the connection, which aborts fn.
func (s *SFTP) withClient(ctx context.Context, fn func(sc *sftp.Client) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := s.connect()
	if err != nil {
		return err
	}
	defer client.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})
	defer stop()

	sc, err := client.NewSftp()
	if err != nil {
		return err
	}
	defer sc.Close()
	err = fn(sc)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (s *SFTP) Put(ctx context.Context, name string, data []byte) error {
	return s.withClient(ctx, func(sc *sftp.Client) error {
		remotePath := s.remotePath(name)
		if err := sc.MkdirAll(path.Dir(remotePath)); err != nil {
			return fmt.Errorf("sftp.MkdirAll('%s') failed with '%w'", path.Dir(remotePath), err)
		}
		// upload to a temp name so that a failed upload
		// doesn't replace a good snapshot
		tmpPath := remotePath + ".tmp"
		f, err := sc.Create(tmpPath)
		if err != nil {
			return err
		}
		_, err = f.Write(data)
		errClose := f.Close()
		if err != nil || errClose != nil {
			_ = sc.Remove(tmpPath)
			if err == nil {
				err = errClose
			}
			return err
		}
		return sc.PosixRename(tmpPath, remotePath)
	})
}

func (s *SFTP) Get(ctx context.Context, name string) ([]byte, error) {
	var res []byte
	err := s.withClient(ctx, func(sc *sftp.Client) error {
		f, err := sc.Open(s.remotePath(name))
		if err != nil {
			return err
		}
		defer f.Close()
		res, err = io.ReadAll(f)
		return err
	})
	return res, err
}
