// Package remote provides the FTP client used to list, search and fetch
// batch files from the remote file server.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
)

var (
	// ErrNotConnected is returned by every operation before Connect succeeds.
	ErrNotConnected = errors.New("not connected to FTP")

	// ErrNoMatch is returned by SearchFiles when no name contains the keyword.
	ErrNoMatch = errors.New("there is no file with this name")

	// ErrFileTooLarge is returned by Fetch when the content exceeds the limit.
	ErrFileTooLarge = errors.New("file too large")
)

// DefaultPort is appended to hosts given without a port.
const DefaultPort = "21"

// Conn is the subset of an FTP control connection the client needs.
type Conn interface {
	Login(user, password string) error
	NameList(path string) ([]string, error)
	FileSize(path string) (int64, error)
	Retr(path string) (io.ReadCloser, error)
	Quit() error
}

// DialFunc opens a control connection to addr.
type DialFunc func(ctx context.Context, addr string, timeout time.Duration) (Conn, error)

// Client is a thread-safe FTP client holding at most one connection.
// A control connection serves one command at a time, so operations are
// serialized.
type Client struct {
	dial    DialFunc
	timeout time.Duration

	mu   sync.Mutex
	conn Conn
	host string
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the network dialer, mainly for tests.
func WithDialer(d DialFunc) Option {
	return func(c *Client) { c.dial = d }
}

// NewClient creates a disconnected client. dialTimeout bounds connection setup.
func NewClient(dialTimeout time.Duration, opts ...Option) *Client {
	c := &Client{
		dial:    dialFTP,
		timeout: dialTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials host and logs in, replacing any existing connection.
func (c *Client) Connect(ctx context.Context, host, user, password string) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return errors.New("ftp connect: host is required")
	}
	addr := withDefaultPort(host)

	conn, err := c.dial(ctx, addr, c.timeout)
	if err != nil {
		return fmt.Errorf("ftp connect %s: %w", addr, err)
	}
	if err := conn.Login(user, password); err != nil {
		_ = conn.Quit()
		return fmt.Errorf("ftp login %s: %w", addr, err)
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.host = addr
	c.mu.Unlock()

	if old != nil {
		_ = old.Quit()
	}
	return nil
}

// IsConnected reports whether a connection is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Host returns the address of the current connection, or "".
func (c *Client) Host() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host
}

// Close quits the current connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.host = ""
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Quit()
}

// ListFiles returns the names in the server's current directory.
func (c *Client) ListFiles(ctx context.Context) ([]string, error) {
	var names []string
	err := c.withConn(ctx, func(conn Conn) error {
		var err error
		names, err = conn.NameList("")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return names, nil
}

// SearchFiles returns the listed names containing keyword (case-sensitive).
func (c *Client) SearchFiles(ctx context.Context, keyword string) ([]string, error) {
	names, err := c.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	matched := FilterNames(names, keyword)
	if len(matched) == 0 {
		return nil, ErrNoMatch
	}
	return matched, nil
}

// FilterNames returns the names containing keyword, preserving order.
func FilterNames(names []string, keyword string) []string {
	var matched []string
	for _, n := range names {
		if strings.Contains(n, keyword) {
			matched = append(matched, n)
		}
	}
	return matched
}

// Size returns the size of the named file in bytes.
func (c *Client) Size(ctx context.Context, name string) (int64, error) {
	var size int64
	err := c.withConn(ctx, func(conn Conn) error {
		var err error
		size, err = conn.FileSize(name)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("size %s: %w", name, err)
	}
	return size, nil
}

// Fetch retrieves the complete content of the named file. Content larger
// than maxBytes fails with ErrFileTooLarge; maxBytes <= 0 means no limit.
func (c *Client) Fetch(ctx context.Context, name string, maxBytes int64) ([]byte, error) {
	var data []byte
	err := c.withConn(ctx, func(conn Conn) error {
		resp, err := conn.Retr(name)
		if err != nil {
			return err
		}
		defer resp.Close()

		data, err = io.ReadAll(newTransferReader(ctx, resp, maxBytes))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	return data, nil
}

func (c *Client) withConn(ctx context.Context, fn func(Conn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	return fn(c.conn)
}

func withDefaultPort(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), DefaultPort)
}

// serverConn adapts *ftp.ServerConn to Conn.
type serverConn struct {
	*ftp.ServerConn
}

func (s serverConn) Retr(path string) (io.ReadCloser, error) {
	resp, err := s.ServerConn.Retr(path)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func dialFTP(ctx context.Context, addr string, timeout time.Duration) (Conn, error) {
	sc, err := ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(timeout),
	)
	if err != nil {
		return nil, err
	}
	return serverConn{sc}, nil
}
