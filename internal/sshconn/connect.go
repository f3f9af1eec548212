package sshconn

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/gluk-w/claworc/log-viewer/internal/logutil"
)

const defaultDialTimeout = 10 * time.Second

// Options configures a Connector.
type Options struct {
	// DialTimeout bounds the TCP connect and, separately, the SSH handshake
	// plus authentication. Defaults to 10s.
	DialTimeout time.Duration

	// KnownHostsPath enables host key verification against an OpenSSH
	// known_hosts file. Empty accepts any host key.
	KnownHostsPath string

	// AllowHost, if set, is consulted before dialing. A non-nil error
	// aborts the attempt with ErrHostRestricted.
	AllowHost func(host string) error
}

// Connector opens authenticated SSH sessions. It performs no retries; retry
// policy belongs to the caller. A Connector is safe for concurrent use.
type Connector struct {
	dialTimeout     time.Duration
	hostKeyCallback ssh.HostKeyCallback
	allowHost       func(host string) error
	dialer          func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewConnector builds a Connector from opts.
func NewConnector(opts Options) (*Connector, error) {
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if opts.KnownHostsPath != "" {
		cb, err := knownhosts.New(opts.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts %s: %w", logutil.SanitizeForLog(opts.KnownHostsPath), err)
		}
		hostKeyCallback = cb
	}

	d := &net.Dialer{Timeout: timeout}
	return &Connector{
		dialTimeout:     timeout,
		hostKeyCallback: hostKeyCallback,
		allowHost:       opts.AllowHost,
		dialer:          d.DialContext,
	}, nil
}

// Connect dials creds.Endpoint and returns an authenticated client capable of
// opening command channels. Each step fails with its own error kind:
// ErrUnreachable for the TCP connect, ErrHandshakeFailed for key exchange
// and host key verification, ErrAuthRejected for authentication.
//
// ctx bounds the TCP connect only. Once the stream is open, the handshake
// runs to completion or to the dial timeout.
func (c *Connector) Connect(ctx context.Context, creds Credentials) (*ssh.Client, error) {
	return c.ConnectWithProgress(ctx, creds, nil)
}

// Stage names a step of Connect reported to a progress hook.
type Stage string

const (
	StageDialing        Stage = "dialing"
	StageAuthenticating Stage = "authenticating"
)

// ConnectWithProgress is Connect with a hook called as each step begins:
// StageDialing before the TCP connect, StageAuthenticating once the stream
// is open and the handshake starts. progress may be nil.
func (c *Connector) ConnectWithProgress(ctx context.Context, creds Credentials, progress func(Stage)) (*ssh.Client, error) {
	if progress == nil {
		progress = func(Stage) {}
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	addr := creds.Endpoint.Addr()

	if c.allowHost != nil {
		if err := c.allowHost(creds.Endpoint.Host); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrHostRestricted, err)
		}
	}

	// Step 1: raw network stream.
	progress(StageDialing)
	conn, err := c.dialer(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to %s: %w", ErrUnreachable, logutil.SanitizeForLog(addr), err)
	}

	// Step 3 is prepared before step 2 so that an unusable key is reported
	// without spending a handshake.
	var authAttempted atomic.Bool
	authMethod, err := creds.Auth.sshAuth(&authAttempted)
	if err != nil {
		conn.Close()
		return nil, err
	}

	progress(StageAuthenticating)
	config := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: c.hostKeyCallback,
		Timeout:         c.dialTimeout,
	}

	// Step 2 + 3: handshake and authentication. x/crypto performs both in
	// NewClientConn; the auth callback tells them apart.
	if err := conn.SetDeadline(time.Now().Add(c.dialTimeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: set deadline: %w", ErrUnreachable, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		if authAttempted.Load() || isAuthFailure(err) {
			return nil, fmt.Errorf("%w: %s@%s: %w", ErrAuthRejected, logutil.SanitizeForLog(creds.Username), logutil.SanitizeForLog(addr), err)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrHandshakeFailed, logutil.SanitizeForLog(addr), err)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		sshConn.Close()
		return nil, fmt.Errorf("%w: clear deadline: %w", ErrHandshakeFailed, err)
	}

	log.Printf("[ssh] connected to %s as %s (%s)", logutil.SanitizeForLog(addr), logutil.SanitizeForLog(creds.Username), creds.Auth.Type())
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Test connects and immediately closes the session. It backs the
// connect-test request.
func (c *Connector) Test(ctx context.Context, creds Credentials) error {
	client, err := c.Connect(ctx, creds)
	if err != nil {
		return err
	}
	return client.Close()
}

func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}
