package sshconn

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/crypto/ssh"

	"github.com/gluk-w/claworc/log-viewer/internal/logutil"
)

// DefaultPort is used when an endpoint is given without a port.
const DefaultPort = 22

// Auth type identifiers used on the wire.
const (
	AuthTypePassword = "password"
	AuthTypeKey      = "key"
)

// Endpoint identifies a remote SSH server. Two endpoints are equal iff host
// and port match exactly; no DNS normalization is performed, so Endpoint is
// usable directly as a map key.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// NewEndpoint returns an Endpoint, substituting DefaultPort for a zero port.
func NewEndpoint(host string, port int) Endpoint {
	if port == 0 {
		port = DefaultPort
	}
	return Endpoint{Host: host, Port: port}
}

// Addr returns the dialable host:port address.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return e.Addr()
}

// Validate checks that the endpoint can be dialed.
func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.Host) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidCredentials)
	}
	if e.Port <= 0 || e.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidCredentials, e.Port)
	}
	return nil
}

// AuthMethod is one authentication strategy. The set of implementations is
// closed: PasswordAuth and KeyAuth.
type AuthMethod interface {
	// Type returns AuthTypePassword or AuthTypeKey.
	Type() string
	// sshAuth builds the x/crypto auth method. attempted is set once the
	// server has asked for this method, which only happens after key
	// exchange has completed.
	sshAuth(attempted *atomic.Bool) (ssh.AuthMethod, error)
	validate() error
}

// PasswordAuth authenticates with a password.
type PasswordAuth struct {
	Password string
}

func (PasswordAuth) Type() string { return AuthTypePassword }

func (a PasswordAuth) String() string {
	return "password(" + logutil.Redact(a.Password) + ")"
}

func (a PasswordAuth) GoString() string { return a.String() }

func (a PasswordAuth) validate() error { return nil }

func (a PasswordAuth) sshAuth(attempted *atomic.Bool) (ssh.AuthMethod, error) {
	pw := a.Password
	return ssh.PasswordCallback(func() (string, error) {
		attempted.Store(true)
		return pw, nil
	}), nil
}

// KeyAuth authenticates with a private key file and an optional passphrase.
// An absent passphrase is treated as the empty string.
type KeyAuth struct {
	PrivateKeyPath string
	Passphrase     string
}

func (KeyAuth) Type() string { return AuthTypeKey }

func (a KeyAuth) String() string {
	s := "key(" + logutil.SanitizeForLog(a.PrivateKeyPath)
	if a.Passphrase != "" {
		s += ", passphrase=" + logutil.Redact(a.Passphrase)
	}
	return s + ")"
}

func (a KeyAuth) GoString() string { return a.String() }

func (a KeyAuth) validate() error {
	if strings.TrimSpace(a.PrivateKeyPath) == "" {
		return fmt.Errorf("%w: private key path is empty", ErrInvalidCredentials)
	}
	return nil
}

func (a KeyAuth) sshAuth(attempted *atomic.Bool) (ssh.AuthMethod, error) {
	signer, err := LoadSigner(a.PrivateKeyPath, a.Passphrase)
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
		attempted.Store(true)
		return []ssh.Signer{signer}, nil
	}), nil
}

// Credentials is an endpoint plus a username and exactly one AuthMethod.
// Treat values as immutable once constructed. String and GoString redact
// secrets, so a Credentials value is safe to pass to the logger.
type Credentials struct {
	Endpoint Endpoint
	Username string
	Auth     AuthMethod
}

// Validate checks the endpoint, username and auth variant.
func (c Credentials) Validate() error {
	if err := c.Endpoint.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("%w: username is empty", ErrInvalidCredentials)
	}
	if c.Auth == nil {
		return fmt.Errorf("%w: no authentication method", ErrInvalidCredentials)
	}
	return c.Auth.validate()
}

func (c Credentials) String() string {
	auth := "none"
	if c.Auth != nil {
		auth = fmt.Sprint(c.Auth)
	}
	return fmt.Sprintf("%s@%s [%s]", logutil.SanitizeForLog(c.Username), logutil.SanitizeForLog(c.Endpoint.Addr()), auth)
}

func (c Credentials) GoString() string { return c.String() }

// CredentialSpec is the wire form of Credentials: a flat object tagged by
// auth_type, as sent by the presentation layer.
type CredentialSpec struct {
	Host           string `json:"host" yaml:"host"`
	Port           int    `json:"port,omitempty" yaml:"port,omitempty"`
	Username       string `json:"username" yaml:"username"`
	AuthType       string `json:"auth_type" yaml:"auth_type"`
	Password       string `json:"password,omitempty" yaml:"password,omitempty"`
	PrivateKeyPath string `json:"private_key_path,omitempty" yaml:"private_key_path,omitempty"`
	Passphrase     string `json:"passphrase,omitempty" yaml:"passphrase,omitempty"`
}

// Credentials converts the spec into validated Credentials.
func (s CredentialSpec) Credentials() (Credentials, error) {
	var auth AuthMethod
	switch s.AuthType {
	case AuthTypePassword:
		auth = PasswordAuth{Password: s.Password}
	case AuthTypeKey:
		auth = KeyAuth{PrivateKeyPath: s.PrivateKeyPath, Passphrase: s.Passphrase}
	case "":
		return Credentials{}, fmt.Errorf("%w: auth_type is required", ErrInvalidCredentials)
	default:
		return Credentials{}, fmt.Errorf("%w: unknown auth_type %q", ErrInvalidCredentials, logutil.SanitizeForLog(s.AuthType))
	}
	c := Credentials{
		Endpoint: NewEndpoint(strings.TrimSpace(s.Host), s.Port),
		Username: s.Username,
		Auth:     auth,
	}
	if err := c.Validate(); err != nil {
		return Credentials{}, err
	}
	return c, nil
}
