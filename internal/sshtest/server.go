// Package sshtest runs in-process SSH servers for tests. Servers accept
// both password and public-key authentication and hand every exec request to
// a scripted Handler, which writes the command's output and exit status.
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
)

// Handler receives the exec'd command and the session channel. It owns the
// channel until it returns; the server closes the channel afterwards.
type Handler func(cmd string, ch ssh.Channel)

// Server is a running test SSH server.
type Server struct {
	Host     string
	Port     int
	User     string
	Password string
	// KeyPath is an unencrypted client private key accepted by the server.
	KeyPath string
	// EncryptedKeyPath is the same key encrypted with KeyPassphrase.
	EncryptedKeyPath string
	KeyPassphrase    string

	listener net.Listener

	mu       sync.Mutex
	commands []string
	closed   int
}

// Start launches a server on 127.0.0.1 and registers its shutdown with t.Cleanup.
func Start(t testing.TB, handler Handler) *Server {
	t.Helper()

	hostSigner := newSigner(t)

	clientPub, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	clientSSHPub, err := ssh.NewPublicKey(clientPub)
	if err != nil {
		t.Fatalf("convert client pub key: %v", err)
	}

	dir := t.TempDir()
	keyPath := filepath.Join(dir, "id_ed25519")
	writeKey(t, keyPath, clientPriv, "")
	encPath := filepath.Join(dir, "id_ed25519_enc")
	writeKey(t, encPath, clientPriv, "s3cret-phrase")

	s := &Server{
		Host:             "127.0.0.1",
		User:             "tester",
		Password:         "correct-horse",
		KeyPath:          keyPath,
		EncryptedKeyPath: encPath,
		KeyPassphrase:    "s3cret-phrase",
	}

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if conn.User() == s.User && string(password) == s.Password {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("password rejected for %q", conn.User())
		},
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if conn.User() == s.User && ssh.FingerprintSHA256(key) == ssh.FingerprintSHA256(clientSSHPub) {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown public key")
		},
	}
	cfg.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s.listener = listener
	s.Port = listener.Addr().(*net.TCPAddr).Port

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go s.handleConn(conn, cfg, handler)
		}
	}()

	t.Cleanup(func() { listener.Close() })
	return s
}

// Addr returns the listening host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Dial opens a password-authenticated client to the server and closes it
// when the test ends.
func (s *Server) Dial(t testing.TB) *ssh.Client {
	t.Helper()
	client, err := ssh.Dial("tcp", s.Addr(), &ssh.ClientConfig{
		User:            s.User,
		Auth:            []ssh.AuthMethod{ssh.Password(s.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	})
	if err != nil {
		t.Fatalf("dial test server: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// Commands returns every command exec'd on the server so far.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// ClosedChannels reports how many session channels have finished.
func (s *Server) ClosedChannels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) handleConn(netConn net.Conn, cfg *ssh.ServerConfig, handler Handler) {
	defer netConn.Close()
	srvConn, chans, reqs, err := ssh.NewServerConn(netConn, cfg)
	if err != nil {
		return
	}
	defer srvConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, requests, handler)
	}
}

func (s *Server) handleSession(ch ssh.Channel, reqs <-chan *ssh.Request, handler Handler) {
	defer func() {
		ch.Close()
		s.mu.Lock()
		s.closed++
		s.mu.Unlock()
	}()

	for req := range reqs {
		if req.Type != "exec" {
			if req.WantReply {
				req.Reply(false, nil)
			}
			continue
		}
		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			req.Reply(false, nil)
			continue
		}
		s.mu.Lock()
		s.commands = append(s.commands, payload.Command)
		s.mu.Unlock()
		req.Reply(true, nil)

		go ssh.DiscardRequests(reqs)
		handler(payload.Command, ch)
		return
	}
}

// SendExitStatus sends an exit-status request on the channel.
func SendExitStatus(ch ssh.Channel, code int) {
	payload := ssh.Marshal(struct{ Status uint32 }{uint32(code)})
	ch.SendRequest("exit-status", false, payload)
}

// WaitForClose blocks until the client closes the channel.
func WaitForClose(ch ssh.Channel) {
	buf := make([]byte, 64)
	for {
		if _, err := ch.Read(buf); err != nil {
			return
		}
	}
}

// StartGarbageServer accepts TCP connections and answers with a non-SSH
// banner, so that clients fail during the protocol handshake.
func StartGarbageServer(t testing.TB) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
			conn.Close()
		}
	}()
	t.Cleanup(func() { listener.Close() })
	return listener.Addr().String()
}

// ClosedPort returns a localhost port with nothing listening on it.
func ClosedPort(t testing.TB) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()
	return port
}

func newSigner(t testing.TB) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("create host signer: %v", err)
	}
	return signer
}

func writeKey(t testing.TB, path string, key ed25519.PrivateKey, passphrase string) {
	t.Helper()
	var block *pem.Block
	var err error
	if passphrase == "" {
		var der []byte
		der, err = x509.MarshalPKCS8PrivateKey(key)
		if err == nil {
			block = &pem.Block{Type: "PRIVATE KEY", Bytes: der}
		}
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(key, "", []byte(passphrase))
	}
	if err != nil {
		t.Fatalf("marshal private key: %v", err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("write private key: %v", err)
	}
}
