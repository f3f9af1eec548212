package sshtest

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Proxy forwards TCP connections to a target address. It can hold new
// connections back before forwarding them, and can freeze every connection
// so that bytes are swallowed without the stream being closed, like a peer
// that vanished without sending a FIN.
type Proxy struct {
	Host string
	Port int

	target   string
	listener net.Listener
	frozen   atomic.Bool

	mu       sync.Mutex
	delay    time.Duration
	accepted int
	conns    []net.Conn
}

// StartProxy listens on 127.0.0.1 and forwards to target. Shutdown is
// registered with t.Cleanup.
func StartProxy(t testing.TB, target string) *Proxy {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	p := &Proxy{
		Host:     "127.0.0.1",
		Port:     listener.Addr().(*net.TCPAddr).Port,
		target:   target,
		listener: listener,
	}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go p.handle(conn)
		}
	}()
	t.Cleanup(p.close)
	return p
}

// SetDelay holds back connections accepted from now on by d before they are
// forwarded.
func (p *Proxy) SetDelay(d time.Duration) {
	p.mu.Lock()
	p.delay = d
	p.mu.Unlock()
}

// Accepted returns the number of connections accepted so far.
func (p *Proxy) Accepted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepted
}

// Freeze stops forwarding in both directions. Connections stay open.
func (p *Proxy) Freeze() {
	p.frozen.Store(true)
}

func (p *Proxy) handle(client net.Conn) {
	p.mu.Lock()
	p.accepted++
	delay := p.delay
	p.conns = append(p.conns, client)
	p.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	upstream, err := net.Dial("tcp", p.target)
	if err != nil {
		client.Close()
		return
	}
	p.mu.Lock()
	p.conns = append(p.conns, upstream)
	p.mu.Unlock()

	go p.forward(upstream, client)
	p.forward(client, upstream)
}

func (p *Proxy) forward(dst io.WriteCloser, src io.ReadCloser) {
	defer dst.Close()
	defer src.Close()
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 && !p.frozen.Load() {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *Proxy) close() {
	p.listener.Close()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		c.Close()
	}
}
