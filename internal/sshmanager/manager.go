package sshmanager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/gluk-w/claworc/log-viewer/internal/logutil"
	"github.com/gluk-w/claworc/log-viewer/internal/sshconn"
	"github.com/gluk-w/claworc/log-viewer/internal/sshlogs"
)

// DefaultPollInterval is how long the tail loop waits for data before
// re-checking the registry. It bounds how late a stop request is observed.
const DefaultPollInterval = 50 * time.Millisecond

// Keepalive defaults for tail connections.
const (
	DefaultKeepaliveInterval = 30 * time.Second
	DefaultKeepaliveTimeout  = 15 * time.Second
)

// ErrNotActive is returned by the stop operations when no tail session
// matches the key.
var ErrNotActive = errors.New("no active tail session")

// Options configures a Manager.
type Options struct {
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// Stream configures the remote follow command.
	Stream sshlogs.StreamOptions

	// MaxLineBytes caps a single streamed line (0 = unbounded).
	MaxLineBytes int

	// RateLimit, if set, guards connection attempts per endpoint.
	RateLimit *RateLimitConfig

	// KeepaliveInterval is how often a streaming session probes its
	// connection. Defaults to DefaultKeepaliveInterval; negative disables.
	KeepaliveInterval time.Duration

	// KeepaliveTimeout bounds the wait for a keepalive reply. Defaults to
	// DefaultKeepaliveTimeout.
	KeepaliveTimeout time.Duration
}

// Summary describes a finished tail session.
type Summary struct {
	SessionID string           `json:"session_id"`
	Endpoint  sshconn.Endpoint `json:"endpoint"`
	Username  string           `json:"username"`
	Path      string           `json:"path"`
	Reason    sshconn.Kind     `json:"reason"`
	Error     string           `json:"error,omitempty"`
	Lines     int              `json:"lines"`
	Dropped   int              `json:"dropped"`
	Truncated int              `json:"truncated"`
	Streamed  bool             `json:"streamed"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   time.Time        `json:"ended_at"`
}

// TailSession is the handle of a started tail. Its loop runs on its own
// goroutine; Done is closed after the session's terminal event.
type TailSession struct {
	ID       string
	Endpoint sshconn.Endpoint
	Path     string

	seq     uint64
	done    chan struct{}
	summary Summary
}

// Done is closed when the session has terminated.
func (s *TailSession) Done() <-chan struct{} { return s.done }

// Summary returns the session outcome. It is only meaningful after Done.
func (s *TailSession) Summary() Summary {
	<-s.done
	return s.summary
}

// Manager owns the Session Registry and runs one tail loop per active
// endpoint. Events go to the Publisher; finished sessions are reported to
// OnSessionEnd observers.
type Manager struct {
	connector *sshconn.Connector
	registry  *Registry
	states    *StateTracker
	publisher Publisher
	limiter   *RateLimiter

	pollInterval      time.Duration
	streamOpts        sshlogs.StreamOptions
	maxLine           int
	keepaliveInterval time.Duration
	keepaliveTimeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	obsMu     sync.RWMutex
	observers []func(Summary)
}

// NewManager creates a Manager. publisher must not be nil.
func NewManager(connector *sshconn.Connector, publisher Publisher, opts Options) *Manager {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	keepalive := opts.KeepaliveInterval
	if keepalive == 0 {
		keepalive = DefaultKeepaliveInterval
	}
	keepaliveTimeout := opts.KeepaliveTimeout
	if keepaliveTimeout <= 0 {
		keepaliveTimeout = DefaultKeepaliveTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		connector:    connector,
		registry:     NewRegistry(),
		states:       NewStateTracker(),
		publisher:    publisher,
		pollInterval:      poll,
		streamOpts:        opts.Stream,
		maxLine:           opts.MaxLineBytes,
		keepaliveInterval: keepalive,
		keepaliveTimeout:  keepaliveTimeout,
		ctx:               ctx,
		cancel:            cancel,
	}
	if opts.RateLimit != nil {
		m.limiter = NewRateLimiter(*opts.RateLimit)
	}
	return m
}

// Registry returns the manager's session registry.
func (m *Manager) Registry() *Registry { return m.registry }

// States returns the per-session state tracker.
func (m *Manager) States() *StateTracker { return m.states }

// RateLimitStatus returns the limiter status for ep. It is zero if rate
// limiting is disabled.
func (m *Manager) RateLimitStatus(ep sshconn.Endpoint) RateLimitStatus {
	if m.limiter == nil {
		return RateLimitStatus{}
	}
	return m.limiter.GetStatus(ep)
}

// OnSessionEnd registers an observer called once per finished session,
// including sessions that failed during setup.
func (m *Manager) OnSessionEnd(fn func(Summary)) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, fn)
}

// Dial connects with rate limiting applied. It is the single entry to the
// transport for tails and one-shot operations alike.
func (m *Manager) Dial(ctx context.Context, creds sshconn.Credentials) (*ssh.Client, error) {
	return m.dial(ctx, creds, nil)
}

func (m *Manager) dial(ctx context.Context, creds sshconn.Credentials, progress func(sshconn.Stage)) (*ssh.Client, error) {
	ep := creds.Endpoint
	if m.limiter != nil {
		if err := m.limiter.Allow(ep); err != nil {
			return nil, err
		}
	}
	client, err := m.connector.ConnectWithProgress(ctx, creds, progress)
	if m.limiter != nil {
		switch {
		case err == nil:
			m.limiter.RecordSuccess(ep)
		case countsAsFailure(err):
			m.limiter.RecordFailure(ep)
		}
	}
	return client, err
}

// countsAsFailure reports whether err says something about the endpoint. An
// unusable local key file does not.
func countsAsFailure(err error) bool {
	if errors.Is(err, sshconn.ErrKeyUnusable) {
		return false
	}
	switch sshconn.KindOf(err) {
	case sshconn.KindUnreachable, sshconn.KindHandshakeFailed, sshconn.KindAuthRejected:
		return true
	}
	return false
}

// StartTail validates the request and starts a tail loop for path on
// creds.Endpoint. It returns as soon as the loop is running; connection and
// command failures are reported as a single error event. The session enters
// the registry, evicting any prior session on the endpoint, only once the
// remote command is running.
//
// Requests on one endpoint are ordered by arrival: a session whose setup
// finishes after a newer request for the same endpoint was made never
// becomes active and ends cancelled.
func (m *Manager) StartTail(creds sshconn.Credentials, path string) (*TailSession, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: remote path is empty", sshconn.ErrInvalidCredentials)
	}
	if err := m.ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: manager is shut down", sshconn.ErrCancelled)
	}

	s := &TailSession{
		ID:       uuid.NewString(),
		Endpoint: creds.Endpoint,
		Path:     path,
		seq:      m.registry.Reserve(creds.Endpoint),
		done:     make(chan struct{}),
	}
	log.Printf("[tail] starting %s on %s as %s", logutil.SanitizeForLog(path), s.Endpoint, logutil.SanitizeForLog(creds.Username))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runTail(s, creds)
	}()
	return s, nil
}

// StopTail removes the active session on ep and announces monitor-stopped.
// The announcement is published before the removal becomes visible, so the
// loop's own disconnected event always follows it.
func (m *Manager) StopTail(ep sshconn.Endpoint) (string, error) {
	t, ok := m.registry.Get(ep)
	if !ok || !m.registry.ReleaseWith(ep, t.SessionID, m.announceStop) {
		return "", fmt.Errorf("%w for %s", ErrNotActive, ep)
	}
	return t.Path, nil
}

// StopTailByPath stops the first active session following path.
func (m *Manager) StopTailByPath(path string) (sshconn.Endpoint, error) {
	t, ok := m.registry.FindByPath(path)
	if !ok || !m.registry.ReleaseWith(t.Endpoint, t.SessionID, m.announceStop) {
		return sshconn.Endpoint{}, fmt.Errorf("%w for path %s", ErrNotActive, logutil.SanitizeForLog(path))
	}
	return t.Endpoint, nil
}

func (m *Manager) announceStop(t Target) {
	log.Printf("[tail] stop requested for %s on %s", logutil.SanitizeForLog(t.Path), t.Endpoint)
	m.publisher.Publish(Event{
		Type:      EventMonitorStopped,
		SessionID: t.SessionID,
		Host:      t.Endpoint.Host,
		Port:      t.Endpoint.Port,
		Path:      t.Path,
		Time:      time.Now(),
	})
}

// Active returns the currently registered targets.
func (m *Manager) Active() []Target {
	return m.registry.List()
}

// Close unregisters every session, aborts connection attempts in progress
// and waits for all loops to finish.
func (m *Manager) Close() {
	for _, t := range m.registry.List() {
		m.registry.Release(t.Endpoint, t.SessionID)
	}
	m.cancel()
	m.wg.Wait()
	log.Printf("[tail] manager closed")
}

func (m *Manager) notifyEnd(s Summary) {
	m.obsMu.RLock()
	obs := make([]func(Summary), len(m.observers))
	copy(obs, m.observers)
	m.obsMu.RUnlock()
	for _, fn := range obs {
		fn(s)
	}
}
