package logviewer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gluk-w/claworc/log-viewer/internal/logutil"
	"github.com/gluk-w/claworc/log-viewer/internal/sshconn"
	"github.com/gluk-w/claworc/log-viewer/internal/sshlogs"
	"github.com/gluk-w/claworc/log-viewer/internal/sshmanager"
)

// ErrNoStopKey is returned by StopTail when neither an endpoint nor a path is
// given.
var ErrNoStopKey = errors.New("stop-tail needs an endpoint or a remote path")

// Options configures a Service.
type Options struct {
	// ReadTailLines is the line count for read-now in follow mode.
	ReadTailLines int
	// DiscoveryDirs are searched by DiscoverLogs when the request names none.
	DiscoveryDirs []string
}

// Service implements the command surface offered to the presentation layer.
// Every transport access goes through the manager so rate limiting and the
// host allow list apply uniformly.
type Service struct {
	manager       *sshmanager.Manager
	readTailLines int
	discoveryDirs []string
}

// New returns a Service that reaches remote hosts through manager.
func New(manager *sshmanager.Manager, opts Options) *Service {
	if opts.ReadTailLines <= 0 {
		opts.ReadTailLines = sshlogs.DefaultTailLines
	}
	if len(opts.DiscoveryDirs) == 0 {
		opts.DiscoveryDirs = sshlogs.DefaultDiscoveryDirs
	}
	return &Service{
		manager:       manager,
		readTailLines: opts.ReadTailLines,
		discoveryDirs: opts.DiscoveryDirs,
	}
}

// Manager returns the tail manager behind the service.
func (s *Service) Manager() *sshmanager.Manager { return s.manager }

// ConnectionStatus is the outcome of a connect-test.
type ConnectionStatus struct {
	Connected bool         `json:"connected"`
	Message   string       `json:"message"`
	Kind      sshconn.Kind `json:"kind,omitempty"`
}

// TestConnection connects and immediately disconnects. Failures are reported
// in the status rather than as an error.
func (s *Service) TestConnection(ctx context.Context, creds sshconn.Credentials) ConnectionStatus {
	client, err := s.manager.Dial(ctx, creds)
	if err != nil {
		log.Printf("[ssh] connection test to %s failed: %v", creds.Endpoint, err)
		return ConnectionStatus{Message: err.Error(), Kind: sshconn.KindOf(err)}
	}
	client.Close()
	log.Printf("[ssh] connection test to %s succeeded", creds.Endpoint)
	return ConnectionStatus{
		Connected: true,
		Message:   fmt.Sprintf("connected to %s as %s", creds.Endpoint, creds.Username),
	}
}

// ReadNow returns the whole remote file, or its last lines when follow is set.
func (s *Service) ReadNow(ctx context.Context, creds sshconn.Credentials, path string, follow bool) (*sshlogs.Content, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: remote path is empty", sshconn.ErrInvalidCredentials)
	}
	client, err := s.manager.Dial(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	content, err := sshlogs.ReadAll(ctx, client, path, follow, s.readTailLines)
	if err != nil {
		log.Printf("[sshlogs] read %s on %s failed: %v", logutil.SanitizeForLog(path), creds.Endpoint, err)
		return nil, err
	}
	log.Printf("[sshlogs] read %s on %s: %d lines", logutil.SanitizeForLog(path), creds.Endpoint, content.LineCount)
	return content, nil
}

// DiscoverLogs lists candidate log files in dirs, or in the configured
// discovery directories when dirs is empty.
func (s *Service) DiscoverLogs(ctx context.Context, creds sshconn.Credentials, dirs []string) ([]sshlogs.LogFile, error) {
	if len(dirs) == 0 {
		dirs = s.discoveryDirs
	}
	client, err := s.manager.Dial(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return sshlogs.Discover(ctx, client, dirs)
}

// StartTail starts following path on creds.Endpoint. See sshmanager.Manager.StartTail.
func (s *Service) StartTail(creds sshconn.Credentials, path string) (*sshmanager.TailSession, error) {
	return s.manager.StartTail(creds, path)
}

// StopKey selects the session to stop: by endpoint when Endpoint is set,
// otherwise by remote path.
type StopKey struct {
	Endpoint *sshconn.Endpoint
	Path     string
}

// StopResult names the session a stop-tail ended.
type StopResult struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Path string `json:"path"`
}

// StopTail stops the session selected by key. It returns
// sshmanager.ErrNotActive when no such session is running.
func (s *Service) StopTail(key StopKey) (StopResult, error) {
	if key.Endpoint != nil {
		path, err := s.manager.StopTail(*key.Endpoint)
		if err != nil {
			return StopResult{}, err
		}
		return StopResult{Host: key.Endpoint.Host, Port: key.Endpoint.Port, Path: path}, nil
	}
	path := strings.TrimSpace(key.Path)
	if path == "" {
		return StopResult{}, ErrNoStopKey
	}
	ep, err := s.manager.StopTailByPath(path)
	if err != nil {
		return StopResult{}, err
	}
	return StopResult{Host: ep.Host, Port: ep.Port, Path: path}, nil
}

// ActiveTail is one entry of the tails listing.
type ActiveTail struct {
	SessionID string                     `json:"session_id"`
	Host      string                     `json:"host"`
	Port      int                        `json:"port"`
	Path      string                     `json:"path"`
	State     sshmanager.TailState       `json:"state"`
	StartedAt time.Time                  `json:"started_at"`
	RateLimit sshmanager.RateLimitStatus `json:"rate_limit"`
}

// ActiveTails lists the running tails with their state and rate limit status.
func (s *Service) ActiveTails() []ActiveTail {
	targets := s.manager.Active()
	out := make([]ActiveTail, 0, len(targets))
	for _, t := range targets {
		out = append(out, ActiveTail{
			SessionID: t.SessionID,
			Host:      t.Endpoint.Host,
			Port:      t.Endpoint.Port,
			Path:      t.Path,
			State:     s.manager.States().GetState(t.SessionID),
			StartedAt: t.StartedAt,
			RateLimit: s.manager.RateLimitStatus(t.Endpoint),
		})
	}
	return out
}
