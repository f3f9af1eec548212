package sshmanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/gluk-w/claworc/log-viewer/internal/logutil"
	"github.com/gluk-w/claworc/log-viewer/internal/sshconn"
	"github.com/gluk-w/claworc/log-viewer/internal/sshlogs"
)

const (
	readChunkSize = 32 * 1024
	pumpQueueLen  = 16
)

// tailRun is the state owned by one running loop.
type tailRun struct {
	s       *TailSession
	summary Summary
}

func (m *Manager) runTail(s *TailSession, creds sshconn.Credentials) {
	run := &tailRun{
		s: s,
		summary: Summary{
			SessionID: s.ID,
			Endpoint:  s.Endpoint,
			Username:  creds.Username,
			Path:      s.Path,
			StartedAt: time.Now(),
		},
	}
	defer func() {
		run.summary.EndedAt = time.Now()
		s.summary = run.summary
		m.states.SetState(s.ID, StateTerminated)
		m.states.Forget(s.ID)
		close(s.done)
		m.notifyEnd(run.summary)
	}()

	if m.registry.Superseded(s.Endpoint, s.seq) {
		m.endSuperseded(run)
		return
	}

	m.states.SetState(s.ID, StateConnecting)
	client, err := m.dial(m.ctx, creds, func(stage sshconn.Stage) {
		if stage == sshconn.StageAuthenticating {
			m.states.SetState(s.ID, StateAuthenticating)
		}
	})
	if err != nil {
		m.failSetup(run, err)
		return
	}
	defer client.Close()

	m.states.SetState(s.ID, StateExecuting)
	follow, err := sshlogs.StartFollow(client, s.Path, m.streamOpts)
	if err != nil {
		m.failSetup(run, err)
		return
	}
	defer follow.Close()

	if err := m.ctx.Err(); err != nil {
		m.failSetup(run, fmt.Errorf("%w: manager is shut down", sshconn.ErrCancelled))
		return
	}

	target := Target{Endpoint: s.Endpoint, Path: s.Path, SessionID: s.ID, StartedAt: run.summary.StartedAt, Seq: s.seq}
	prev, evicted, ok := m.registry.Put(target)
	if !ok {
		m.endSuperseded(run)
		return
	}
	if evicted {
		log.Printf("[tail] %s: evicted previous session on %s (%s)", s.ID, s.Endpoint, logutil.SanitizeForLog(prev))
	}
	run.summary.Streamed = true
	m.emit(run, EventConnected, nil, "", "")

	m.states.SetState(s.ID, StateStreaming)
	reason := m.pollLoop(run, tailStream{stdout: follow.Stdout, wait: follow.Wait, conn: client})
	m.finishStream(run, reason)
}

// finishStream releases the session's registry entry and publishes its last
// events: an error event unless the stream was cancelled or ended cleanly,
// then the terminal disconnected event.
func (m *Manager) finishStream(run *tailRun, reason error) {
	s := run.s
	m.states.SetState(s.ID, StateDraining)
	m.registry.Release(s.Endpoint, s.ID)
	run.summary.Reason = sshconn.KindOf(reason)

	switch run.summary.Reason {
	case sshconn.KindCancelled, sshconn.KindEOF:
		log.Printf("[tail] %s: %s on %s ended: %v (%d lines)", s.ID, logutil.SanitizeForLog(s.Path), s.Endpoint, reason, run.summary.Lines)
	default:
		run.summary.Error = reason.Error()
		log.Printf("[tail] %s: %s on %s failed: %v", s.ID, logutil.SanitizeForLog(s.Path), s.Endpoint, reason)
		m.emit(run, EventError, nil, reason.Error(), run.summary.Reason)
	}
	m.emitTerminal(run, EventDisconnected, reason)
}

// failSetup reports a failure before the session was registered: exactly one
// error event, and the registry is never touched.
func (m *Manager) failSetup(run *tailRun, err error) {
	run.summary.Reason = sshconn.KindOf(err)
	run.summary.Error = err.Error()
	log.Printf("[tail] %s: setup failed for %s on %s: %v", run.s.ID, logutil.SanitizeForLog(run.s.Path), run.s.Endpoint, err)
	m.emitTerminal(run, EventError, err)
}

// endSuperseded ends a session that a newer request for the same endpoint
// overtook before it became active.
func (m *Manager) endSuperseded(run *tailRun) {
	reason := fmt.Errorf("%w: superseded by a newer request on %s", sshconn.ErrCancelled, run.s.Endpoint)
	run.summary.Reason = sshconn.KindCancelled
	log.Printf("[tail] %s: %s on %s: %v", run.s.ID, logutil.SanitizeForLog(run.s.Path), run.s.Endpoint, reason)
	m.emitTerminal(run, EventDisconnected, reason)
}

// requester sends SSH global requests; *ssh.Client implements it.
type requester interface {
	SendRequest(name string, wantReply bool, payload []byte) (bool, []byte, error)
}

// tailStream is what the poll loop reads: the follow command's stdout, a
// function collecting its exit status after stdout ends, and the connection
// probed for liveness. wait and conn may be nil.
type tailStream struct {
	stdout io.Reader
	wait   func(context.Context) error
	conn   requester
}

const keepaliveRequest = "keepalive@openssh.com"

// pollLoop runs until the session is cancelled, the remote command ends, the
// read fails or the connection stops answering keepalives. It returns the
// reason as an error wrapping sshconn.ErrCancelled, ErrEOF, ErrStream or, for
// a command that exits with a non-zero status, ErrCommandRejected.
func (m *Manager) pollLoop(run *tailRun, ts tailStream) error {
	s := run.s
	chunks := make(chan []byte, pumpQueueLen)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go pump(ts.stdout, chunks, readErr, stop)

	r := sshlogs.NewReassembler(m.maxLine)
	defer func() {
		run.summary.Dropped = r.Dropped()
		run.summary.Truncated = r.Truncated()
		if n := r.Dropped(); n > 0 {
			log.Printf("[tail] %s: dropped %d non-UTF-8 lines", s.ID, n)
		}
	}()

	idle := time.NewTimer(m.pollInterval)
	defer idle.Stop()

	// A nil channel never fires, which disables the keepalive cases.
	var (
		keepaliveTick   <-chan time.Time
		keepaliveReply  = make(chan error, 1)
		keepaliveExpiry <-chan time.Time
	)
	if ts.conn != nil && m.keepaliveInterval > 0 {
		ticker := time.NewTicker(m.keepaliveInterval)
		defer ticker.Stop()
		keepaliveTick = ticker.C
	}

	for {
		if !m.registry.Holds(s.Endpoint, s.ID) {
			return fmt.Errorf("%w: %s no longer registered", sshconn.ErrCancelled, s.Endpoint)
		}

		idle.Reset(m.pollInterval)
		select {
		case chunk, ok := <-chunks:
			if !ok {
				err := <-readErr
				if err == nil || errors.Is(err, io.EOF) {
					if line, ok := r.Flush(); ok {
						m.emitLine(run, line)
					}
					if ts.wait != nil {
						if err := ts.wait(m.ctx); err != nil {
							return err
						}
					}
					return fmt.Errorf("%w: remote command finished", sshconn.ErrEOF)
				}
				return fmt.Errorf("%w: read: %w", sshconn.ErrStream, err)
			}
			lines := r.Feed(chunk)
			if len(lines) == 0 {
				continue
			}
			// A stop that landed while the chunk was in flight wins.
			if !m.registry.Holds(s.Endpoint, s.ID) {
				return fmt.Errorf("%w: %s no longer registered", sshconn.ErrCancelled, s.Endpoint)
			}
			for _, line := range lines {
				m.emitLine(run, line)
			}
		case <-keepaliveTick:
			if keepaliveExpiry == nil {
				keepaliveExpiry = time.After(m.keepaliveTimeout)
				go func() {
					_, _, err := ts.conn.SendRequest(keepaliveRequest, true, nil)
					keepaliveReply <- err
				}()
			}
		case err := <-keepaliveReply:
			keepaliveExpiry = nil
			if err != nil {
				return fmt.Errorf("%w: keepalive: %w", sshconn.ErrStream, err)
			}
		case <-keepaliveExpiry:
			return fmt.Errorf("%w: keepalive: no reply within %s", sshconn.ErrStream, m.keepaliveTimeout)
		case <-idle.C:
			// Nothing to read yet; re-check the registry.
		case <-m.ctx.Done():
			return fmt.Errorf("%w: manager is shut down", sshconn.ErrCancelled)
		}
	}
}

// pump moves stdout into chunks until a read fails, then reports the error
// and closes chunks. stop releases it when the loop has already exited.
func pump(stdout io.Reader, chunks chan<- []byte, readErr chan<- error, stop <-chan struct{}) {
	defer close(chunks)
	buf := make([]byte, readChunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunks <- chunk:
			case <-stop:
				return
			}
		}
		if err != nil {
			readErr <- err
			return
		}
	}
}

func (m *Manager) emitLine(run *tailRun, line string) {
	run.summary.Lines++
	now := time.Now()
	m.publisher.Publish(Event{
		Type:      EventData,
		SessionID: run.s.ID,
		Host:      run.s.Endpoint.Host,
		Port:      run.s.Endpoint.Port,
		Path:      run.s.Path,
		Line: &LineEvent{
			Content:   line,
			Path:      run.s.Path,
			Timestamp: now.Unix(),
		},
		Time: now,
	})
}

func (m *Manager) emit(run *tailRun, t EventType, line *LineEvent, message string, kind sshconn.Kind) {
	m.publisher.Publish(Event{
		Type:      t,
		SessionID: run.s.ID,
		Host:      run.s.Endpoint.Host,
		Port:      run.s.Endpoint.Port,
		Path:      run.s.Path,
		Line:      line,
		Message:   message,
		Kind:      kind,
		Time:      time.Now(),
	})
}

// emitTerminal publishes the session's last event.
func (m *Manager) emitTerminal(run *tailRun, t EventType, reason error) {
	now := time.Now()
	line := &LineEvent{IsTerminal: true, Path: run.s.Path, Timestamp: now.Unix()}
	kind := sshconn.KindOf(reason)
	message := ""
	if reason != nil {
		message = reason.Error()
		if kind != sshconn.KindCancelled && kind != sshconn.KindEOF {
			line.Error = message
		}
	}
	m.emit(run, t, line, message, kind)
}
