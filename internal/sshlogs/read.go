package sshlogs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/ssh"

	"github.com/gluk-w/claworc/log-viewer/internal/logutil"
	"github.com/gluk-w/claworc/log-viewer/internal/sshconn"
)

// DefaultTailLines is the backlog replayed before following, and the bound
// used by a "follow" read-now.
const DefaultTailLines = 1000

// StreamOptions configures the remote tail command.
type StreamOptions struct {
	// Tail is the number of existing lines to output before following.
	// Defaults to DefaultTailLines if zero.
	Tail int

	// FollowName selects tail -F (follow by name, survives logrotate) over
	// tail -f (follow the descriptor). Defaults to true when nil.
	FollowName *bool
}

// DefaultStreamOptions returns a DefaultTailLines backlog, following by name.
func DefaultStreamOptions() StreamOptions {
	followName := true
	return StreamOptions{Tail: DefaultTailLines, FollowName: &followName}
}

func (o StreamOptions) followByName() bool {
	if o.FollowName == nil {
		return true
	}
	return *o.FollowName
}

func (o StreamOptions) tail() int {
	if o.Tail <= 0 {
		return DefaultTailLines
	}
	return o.Tail
}

// FollowCommand returns the remote command that prints the last lines of
// logPath and keeps emitting appended lines.
func FollowCommand(logPath string, opts StreamOptions) string {
	flag := "-F"
	if !opts.followByName() {
		flag = "-f"
	}
	return fmt.Sprintf("tail -n %d %s %s", opts.tail(), flag, shellQuote(logPath))
}

// ReadCommand returns the remote command for a one-shot read: the whole file
// with cat, or a bounded tail when follow is requested.
func ReadCommand(logPath string, follow bool, tailLines int) string {
	if follow {
		if tailLines <= 0 {
			tailLines = DefaultTailLines
		}
		return fmt.Sprintf("tail -n %d %s", tailLines, shellQuote(logPath))
	}
	return "cat " + shellQuote(logPath)
}

// maxStderrBytes bounds the stderr kept from a follow command.
const maxStderrBytes = 4 * 1024

// exitWaitTimeout bounds how long Follow.Wait waits for the exit status once
// stdout has ended.
const exitWaitTimeout = 5 * time.Second

// Follow is a running follow command. Stdout yields the command's output;
// stderr is kept, up to a bound, for the error reported by Wait.
type Follow struct {
	Stdout io.Reader

	session *ssh.Session
	cmd     string
	logPath string
	stderr  *boundedBuffer
}

// StartFollow opens a command channel on client and starts the follow
// command. The caller must Close the returned Follow. Failures wrap
// sshconn.ErrCommandRejected.
func StartFollow(client *ssh.Client, logPath string, opts StreamOptions) (*Follow, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: open ssh session: %w", sshconn.ErrCommandRejected, err)
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("%w: create stdout pipe: %w", sshconn.ErrCommandRejected, err)
	}
	stderr := &boundedBuffer{limit: maxStderrBytes}
	session.Stderr = stderr

	cmd := FollowCommand(logPath, opts)
	if err := session.Start(cmd); err != nil {
		session.Close()
		return nil, fmt.Errorf("%w: start tail command: %w", sshconn.ErrCommandRejected, err)
	}
	return &Follow{Stdout: stdout, session: session, cmd: cmd, logPath: logPath, stderr: stderr}, nil
}

// Wait collects the exit status after Stdout reached EOF. A non-zero status
// fails with sshconn.ErrCommandRejected carrying the remote stderr. A
// command that ends without reporting a status, or does not report it
// within a few seconds, counts as a clean end.
func (f *Follow) Wait(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- f.session.Wait() }()

	timer := time.NewTimer(exitWaitTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return commandError(f.cmd, f.logPath, err, f.stderr.String())
	case <-timer.C:
		log.Printf("[sshlogs] %s: no exit status after stdout closed", logutil.SanitizeForLog(f.cmd))
		return nil
	case <-ctx.Done():
		return nil
	}
}

// Close closes the command channel.
func (f *Follow) Close() error {
	return f.session.Close()
}

// boundedBuffer keeps the first limit bytes written to it.
type boundedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// commandError maps the result of session.Wait. A missing exit status is not
// an error.
func commandError(cmd, logPath string, err error, stderr string) error {
	if err == nil {
		return nil
	}
	var exitErr *ssh.ExitError
	var missing *ssh.ExitMissingError
	switch {
	case errors.As(err, &exitErr):
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = "no output on stderr"
		}
		return fmt.Errorf("%w: %s exited with status %d: %s", sshconn.ErrCommandRejected,
			logutil.SanitizeForLog(cmd), exitErr.ExitStatus(), logutil.SanitizeForLog(msg))
	case errors.As(err, &missing):
		log.Printf("[sshlogs] %s finished without exit status", logutil.SanitizeForLog(cmd))
		return nil
	default:
		return fmt.Errorf("%w: read %s: %w", sshconn.ErrStream, logutil.SanitizeForLog(logPath), err)
	}
}

// Content is a complete snapshot of a remote file.
type Content struct {
	Path      string `json:"path"`
	FileName  string `json:"file_name"`
	Content   string `json:"content"`
	LineCount int    `json:"line_count"`
}

// ReadAll runs a one-shot read of logPath and returns the whole output. The
// output must be valid UTF-8: unlike the streaming path, invalid bytes fail
// the read with sshconn.ErrDecode. A non-zero remote exit status fails with
// sshconn.ErrCommandRejected carrying the remote stderr.
//
// Cancelling ctx closes the session and returns sshconn.ErrCancelled.
func ReadAll(ctx context.Context, client *ssh.Client, logPath string, follow bool, tailLines int) (*Content, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: open ssh session: %w", sshconn.ErrCommandRejected, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	cmd := ReadCommand(logPath, follow, tailLines)
	if err := session.Start(cmd); err != nil {
		return nil, fmt.Errorf("%w: start %q: %w", sshconn.ErrCommandRejected, logutil.SanitizeForLog(cmd), err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		session.Close()
		<-done
		return nil, fmt.Errorf("%w: read %s: %w", sshconn.ErrCancelled, logutil.SanitizeForLog(logPath), ctx.Err())
	case err = <-done:
	}

	if err := commandError(cmd, logPath, err, stderr.String()); err != nil {
		return nil, err
	}

	data := stdout.Bytes()
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s at byte %d", sshconn.ErrDecode, logutil.SanitizeForLog(logPath), invalidOffset(data))
	}

	return &Content{
		Path:      logPath,
		FileName:  FileName(logPath),
		Content:   string(data),
		LineCount: CountLines(data),
	}, nil
}

// FileName returns the last element of a remote (POSIX) path, or "unknown".
func FileName(logPath string) string {
	name := path.Base(strings.TrimSpace(logPath))
	if name == "." || name == "/" || name == "" {
		return "unknown"
	}
	return name
}

// CountLines counts lines the way a text editor does: a final fragment
// without a terminator still counts as a line.
func CountLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}

func invalidOffset(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return len(data)
}

// shellQuote wraps a string in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}
