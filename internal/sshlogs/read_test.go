package sshlogs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/gluk-w/claworc/log-viewer/internal/sshconn"
	"github.com/gluk-w/claworc/log-viewer/internal/sshtest"
)

func TestFollowCommand(t *testing.T) {
	tests := []struct {
		name string
		path string
		opts StreamOptions
		want string
	}{
		{"defaults", "/var/log/syslog", StreamOptions{}, "tail -n 1000 -F '/var/log/syslog'"},
		{"custom tail", "/var/log/app.log", StreamOptions{Tail: 50}, "tail -n 50 -F '/var/log/app.log'"},
		{"follow descriptor", "/tmp/x.log", StreamOptions{Tail: 10, FollowName: boolPtr(false)}, "tail -n 10 -f '/tmp/x.log'"},
		{"quote in path", "/tmp/it's.log", DefaultStreamOptions(), "tail -n 1000 -F '/tmp/it'\\''s.log'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FollowCommand(tt.path, tt.opts); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestReadCommand(t *testing.T) {
	if got := ReadCommand("/var/log/a.log", false, 0); got != "cat '/var/log/a.log'" {
		t.Errorf("unexpected command %q", got)
	}
	if got := ReadCommand("/var/log/a.log", true, 0); got != "tail -n 1000 '/var/log/a.log'" {
		t.Errorf("unexpected command %q", got)
	}
	if got := ReadCommand("/var/log/a.log", true, 25); got != "tail -n 25 '/var/log/a.log'" {
		t.Errorf("unexpected command %q", got)
	}
}

func TestReadAll(t *testing.T) {
	srv := sshtest.Start(t, func(cmd string, ch ssh.Channel) {
		ch.Write([]byte("first\nsecond\nthird"))
		sshtest.SendExitStatus(ch, 0)
	})
	client := srv.Dial(t)

	content, err := ReadAll(context.Background(), client, "/var/log/app.log", false, 0)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if content.Content != "first\nsecond\nthird" {
		t.Errorf("unexpected content %q", content.Content)
	}
	if content.LineCount != 3 {
		t.Errorf("expected 3 lines, got %d", content.LineCount)
	}
	if content.FileName != "app.log" {
		t.Errorf("expected file name app.log, got %q", content.FileName)
	}
	cmds := srv.Commands()
	if len(cmds) != 1 || cmds[0] != "cat '/var/log/app.log'" {
		t.Errorf("unexpected commands %q", cmds)
	}
}

func TestReadAllFollowUsesBoundedTail(t *testing.T) {
	srv := sshtest.Start(t, func(cmd string, ch ssh.Channel) {
		ch.Write([]byte("tail output\n"))
		sshtest.SendExitStatus(ch, 0)
	})
	client := srv.Dial(t)

	content, err := ReadAll(context.Background(), client, "/var/log/app.log", true, 0)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if content.LineCount != 1 {
		t.Errorf("expected 1 line, got %d", content.LineCount)
	}
	cmds := srv.Commands()
	if len(cmds) != 1 || !strings.HasPrefix(cmds[0], "tail -n 1000 ") {
		t.Errorf("expected bounded tail command, got %q", cmds)
	}
}

func TestReadAllEmptyFile(t *testing.T) {
	srv := sshtest.Start(t, func(cmd string, ch ssh.Channel) {
		sshtest.SendExitStatus(ch, 0)
	})
	client := srv.Dial(t)

	content, err := ReadAll(context.Background(), client, "/var/log/empty.log", false, 0)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if content.Content != "" || content.LineCount != 0 {
		t.Errorf("expected empty content, got %+v", content)
	}
}

func TestReadAllNonZeroExit(t *testing.T) {
	srv := sshtest.Start(t, func(cmd string, ch ssh.Channel) {
		ch.Stderr().Write([]byte("cat: /nope: No such file or directory\n"))
		sshtest.SendExitStatus(ch, 1)
	})
	client := srv.Dial(t)

	_, err := ReadAll(context.Background(), client, "/nope", false, 0)
	if !errors.Is(err, sshconn.ErrCommandRejected) {
		t.Fatalf("expected ErrCommandRejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "No such file") {
		t.Errorf("expected stderr in error, got %v", err)
	}
}

func TestReadAllInvalidUTF8(t *testing.T) {
	srv := sshtest.Start(t, func(cmd string, ch ssh.Channel) {
		ch.Write([]byte("ok line\nbad \xff byte\n"))
		sshtest.SendExitStatus(ch, 0)
	})
	client := srv.Dial(t)

	_, err := ReadAll(context.Background(), client, "/var/log/bin.log", false, 0)
	if !errors.Is(err, sshconn.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if sshconn.KindOf(err) != sshconn.KindDecode {
		t.Errorf("expected decode kind, got %q", sshconn.KindOf(err))
	}
	if !strings.Contains(err.Error(), "byte 12") {
		t.Errorf("expected offset in error, got %v", err)
	}
}

func TestReadAllCancelled(t *testing.T) {
	srv := sshtest.Start(t, func(cmd string, ch ssh.Channel) {
		sshtest.WaitForClose(ch)
	})
	client := srv.Dial(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := ReadAll(ctx, client, "/var/log/hang.log", false, 0)
	if !errors.Is(err, sshconn.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestStartFollow(t *testing.T) {
	srv := sshtest.Start(t, func(cmd string, ch ssh.Channel) {
		ch.Write([]byte("backlog 1\nbacklog 2\n"))
		sshtest.WaitForClose(ch)
	})
	client := srv.Dial(t)

	f, err := StartFollow(client, "/var/log/app.log", DefaultStreamOptions())
	if err != nil {
		t.Fatalf("StartFollow: %v", err)
	}

	buf := make([]byte, 64)
	r := NewReassembler(0)
	var lines []string
	deadline := time.Now().Add(2 * time.Second)
	for len(lines) < 2 && time.Now().Before(deadline) {
		n, err := f.Stdout.Read(buf)
		lines = append(lines, r.Feed(buf[:n])...)
		if err != nil {
			break
		}
	}
	f.Close()

	if len(lines) != 2 || lines[0] != "backlog 1" || lines[1] != "backlog 2" {
		t.Errorf("unexpected lines %q", lines)
	}

	cmds := srv.Commands()
	if len(cmds) != 1 || cmds[0] != "tail -n 1000 -F '/var/log/app.log'" {
		t.Errorf("unexpected commands %q", cmds)
	}
}

func TestFollowWaitNonZeroExit(t *testing.T) {
	srv := sshtest.Start(t, func(cmd string, ch ssh.Channel) {
		ch.Stderr().Write([]byte("tail: cannot open '/var/log/gone.log' for reading: No such file or directory\n"))
		sshtest.SendExitStatus(ch, 1)
	})
	client := srv.Dial(t)

	f, err := StartFollow(client, "/var/log/gone.log", DefaultStreamOptions())
	if err != nil {
		t.Fatalf("StartFollow: %v", err)
	}
	defer f.Close()

	if _, err := io.ReadAll(f.Stdout); err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	err = f.Wait(t.Context())
	if !errors.Is(err, sshconn.ErrCommandRejected) {
		t.Fatalf("expected ErrCommandRejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "No such file or directory") || !strings.Contains(err.Error(), "status 1") {
		t.Errorf("error should carry stderr and status, got %q", err)
	}
}

func TestFollowWaitCleanExit(t *testing.T) {
	srv := sshtest.Start(t, func(cmd string, ch ssh.Channel) {
		ch.Write([]byte("done\n"))
		sshtest.SendExitStatus(ch, 0)
	})
	client := srv.Dial(t)

	f, err := StartFollow(client, "/var/log/app.log", DefaultStreamOptions())
	if err != nil {
		t.Fatalf("StartFollow: %v", err)
	}
	defer f.Close()

	if _, err := io.ReadAll(f.Stdout); err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	if err := f.Wait(t.Context()); err != nil {
		t.Errorf("expected clean exit, got %v", err)
	}
}

func TestBoundedBufferKeepsPrefix(t *testing.T) {
	b := &boundedBuffer{limit: 5}
	if n, err := b.Write([]byte("abc")); n != 3 || err != nil {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if n, err := b.Write([]byte("defgh")); n != 5 || err != nil {
		t.Fatalf("Write = %d, %v", n, err)
	}
	b.Write([]byte("ijk"))
	if got := b.String(); got != "abcde" {
		t.Errorf("expected %q, got %q", "abcde", got)
	}
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		"/var/log/syslog":      "syslog",
		"/var/log/nginx/a.log": "a.log",
		"relative.log":         "relative.log",
		"/":                    "unknown",
		"":                     "unknown",
	}
	for in, want := range tests {
		if got := FileName(in); got != want {
			t.Errorf("FileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCountLines(t *testing.T) {
	tests := map[string]int{
		"":          0,
		"a":         1,
		"a\n":       1,
		"a\nb":      2,
		"a\nb\n":    2,
		"\n\n":      2,
		"a\r\nb\r\n": 2,
	}
	for in, want := range tests {
		if got := CountLines([]byte(in)); got != want {
			t.Errorf("CountLines(%q) = %d, want %d", in, got, want)
		}
	}
}

func boolPtr(b bool) *bool { return &b }
