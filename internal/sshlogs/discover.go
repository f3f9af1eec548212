package sshlogs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/gluk-w/claworc/log-viewer/internal/logutil"
)

// DefaultDiscoveryDirs are the conventional log directories searched by
// Discover when no directories are configured.
var DefaultDiscoveryDirs = []string{
	"/var/log",
	"/var/log/nginx",
	"/var/log/apache2",
	"/opt/logs",
	"/app/logs",
	"/home/logs",
}

// maxFilesPerDir caps how many candidates a single directory contributes.
const maxFilesPerDir = 200

// LogFile is a candidate log file found on a remote host.
type LogFile struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	IsRemote bool   `json:"is_remote"`
}

// DiscoverCommand returns the remote search command for one directory.
func DiscoverCommand(dir string) string {
	return fmt.Sprintf(
		"find %s -maxdepth 2 -type f \\( -name '*.log' -o -name '*.out' -o -name '*.err' -o -name 'syslog' -o -name 'messages' \\) 2>/dev/null | head -n %d",
		shellQuote(dir), maxFilesPerDir)
}

// Discover searches each directory for candidate log files, running one
// remote command per directory. Each search is best-effort: a failing
// directory is logged and skipped. Results are de-duplicated by path and
// sorted within each directory. The only error returned is cancellation.
func Discover(ctx context.Context, client *ssh.Client, dirs []string) ([]LogFile, error) {
	if len(dirs) == 0 {
		dirs = DefaultDiscoveryDirs
	}

	seen := make(map[string]bool)
	files := []LogFile{}
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		paths, err := searchDir(client, dir)
		if err != nil {
			log.Printf("[sshlogs] discovery skipped %s: %v", logutil.SanitizeForLog(dir), err)
			continue
		}
		sort.Strings(paths)
		for _, p := range paths {
			if seen[p] {
				continue
			}
			seen[p] = true
			files = append(files, LogFile{Path: p, Name: FileName(p), IsRemote: true})
		}
	}
	return files, nil
}

func searchDir(client *ssh.Client, dir string) ([]string, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	out, err := session.Output(DiscoverCommand(dir))
	if err != nil {
		// A non-zero exit still leaves useful stdout (e.g. permission denied
		// on a subdirectory). Only transport failures abort the directory.
		var exitErr *ssh.ExitError
		if !errors.As(err, &exitErr) {
			return nil, err
		}
	}

	var paths []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}
