// Package workspace materializes request payloads as temp source files
// sitting next to their declared originals (so the host module resolver
// finds node_modules and relative imports the way it would for the real
// file), tracks them for cleanup, and sweeps stale files left behind by a
// prior, differently-pid'd instance of this same process.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"testworker/pkg/protocol"
)

// PreparedFile is one request file materialized on disk.
type PreparedFile struct {
	Path         string
	OriginalPath string
}

// Manager owns the process-wide set of live prepared files and performs
// the directory sweep for stale temp files from earlier processes.
type Manager struct {
	prefix string
	pid    int

	mu    sync.Mutex
	live  map[string]struct{}
	hooks sync.Once
}

// NewManager constructs a Manager. prefix is the fixed literal that
// identifies this runner's temp files on disk (spec.md §3).
func NewManager(prefix string) *Manager {
	return &Manager{
		prefix: prefix,
		pid:    os.Getpid(),
		live:   make(map[string]struct{}),
	}
}

// Prepare writes one file per request.RequestFile next to its declared
// original path, in request order, sweeping each distinct directory for
// stale entries from other processes before its first write.
func (m *Manager) Prepare(req *protocol.Request) ([]PreparedFile, error) {
	swept := make(map[string]struct{}, 4)
	out := make([]PreparedFile, 0, len(req.Files))

	seenStems := make(map[string]int)

	for i, f := range req.Files {
		dir := filepath.Dir(f.Path)
		if _, ok := swept[dir]; !ok {
			m.sweepDir(dir)
			swept[dir] = struct{}{}
		}

		key := dir + "|" + stem(f.Path) + "|" + preparedExt(f.Path)
		index := seenStems[key]
		seenStems[key] = index + 1

		name := preparedName(m.prefix, m.pid, req.ID, f.Path, index)
		target := filepath.Join(dir, "."+name+"."+preparedExt(f.Path))

		if err := os.WriteFile(target, []byte(f.Code), 0o644); err != nil {
			m.Release(out)
			return nil, fmt.Errorf("write prepared file %d (%s): %w", i, f.Path, err)
		}

		m.track(target)
		out = append(out, PreparedFile{Path: target, OriginalPath: f.Path})
	}

	return out, nil
}

// Release best-effort deletes each prepared file and untracks it.
func (m *Manager) Release(files []PreparedFile) {
	for _, f := range files {
		m.removeAndUntrack(f.Path)
	}
}

// InstallExitHooks registers the SIGTERM cleanup path exactly once. No
// hook runs on normal process exit; prepared files are removed by Release
// after each request instead. It is the caller's responsibility
// (cmd/testworker) to invoke this before reading any requests.
func (m *Manager) InstallExitHooks(onDone func()) {
	m.hooks.Do(func() {
		handler := func() {
			m.mu.Lock()
			paths := make([]string, 0, len(m.live))
			for p := range m.live {
				paths = append(paths, p)
			}
			m.mu.Unlock()

			for _, p := range paths {
				m.removeAndUntrack(p)
			}
			if onDone != nil {
				onDone()
			}
		}
		installSignalCleanup(handler)
	})
}

func (m *Manager) track(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[path] = struct{}{}
}

func (m *Manager) removeAndUntrack(path string) {
	m.mu.Lock()
	delete(m.live, path)
	m.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Debug("workspace: cleanup failed, ignoring", "path", path, "error", err)
	}
}

// sweepDir deletes entries matching ".<prefix>-*" in dir whose pid
// component differs from our own. Best-effort: any error for any entry
// is swallowed, since the directory may not be writable, the entry may
// already be gone, or it may belong to a process that is cleaning it up
// concurrently.
func (m *Manager) sweepDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	ownPrefix := "." + m.prefix + "-" + strconv.Itoa(m.pid) + "-"
	matchPrefix := "." + m.prefix + "-"

	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, matchPrefix) {
			continue
		}
		if strings.HasPrefix(name, ownPrefix) {
			continue
		}
		if !isOtherProcessEntry(name, matchPrefix, m.pid) {
			continue
		}
		full := filepath.Join(dir, name)
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			slog.Debug("workspace: stale sweep failed, ignoring", "path", full, "error", err)
		}
	}
}

// isOtherProcessEntry extracts the pid component from a
// ".<prefix>-<pid>-<id>-<stem>.<ext>" name and reports whether it differs
// from ourPID. Entries whose pid component doesn't parse are treated as
// foreign (swept) rather than risk never cleaning them up.
func isOtherProcessEntry(name, matchPrefix string, ourPID int) bool {
	rest := strings.TrimPrefix(name, matchPrefix)
	parts := strings.SplitN(rest, "-", 2)
	if len(parts) == 0 {
		return true
	}
	pid, err := strconv.Atoi(parts[0])
	if err != nil {
		return true
	}
	return pid != ourPID
}
