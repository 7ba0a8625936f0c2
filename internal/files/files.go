// Package files owns the server's on-disk workspace: artifact sinks, the
// operator's outgoing tool_box, the auth-log tail shown in the console
// header, and the known-good binary hash manifest.
package files

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Workspace directory names.
const (
	DownloadedFiles = "downloaded_files"
	ProcessDumps    = "client_process_dumps"
	SysinfoDumps    = "client_sysinfo_dumps"
	DiskDumps       = "client_disk_dumps"
	ToolBox         = "tool_box"
)

// ManifestName is the known-good hash manifest consumed by external
// integrity tooling.
const ManifestName = "known_good_binary_hashes.txt"

type Manager struct {
	root string
}

func NewManager(root string) *Manager {
	return &Manager{root: root}
}

// Path joins parts under the workspace root.
func (m *Manager) Path(parts ...string) string {
	return filepath.Join(append([]string{m.root}, parts...)...)
}

// EnsureLayout creates the artifact sinks and tool_box if missing.
func (m *Manager) EnsureLayout() error {
	for _, dir := range []string{DownloadedFiles, ProcessDumps, SysinfoDumps, DiskDumps, ToolBox} {
		if err := os.MkdirAll(m.Path(dir), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// ToolBoxFiles lists the files available for upload, sorted by name.
func (m *Manager) ToolBoxFiles() ([]string, error) {
	entries, err := os.ReadDir(m.Path(ToolBox))
	if err != nil {
		return nil, fmt.Errorf("list tool_box: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// TailAuthLog returns the last n lines of auth.log. A missing log yields
// no lines, not an error.
func (m *Manager) TailAuthLog(n int) ([]string, error) {
	data, err := os.ReadFile(m.Path("auth.log"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read auth.log: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// GenerateHashManifest lists each source directory and writes path:sha256
// lines for every regular file directly inside it; subdirectories are not
// descended into. Unreadable files are skipped. Returns the number of
// entries written.
func (m *Manager) GenerateHashManifest(sources []string) (int, error) {
	out, err := os.Create(m.Path(ManifestName))
	if err != nil {
		return 0, fmt.Errorf("create manifest: %w", err)
	}
	defer out.Close()

	count := 0
	for _, src := range sources {
		entries, err := os.ReadDir(src)
		if err != nil {
			continue
		}
		for _, e := range entries {
			full := filepath.Join(src, e.Name())
			info, err := e.Info()
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			digest, err := sha256File(full)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(out, "%s:%s\n", full, digest); err != nil {
				return count, fmt.Errorf("write manifest: %w", err)
			}
			count++
		}
	}
	return count, nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
