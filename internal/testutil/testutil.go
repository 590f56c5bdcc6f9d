// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/appboot/appboot/pkg/types"
)

// Stopper is implemented by servers.
type Stopper interface {
	Stop() error
}

// DefaultProject is the file layout matching the default configuration:
// a manifest, an app package, templates and static assets.
var DefaultProject = map[string]string{
	"requirements.txt":     "fastapi==0.110.0\n",
	"app/main.py":          "app = object()\n",
	"templates/index.html": "<html></html>\n",
	"static/site.css":      "body {}\n",
}

// WriteFile writes content to the slash-separated path rel under root,
// creating parent directories.
func WriteFile(t testing.TB, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
}

// WriteTree writes every file of files under root.
func WriteTree(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		WriteFile(t, root, rel, content)
	}
}

// WriteProject lays out DefaultProject in a fresh temp dir and returns it.
func WriteProject(t testing.TB) string {
	t.Helper()
	root := t.TempDir()
	WriteTree(t, root, DefaultProject)
	return root
}

// FreePort returns a loopback port that was free a moment ago.
func FreePort(t testing.TB) types.ListenPort {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	if err := l.Close(); err != nil {
		t.Fatalf("failed to release port %d: %v", port, err)
	}
	return types.ListenPort(port)
}

// AssertPortClosed fails the test when the loopback port accepts connections.
func AssertPortClosed(t testing.TB, port types.ListenPort) {
	t.Helper()
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port)))
	if conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond); err == nil {
		_ = conn.Close()
		t.Errorf("port %d accepts connections", port)
	}
}

// MustStop stops s. Shutdown errors during cleanup are logged, not fatal.
func MustStop(t testing.TB, s Stopper) {
	t.Helper()
	if err := s.Stop(); err != nil {
		t.Logf("warning: stop returned error: %v", err)
	}
}

// DeferStop returns a cleanup function that stops s, logging any error.
func DeferStop(t testing.TB, s Stopper) func() {
	t.Helper()
	return func() {
		t.Helper()
		MustStop(t, s)
	}
}
