package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// writeScript writes src to dir/name and returns the full path.
func writeScript(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), DirPermission))
	require.NoError(t, os.WriteFile(path, []byte(src), FilePermission))
	return path
}

// newTestSandbox creates a sandbox whose luasrc and sandbox directories live
// under a fresh temporary directory.
func newTestSandbox(t *testing.T, cfg Config, opts ...Option) (*Sandbox, string) {
	t.Helper()
	root := t.TempDir()
	if cfg.LuasrcDir == "" {
		cfg.LuasrcDir = filepath.Join(root, DefaultLuasrcDir)
	}
	if cfg.SandboxDir == "" {
		cfg.SandboxDir = filepath.Join(root, DefaultSandboxDir)
	}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	sb, err := New("test", cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sb.Close() })
	return sb, root
}
