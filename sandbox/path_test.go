package sandbox

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/aarzilli/golua/lua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPackagePathExtended(t *testing.T) {
	sb, root := newTestSandbox(t, Config{})

	path, err := PackagePath(sb.State())
	require.NoError(t, err)
	want := filepath.Join(root, DefaultLuasrcDir) + "/?.lua;"
	assert.True(t, strings.HasPrefix(path, want), "package.path %q should start with %q", path, want)
}

func TestPackagePathPrependsOnce(t *testing.T) {
	L := lua.NewState()
	L.OpenLibs()
	original, err := PackagePath(L)
	L.Close()
	require.NoError(t, err)

	sb, err := New("test", Config{MaxMemory: 1 << 20, LuasrcDir: "lib"}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	defer sb.Close()

	path, err := PackagePath(sb.State())
	require.NoError(t, err)
	assert.Equal(t, "lib/?.lua;"+original, path)
}

func TestPackagePathWithoutPackageLibrary(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	_, err := PackagePath(L)
	require.Error(t, err)
}

func TestPackagePathNotString(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	L.NewTable()
	L.SetGlobal("package")

	_, err := PackagePath(L)
	require.Error(t, err)
	assert.Equal(t, 0, L.GetTop())
}
