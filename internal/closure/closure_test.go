package closure

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0755))
}

func TestClosureFilesOrdering(t *testing.T) {
	c := Closure{
		Binaries:  []string{"/usr/bin/init"},
		Libraries: []string{"/lib/libc.so.6", "/lib/ld-linux.so.2"},
	}
	require.Equal(t, []string{"/usr/bin/init", "/lib/libc.so.6", "/lib/ld-linux.so.2"}, c.Files())
}

func TestTotalBytesAndHeadroom(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "bin", "init")
	lib := filepath.Join(dir, "lib", "libc.so.6")
	writeFile(t, bin, 1000)
	writeFile(t, lib, 2000)

	c := Closure{Binaries: []string{bin}, Libraries: []string{lib}}
	total, err := c.TotalBytes()
	require.NoError(t, err)
	require.Equal(t, int64(3000), total)

	require.NoError(t, CheckHeadroom(c, 3000+RequiredHeadroomBytes))
	require.Error(t, CheckHeadroom(c, 3000+RequiredHeadroomBytes-1))
}

func TestRewriteLibPath(t *testing.T) {
	require.Equal(t, "/usr/lib/libc.so.6", rewriteLibPath("/lib/libc.so.6"))
	require.Equal(t, "/usr/lib", rewriteLibPath("/lib"))
	require.Equal(t, "/usr/bin/dd", rewriteLibPath("/usr/bin/dd"))
	require.Equal(t, "/lib64/ld-linux-x86-64.so.2", rewriteLibPath("/lib64/ld-linux-x86-64.so.2"))
}

// The source files live under a temp dir, not under /lib, so no prefix
// rewrite applies and both keep their full source path under destRoot.
func TestCopyIntoPreservesSourcePaths(t *testing.T) {
	srcRoot := t.TempDir()
	destRoot := t.TempDir()

	bin := filepath.Join(srcRoot, "usr", "bin", "init")
	lib := filepath.Join(srcRoot, "lib", "libc.so.6")
	writeFile(t, bin, 10)
	writeFile(t, lib, 20)

	c := Closure{Binaries: []string{bin}, Libraries: []string{lib}}
	require.NoError(t, CopyInto(destRoot, c))

	_, err := os.Stat(filepath.Join(destRoot, bin))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(destRoot, lib))
	require.NoError(t, err)
}

func TestBuildMissingExecutable(t *testing.T) {
	_, err := Build([]string{"/nonexistent/path/to/binary"})
	require.Error(t, err)
}
