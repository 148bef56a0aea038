package mountutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadMtab(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mtab")
	content := "/dev/sda2 / ext4 rw,relatime 0 0\n" +
		"/dev/sda1 /boot\\040efi vfat rw,relatime 0 0\n" +
		"# a comment line\n" +
		"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	entries, err := ReadMtab(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "/", entries[0].Mountpoint)
	require.Equal(t, "/boot efi", entries[1].Mountpoint)
	require.Equal(t, "vfat", entries[1].FSType)
}

func TestSortEntriesLeafFirst(t *testing.T) {
	entries := []MountEntry{
		{Mountpoint: "/"},
		{Mountpoint: "/boot"},
		{Mountpoint: "/data/logs"},
	}
	sorted := SortEntriesLeafFirst(entries)
	require.Equal(t, "/data/logs", sorted[0].Mountpoint)
	require.Equal(t, "/", sorted[len(sorted)-1].Mountpoint)
}

func TestMkdev(t *testing.T) {
	require.NotPanics(t, func() { Mkdev(8, 1) })
}
