package blockdev

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/balena-os/takeover/internal/config"
	"github.com/stretchr/testify/require"
)

func writeSysBlock(t *testing.T, root string) {
	t.Helper()
	mk := func(path, devno string) {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(devno+"\n"), 0644))
	}
	mk(filepath.Join(root, "sda", "dev"), "8:0")
	mk(filepath.Join(root, "sda", "sda1", "dev"), "8:1")
	mk(filepath.Join(root, "sda", "sda2", "dev"), "8:2")
	// Non-whitelisted major (e.g. ramdisk major 1) should be skipped.
	mk(filepath.Join(root, "ram0", "dev"), "1:0")
}

func TestEnumerate(t *testing.T) {
	dir := t.TempDir()
	writeSysBlock(t, dir)

	mountsPath := filepath.Join(dir, "mounts")
	require.NoError(t, os.WriteFile(mountsPath, []byte(
		"/dev/sda1 /boot vfat rw 0 0\n/dev/sda2 / ext4 rw 0 0\n"), 0644))

	oldBlock, oldMounts, oldDisk := sysBlockDir, procMounts, devDiskDir
	sysBlockDir, procMounts, devDiskDir = dir, mountsPath, filepath.Join(dir, "disk")
	defer func() { sysBlockDir, procMounts, devDiskDir = oldBlock, oldMounts, oldDisk }()

	devices, err := Enumerate()
	require.NoError(t, err)

	names := map[string]BlockDevice{}
	for _, d := range devices {
		names[d.Name] = d
	}

	require.Contains(t, names, "sda")
	require.Contains(t, names, "sda1")
	require.Contains(t, names, "sda2")
	require.NotContains(t, names, "ram0")

	require.Equal(t, "sda", names["sda1"].Parent)
	require.Equal(t, "/boot", names["sda1"].Mountpoint)
	require.Equal(t, "/", names["sda2"].Mountpoint)
	require.Empty(t, names["sda"].Parent)
}

func TestUmountPlanLeafFirst(t *testing.T) {
	devices := []BlockDevice{
		{Name: "sda", Major: 8, Minor: 0},
		{Name: "sda1", Major: 8, Minor: 1, Parent: "sda", Mountpoint: "/boot"},
		{Name: "sda2", Major: 8, Minor: 2, Parent: "sda", Mountpoint: "/"},
		{Name: "sda3", Major: 8, Minor: 3, Parent: "sda", Mountpoint: "/data"},
		{Name: "sdb1", Major: 8, Minor: 17, Parent: "sdb", Mountpoint: "/mnt/other"},
	}

	entries := UmountPlan(devices, "sda", nil)
	require.Len(t, entries, 3)

	err := ValidateLeafFirst(entries)
	require.NoError(t, err)

	// Root "/" is a prefix of every other mountpoint, so it must sort last.
	require.Equal(t, "/", entries[len(entries)-1].Mountpoint)
}

func TestValidateLeafFirstDetectsViolation(t *testing.T) {
	bad := []config.UmountEntry{
		{Device: "/dev/sda2", Mountpoint: "/", FSType: "ext4"},
		{Device: "/dev/sda1", Mountpoint: "/boot", FSType: "vfat"},
	}
	require.Error(t, ValidateLeafFirst(bad))
}
