// Package mountutil wraps the mount-family syscalls the staging builder,
// pivot launcher, init stage, and reaper all need: mount, umount,
// pivot_root, and mknod. Thin wrappers over golang.org/x/sys/unix (the
// teacher's existing direct dependency), following the teacher's habit
// of wrapping each syscall in an fmt.Errorf with the operation name
// (lib/network/bridge.go's ensureNATRule/deleteNATRuleByComment).
package mountutil

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Mount mounts source at target with the given fstype, flags, and data,
// creating target first if it doesn't exist.
func Mount(source, target, fstype string, flags uintptr, data string) error {
	if err := os.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("mkdir mount target %s: %w", target, err)
	}
	if err := unix.Mount(source, target, fstype, flags, data); err != nil {
		return fmt.Errorf("mount %s on %s (%s): %w", source, target, fstype, err)
	}
	return nil
}

// BindMount bind-mounts source onto target; target must already exist.
// Used for the new init binary over the old /proc/1/exe target (§4.2
// step 2).
func BindMount(source, target string) error {
	if err := unix.Mount(source, target, "", unix.MS_BIND, ""); err != nil {
		return fmt.Errorf("bind mount %s onto %s: %w", source, target, err)
	}
	return nil
}

// MakeRPrivate marks the mount at path and everything below it private
// recursively, so a later pivot_root doesn't propagate the old root's
// unmount back out to the host namespace it came from (§4.3 step 7).
func MakeRPrivate(path string) error {
	if err := unix.Mount("", path, "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return fmt.Errorf("make-rprivate %s: %w", path, err)
	}
	return nil
}

// Unmount unmounts target, lazily (MNT_DETACH) when lazy is set. It makes
// a single attempt and does not retry.
func Unmount(target string, lazy bool) error {
	var flags int
	if lazy {
		flags = unix.MNT_DETACH
	}
	if err := unix.Unmount(target, flags); err != nil {
		return fmt.Errorf("unmount %s (lazy=%v): %w", target, lazy, err)
	}
	return nil
}

// RemountReadOnly remounts an already-mounted filesystem read-only in
// place, the fallback the reaper uses when a plain unmount fails (§4.4).
func RemountReadOnly(target string) error {
	if err := unix.Mount("", target, "", unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
		return fmt.Errorf("remount %s read-only: %w", target, err)
	}
	return nil
}

// PivotRoot makes newRoot the new process root and moves the current root
// mount to putOld (§4.3 step 8). putOld must be a directory under newRoot.
func PivotRoot(newRoot, putOld string) error {
	if err := unix.PivotRoot(newRoot, putOld); err != nil {
		return fmt.Errorf("pivot_root(%s, %s): %w", newRoot, putOld, err)
	}
	return nil
}

// Chroot changes the process root to path.
func Chroot(path string) error {
	if err := unix.Chroot(path); err != nil {
		return fmt.Errorf("chroot %s: %w", path, err)
	}
	return nil
}

// Mknod creates a device node at path with the given mode and device
// number, used to rebuild /dev inside the staging tmpfs when devtmpfs
// itself cannot be mounted there (§4.1 step 4).
func Mknod(path string, mode uint32, dev int) error {
	if err := unix.Mknod(path, mode, dev); err != nil {
		return fmt.Errorf("mknod %s: %w", path, err)
	}
	return nil
}

// Mkdev builds a device number from major/minor, mirroring
// unix.Mkdev so callers of this package never need to import
// golang.org/x/sys/unix directly just for this.
func Mkdev(major, minor uint32) int {
	return int(unix.Mkdev(major, minor))
}
