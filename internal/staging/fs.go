package staging

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/balena-os/takeover/internal/mountutil"
	"github.com/balena-os/takeover/internal/paths"
)

// mkSkeleton creates the directory skeleton under the staging tmpfs and
// the mtab symlink (§4.1 step 4).
func mkSkeleton(tree *paths.Tree) error {
	dirs := []string{
		tree.Etc(), tree.Proc(), tree.Tmp(), tree.Sys(),
		tree.Dev(), tree.DevPts(), tree.MntOldRoot(), tree.Bin(""),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", d, err)
		}
	}
	_ = os.Remove(tree.Mtab())
	if err := os.Symlink("/proc/mounts", tree.Mtab()); err != nil {
		return fmt.Errorf("symlink %s -> /proc/mounts: %w", tree.Mtab(), err)
	}
	return nil
}

// mountPseudoFilesystems mounts proc/tmp/sys(/efivars)/dev(/pts) into the
// skeleton (§4.1 step 5) and returns the mountpoints in the order they
// were mounted, so the caller can unwind them in reverse on failure.
func mountPseudoFilesystems(tree *paths.Tree, hasEFIVars, hasDevtmpfs bool) ([]string, error) {
	var mounted []string

	if err := mountutil.Mount("proc", tree.Proc(), "proc", 0, ""); err != nil {
		return mounted, err
	}
	mounted = append(mounted, tree.Proc())

	if err := mountutil.Mount("tmpfs", tree.Tmp(), "tmpfs", 0, ""); err != nil {
		return mounted, err
	}
	mounted = append(mounted, tree.Tmp())

	if err := mountutil.Mount("sysfs", tree.Sys(), "sysfs", 0, ""); err != nil {
		return mounted, err
	}
	mounted = append(mounted, tree.Sys())

	if hasEFIVars {
		efivars := tree.Join("sys", "firmware", "efi", "efivars")
		if err := mountutil.Mount("efivarfs", efivars, "efivarfs", 0, ""); err != nil {
			return mounted, err
		}
		mounted = append(mounted, efivars)
	}

	if hasDevtmpfs {
		if err := mountutil.Mount("devtmpfs", tree.Dev(), "devtmpfs", 0, ""); err != nil {
			hasDevtmpfs = false
		} else {
			mounted = append(mounted, tree.Dev())
		}
	}
	if !hasDevtmpfs {
		if err := mountutil.Mount("tmpfs", tree.Dev(), "tmpfs", 0, ""); err != nil {
			return mounted, err
		}
		mounted = append(mounted, tree.Dev())
		if err := copyDevTree("/dev", tree.Dev()); err != nil {
			return mounted, fmt.Errorf("copy /dev into staging tmpfs: %w", err)
		}
	}

	if err := mountutil.Mount("devpts", tree.DevPts(), "devpts", 0, ""); err != nil {
		return mounted, err
	}
	mounted = append(mounted, tree.DevPts())

	return mounted, nil
}

// disableSwap turns off swap system-wide so swap partitions on the flash
// device are not busy when the reaper later tries to unmount them
// (§4.1 step 1).
func disableSwap(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, "swapoff", "-a").CombinedOutput()
	if err != nil {
		return fmt.Errorf("swapoff -a: %w (%s)", err, string(out))
	}
	return nil
}
