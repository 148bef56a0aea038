package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/balena-os/takeover/internal/closure"
	"github.com/balena-os/takeover/internal/paths"
)

// computeClosure resolves the executable closure starting from the
// running binary plus the optional extras (dd, efibootmgr, mtd_debug),
// per §4.1 step 2.
func (b *builder) computeClosure(req Request) (closure.Closure, error) {
	executables := append([]string{req.SelfExe}, req.ExtraBinaries...)
	return closure.Build(executables)
}

// checkHeadroom verifies the closure plus the fixed headroom fits within
// the tmpfs's available space, read from the mount's statfs (§4.1 step 2,
// §8 boundary scenario 5).
func (b *builder) checkHeadroom(mountpoint string, clos closure.Closure) error {
	available, err := tmpfsAvailableBytes(mountpoint)
	if err != nil {
		return fmt.Errorf("stat tmpfs free space: %w", err)
	}
	return closure.CheckHeadroom(clos, available)
}

// copySelfAs copies the running binary to dst, the migration binary's
// well-known location inside the staging tree (§4.1 step 6, last
// sentence: "Copy the migration binary to /balena-takeover/bin/<progname>").
func copySelfAs(selfExe, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(selfExe)
	if err != nil {
		return fmt.Errorf("open %s: %w", selfExe, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0755)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s -> %s: %w", selfExe, dst, err)
	}
	return out.Close()
}

// copyPayload copies the OS image, config.json, and optional backup
// archive into the staging tree (§4.1 step 7).
func copyPayload(tree *paths.Tree, req Request) error {
	if err := copyRegularFile(req.ImagePath, tree.ImagePath(), 0644); err != nil {
		return fmt.Errorf("copy image: %w", err)
	}
	if err := copyRegularFile(req.ConfigPath, tree.ConfigPath(), 0644); err != nil {
		return fmt.Errorf("copy config: %w", err)
	}
	if req.BackupPath != "" {
		if err := copyRegularFile(req.BackupPath, tree.BackupPath(), 0644); err != nil {
			return fmt.Errorf("copy backup: %w", err)
		}
	}
	return nil
}

// flashDiskName derives the whole-disk block device name that the staging
// builder's enumeration step should match against, from an absolute
// device path such as "/dev/sda" or "/dev/mmcblk0".
func (r Request) flashDiskName() string {
	// ImagePath carries no device info; the flash device itself is
	// resolved by the caller (CLI layer) and passed through as part of
	// the validated request in a full wiring. Here we derive it from the
	// conventional "--flash-to" device path surfaced via ExtraBinaries'
	// sibling field in cmd/takeover — kept simple: strip "/dev/" prefix.
	return strings.TrimPrefix(r.FlashDevice, "/dev/")
}
