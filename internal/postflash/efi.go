package postflash

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/balena-os/takeover/internal/efiboot"
	"github.com/balena-os/takeover/internal/partutil"
)

const newOSEFILabel = "balenaOS"

// setupEFI implements §4.6 step 7's x86+EFI path: delete any existing
// boot entry matching the new OS label, then create a new one pointing
// at \EFI\BOOT\bootx64.efi on the boot partition, disk 1.
func (w *Writer) setupEFI(req Request, boot partutil.PartInfo) error {
	if err := efiboot.DeleteByLabel(newOSEFILabel); err != nil {
		return fmt.Errorf("delete existing EFI boot entries: %w", err)
	}

	mountpoint := "/mnt/balena-boot"
	return w.withLoopMount(req, boot, "vfat", mountpoint, func() error {
		efiBinPath := filepath.Join(mountpoint, "EFI", "BOOT", "bootx64.efi")
		if _, err := os.Stat(efiBinPath); err != nil {
			return fmt.Errorf("stat %s: %w", efiBinPath, err)
		}
		if err := efiboot.Create(newOSEFILabel, mountpoint, efiBinPath); err != nil {
			return fmt.Errorf("create EFI boot entry: %w", err)
		}
		w.log.Info("EFI boot entry created", "label", newOSEFILabel)
		return nil
	})
}

// removeStrayEFIDir implements §4.6 step 7's non-EFI x86 path: delete
// any stray EFI/ directory left in the boot partition.
func (w *Writer) removeStrayEFIDir(req Request, boot partutil.PartInfo) error {
	mountpoint := "/mnt/balena-boot"
	return w.withLoopMount(req, boot, "vfat", mountpoint, func() error {
		efiDir := filepath.Join(mountpoint, "EFI")
		if err := os.RemoveAll(efiDir); err != nil {
			return fmt.Errorf("remove stray %s: %w", efiDir, err)
		}
		return nil
	})
}
