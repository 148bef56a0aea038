package postflash

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/balena-os/takeover/internal/devicetype"
	"github.com/balena-os/takeover/internal/partutil"
)

// emmcForceROPathFmt formats the sysfs knob that must be cleared before an eMMC
// boot partition accepts writes (§4.6 step 4).
const emmcForceROPathFmt = "/sys/block/%s/force_ro"

// writeBootBlob implements §4.6 step 4: read the platform boot blob from
// the mounted rootA partition and write it either to the hardware's
// eMMC boot partition (unlocking force_ro first) or to QSPI via
// mtd_debug, per the device's boot policy.
func (w *Writer) writeBootBlob(req Request, rootA partutil.PartInfo, policy devicetype.BootPolicy) error {
	mountpoint := "/mnt/balena-part"

	// The blob must be extracted to a location outside rootA before the
	// loop mount backing it is torn down at the end of withLoopMount
	// (§4.6 step 6 unmounts/detaches unconditionally on return).
	extracted, err := os.CreateTemp("", "boot-blob-*")
	if err != nil {
		return fmt.Errorf("create temp file for boot blob: %w", err)
	}
	extractedPath := extracted.Name()
	defer os.Remove(extractedPath)

	err = w.withLoopMount(req, rootA, "ext4", mountpoint, func() error {
		blobPath := filepath.Join(mountpoint, policy.BootBlobRelPath)
		src, err := os.Open(blobPath)
		if err != nil {
			return fmt.Errorf("open boot blob %s: %w", blobPath, err)
		}
		defer src.Close()
		_, copyErr := io.Copy(extracted, src)
		return copyErr
	})
	closeErr := extracted.Close()
	if err != nil {
		return fmt.Errorf("extract boot blob: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close extracted boot blob: %w", closeErr)
	}

	switch {
	case policy.QSPIBootBlob:
		return w.writeQSPIBlob(extractedPath)
	case policy.EMMCBootPartition:
		return w.writeEMMCBlob(extractedPath)
	default:
		return nil
	}
}

func (w *Writer) writeEMMCBlob(blobPath string) error {
	bootPartDevice := "mmcblk0boot0"
	forceROPath := fmt.Sprintf(emmcForceROPathFmt, bootPartDevice)

	if err := os.WriteFile(forceROPath, []byte("0"), 0); err != nil {
		return fmt.Errorf("unlock %s: %w", forceROPath, err)
	}

	in, err := os.Open(blobPath)
	if err != nil {
		return fmt.Errorf("open boot blob %s: %w", blobPath, err)
	}
	defer in.Close()

	out, err := os.OpenFile("/dev/"+bootPartDevice, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", bootPartDevice, err)
	}
	defer out.Close()

	if err := copyStream(out, in); err != nil {
		return fmt.Errorf("write boot blob to %s: %w", bootPartDevice, err)
	}
	w.log.Info("eMMC boot blob written", "device", bootPartDevice)
	return nil
}

func (w *Writer) writeQSPIBlob(blobPath string) error {
	info, err := os.Stat(blobPath)
	if err != nil {
		return fmt.Errorf("stat boot blob %s: %w", blobPath, err)
	}
	eraseCmd := mtdDebugCommand("erase", "/dev/mtd0", "0", fmt.Sprintf("%d", info.Size()))
	if out, err := eraseCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("mtd_debug erase: %w (%s)", err, string(out))
	}
	writeCmd := mtdDebugCommand("write", "/dev/mtd0", "0", fmt.Sprintf("%d", info.Size()), blobPath)
	if out, err := writeCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("mtd_debug write: %w (%s)", err, string(out))
	}
	w.log.Info("QSPI boot blob written", "device", "/dev/mtd0")
	return nil
}
