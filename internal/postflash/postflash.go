// Package postflash implements the Post-Flash Writer (§4.6): once the
// raw image is on disk, it overlays network configs, the staged
// config.json, and an optional backup archive, and writes
// device-specific boot-manager state. config.json is copied byte for
// byte; no field in it (the hostname included) is changed here.
package postflash

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/balena-os/takeover/internal/config"
	"github.com/balena-os/takeover/internal/devicetype"
	"github.com/balena-os/takeover/internal/loopdev"
	"github.com/balena-os/takeover/internal/mountutil"
	"github.com/balena-os/takeover/internal/partutil"
)

// Partition roles on the freshly-written balena image, by index and
// label (§4.6 step 1).
const (
	bootPartitionIndex = 1
	rootAPartitionIndex = 2
	dataPartitionIndex  = 6

	bootPartitionLabel = "resin-boot"
	rootAPartitionLabel = "resin-rootA"
	dataPartitionLabel  = "resin-data"
)

// Request carries everything the Post-Flash Writer needs for one run.
type Request struct {
	FlashDevice    string
	ConfigPath     string // config.json, already staged
	NetworkConnDir string // system-connections directory, already staged; may be empty
	SystemProxyDir string // system-proxy directory, already staged; may be empty
	BackupPath     string // optional backup archive; empty if none
	DeviceType     config.DeviceType
	NoEFISetup     bool
	DiskSizeBytes  int64
}

// Writer performs the post-flash overlay and boot setup.
type Writer struct {
	log *slog.Logger
}

// New returns a Writer logging through log.
func New(log *slog.Logger) *Writer {
	return &Writer{log: log}
}

// Run executes the full §4.6 algorithm.
func (w *Writer) Run(req Request) error {
	dev, err := os.OpenFile(req.FlashDevice, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("postflash: open %s: %w", req.FlashDevice, err)
	}
	defer dev.Close()

	parts, err := partutil.ReadTable(dev, 512, 512)
	if err != nil {
		return fmt.Errorf("postflash: read partition table: %w", err)
	}

	boot, ok := findPartition(parts, bootPartitionIndex, bootPartitionLabel)
	if !ok {
		return fmt.Errorf("postflash: boot partition not found")
	}
	rootA, ok := findPartition(parts, rootAPartitionIndex, rootAPartitionLabel)
	if !ok {
		return fmt.Errorf("postflash: rootA partition not found")
	}
	data, dataOK := findPartition(parts, dataPartitionIndex, dataPartitionLabel)

	if err := w.writeBootPartition(req, boot); err != nil {
		return fmt.Errorf("postflash: %w", err)
	}

	policy := devicetype.PolicyFor(req.DeviceType)
	if policy.BootBlobRelPath != "" {
		if err := w.writeBootBlob(req, rootA, policy); err != nil {
			return fmt.Errorf("postflash: %w", err)
		}
	}

	if req.BackupPath != "" && dataOK {
		if err := w.writeDataPartition(req, data); err != nil {
			return fmt.Errorf("postflash: %w", err)
		}
	}

	switch {
	case policy.EFISetup && !req.NoEFISetup:
		if err := w.setupEFI(req, boot); err != nil {
			return fmt.Errorf("postflash: %w", err)
		}
	case policy.EFISetup && req.NoEFISetup:
		if err := w.removeStrayEFIDir(req, boot); err != nil {
			return fmt.Errorf("postflash: %w", err)
		}
	}

	return nil
}

func findPartition(parts []partutil.PartInfo, index int, label string) (partutil.PartInfo, bool) {
	if label != "" {
		for _, p := range parts {
			if p.Label == label {
				return p, true
			}
		}
	}
	for _, p := range parts {
		if p.Index == index-1 {
			return p, true
		}
	}
	return partutil.PartInfo{}, false
}

// withLoopMount attaches a loop device to the given partition of
// req.FlashDevice, mounts it with fsType at mountpoint, runs fn, then
// unmounts and detaches in that order on every exit path
// (§4.6 steps 2 and 6).
func (w *Writer) withLoopMount(req Request, part partutil.PartInfo, fsType, mountpoint string, fn func() error) error {
	loop, err := loopdev.AcquireFree()
	if err != nil {
		return fmt.Errorf("acquire loop device: %w", err)
	}
	if err := loop.Attach(req.FlashDevice, part.ByteOffset(), part.ByteSize()); err != nil {
		return fmt.Errorf("attach loop device: %w", err)
	}
	defer func() {
		if err := loop.Detach(); err != nil {
			w.log.Warn("detach loop device failed", "device", loop.Path, "error", err)
		}
	}()

	if err := mountutil.Mount(loop.Path, mountpoint, fsType, 0, ""); err != nil {
		return fmt.Errorf("mount %s at %s: %w", loop.Path, mountpoint, err)
	}
	defer func() {
		if err := mountutil.Unmount(mountpoint, true); err != nil {
			w.log.Warn("unmount failed", "mountpoint", mountpoint, "error", err)
		}
	}()

	return fn()
}

func (w *Writer) writeBootPartition(req Request, boot partutil.PartInfo) error {
	mountpoint := "/mnt/balena-boot"
	return w.withLoopMount(req, boot, "vfat", mountpoint, func() error {
		if err := copyFile(req.ConfigPath, filepath.Join(mountpoint, "config.json")); err != nil {
			return fmt.Errorf("copy config.json: %w", err)
		}
		if req.NetworkConnDir != "" {
			if err := copyDir(req.NetworkConnDir, filepath.Join(mountpoint, "system-connections")); err != nil {
				return fmt.Errorf("copy system-connections: %w", err)
			}
		}
		if req.SystemProxyDir != "" {
			if err := copyDir(req.SystemProxyDir, filepath.Join(mountpoint, "system-proxy")); err != nil {
				return fmt.Errorf("copy system-proxy: %w", err)
			}
		}
		w.log.Info("boot partition overlay written")
		return nil
	})
}

func (w *Writer) writeDataPartition(req Request, data partutil.PartInfo) error {
	mountpoint := "/mnt/balena-part"
	return w.withLoopMount(req, data, "ext4", mountpoint, func() error {
		dst := filepath.Join(mountpoint, filepath.Base(req.BackupPath))
		if err := copyFile(req.BackupPath, dst); err != nil {
			return fmt.Errorf("copy backup archive: %w", err)
		}
		w.log.Info("backup archive written to data partition")
		return nil
	})
}
