// Package blockdev enumerates the host's block devices from /sys/block and
// builds the leaf-first unmount list the Process Reaper needs (§3
// BlockDevice, §8 invariant: "For every partition of the flash device...
// there exists a corresponding UmountEntry").
package blockdev

// MajorWhitelist covers real disk hardware major numbers (§3 BlockDevice
// invariant): IDE/SATA (3, 8, 9), MD/loop-adjacent ranges, SCSI disk
// majors 8, virtio-blk (253 on some kernels is handled via /sys/block's
// own major:minor, not hardcoded majors), MMC (179, 180), NVMe (259).
var MajorWhitelist = map[int]bool{
	3: true, 8: true, 9: true, 21: true, 179: true, 180: true, 259: true,
}

func init() {
	for m := 33; m <= 87; m++ {
		MajorWhitelist[m] = true
	}
}

// PartInfo describes one partition metadata entry (uuid, fs type, label)
// cached on a BlockDevice.
type PartInfo struct {
	UUID   string
	FSType string
	Label  string
}

// BlockDevice is the in-memory record of one device under /sys/block: a
// whole disk, or one of its partitions. Discovered only, never persisted —
// it does not cross the pivot boundary (that's what Stage2Config.Umounts
// is for).
type BlockDevice struct {
	Name        string // e.g. "sda", "sda1", "mmcblk0p1"
	Major       int
	Minor       int
	Parent      string // disk name, empty for a whole disk; looked up by name, never a pointer cycle (§9)
	Mountpoint  string // current mountpoint, empty if not mounted
	Part        *PartInfo
}

// IsPartition reports whether this entry is a partition of another disk.
func (d BlockDevice) IsPartition() bool { return d.Parent != "" }

// DevPath returns the /dev node path for this device.
func (d BlockDevice) DevPath() string { return "/dev/" + d.Name }
