package blockdev

import (
	"fmt"
	"strings"

	"github.com/balena-os/takeover/internal/config"
)

// UmountPlan builds the leaf-first UmountEntry list for every mounted
// partition of flashDevice (e.g. "sda"), per §4.1 step 9. fsTypeOf, if
// non-nil, supplies the filesystem type for a device path; when nil (as
// the Staging Builder passes it) or when a path is missing, "auto" is used.
func UmountPlan(devices []BlockDevice, flashDeviceName string, fsTypeOf map[string]string) []config.UmountEntry {
	var mounted []BlockDevice
	for _, d := range devices {
		if d.Parent != flashDeviceName {
			continue
		}
		if d.Mountpoint == "" {
			continue
		}
		mounted = append(mounted, d)
	}

	sorted := SortLeafFirst(mounted)

	entries := make([]config.UmountEntry, 0, len(sorted))
	for _, d := range sorted {
		fsType := "auto"
		if fsTypeOf != nil {
			if t, ok := fsTypeOf[d.DevPath()]; ok {
				fsType = t
			}
		}
		entries = append(entries, config.UmountEntry{
			Device:     d.DevPath(),
			Mountpoint: d.Mountpoint,
			FSType:     fsType,
		})
	}
	return entries
}

// ValidateLeafFirst checks the §3/§8 ordering invariant: no earlier
// entry's mountpoint is a prefix of a later entry's mountpoint, i.e.
// children precede their parents.
func ValidateLeafFirst(entries []config.UmountEntry) error {
	for i := range entries {
		for j := 0; j < i; j++ {
			if strings.HasPrefix(entries[i].Mountpoint, entries[j].Mountpoint) && entries[i].Mountpoint != entries[j].Mountpoint {
				return fmt.Errorf("umount order violated: %s (index %d) is a child of earlier entry %s (index %d)",
					entries[i].Mountpoint, i, entries[j].Mountpoint, j)
			}
		}
	}
	return nil
}

// FindDisk finds a whole-disk BlockDevice by name.
func FindDisk(devices []BlockDevice, name string) (BlockDevice, bool) {
	for _, d := range devices {
		if d.Name == name && !d.IsPartition() {
			return d, true
		}
	}
	return BlockDevice{}, false
}
