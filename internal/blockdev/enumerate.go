package blockdev

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// sysBlockDir and procMounts are overridable for tests.
var (
	sysBlockDir = "/sys/block"
	procMounts  = "/proc/mounts"
	devDiskDir  = "/dev/disk"
)

// Enumerate discovers all whitelisted block devices under /sys/block,
// their partitions, current mountpoints, and cached uuid/label metadata
// from /dev/disk (§3 BlockDevice, §4.1 step 9). PartInfo.FSType is not
// filled in.
func Enumerate() ([]BlockDevice, error) {
	entries, err := os.ReadDir(sysBlockDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sysBlockDir, err)
	}

	mounts, err := readMounts(procMounts)
	if err != nil {
		return nil, fmt.Errorf("read mounts: %w", err)
	}
	byUUID, byLabel := readDiskSymlinks(devDiskDir)

	var devices []BlockDevice
	for _, e := range entries {
		name := e.Name()
		major, minor, ok := readDevNumber(filepath.Join(sysBlockDir, name, "dev"))
		if !ok || !MajorWhitelist[major] {
			continue
		}
		devices = append(devices, buildDevice(name, major, minor, "", mounts, byUUID, byLabel))

		partEntries, err := os.ReadDir(filepath.Join(sysBlockDir, name))
		if err != nil {
			continue
		}
		for _, pe := range partEntries {
			pname := pe.Name()
			if !strings.HasPrefix(pname, name) {
				continue
			}
			pmajor, pminor, ok := readDevNumber(filepath.Join(sysBlockDir, name, pname, "dev"))
			if !ok {
				continue
			}
			devices = append(devices, buildDevice(pname, pmajor, pminor, name, mounts, byUUID, byLabel))
		}
	}

	return devices, nil
}

func buildDevice(name string, major, minor int, parent string, mounts map[string]string, byUUID, byLabel map[string]string) BlockDevice {
	dev := BlockDevice{Name: name, Major: major, Minor: minor, Parent: parent}
	dev.Mountpoint = mounts[dev.DevPath()]

	part := &PartInfo{}
	if u, ok := byUUID[name]; ok {
		part.UUID = u
	}
	if l, ok := byLabel[name]; ok {
		part.Label = l
	}
	if part.UUID != "" || part.Label != "" {
		dev.Part = part
	}
	return dev
}

// readDevNumber parses the "MAJOR:MINOR\n" contents of /sys/block/*/dev.
func readDevNumber(path string) (major, minor int, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, false
	}
	parts := strings.SplitN(strings.TrimSpace(string(data)), ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return major, minor, true
}

// readMounts parses /proc/mounts into a devPath -> mountpoint map.
func readMounts(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	defer f.Close()

	out := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		out[fields[0]] = fields[1]
	}
	return out, scanner.Err()
}

// readDiskSymlinks resolves /dev/disk/by-uuid and /dev/disk/by-label
// symlinks to device basenames.
func readDiskSymlinks(root string) (byUUID, byLabel map[string]string) {
	byUUID = map[string]string{}
	byLabel = map[string]string{}

	resolve := func(dir string, out map[string]string) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			link := filepath.Join(dir, e.Name())
			target, err := os.Readlink(link)
			if err != nil {
				continue
			}
			out[filepath.Base(target)] = e.Name()
		}
	}
	resolve(filepath.Join(root, "by-uuid"), byUUID)
	resolve(filepath.Join(root, "by-label"), byLabel)
	return byUUID, byLabel
}

// SortLeafFirst sorts devices by mountpoint length descending so that
// child mountpoints precede their parents, matching the UmountEntry
// ordering invariant of §3/§8.
func SortLeafFirst(devices []BlockDevice) []BlockDevice {
	sorted := make([]BlockDevice, len(devices))
	copy(sorted, devices)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Mountpoint) > len(sorted[j].Mountpoint)
	})
	return sorted
}
