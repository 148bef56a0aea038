package mountutil

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// MountEntry is one parsed line of /etc/mtab or /proc/mounts.
type MountEntry struct {
	Device     string
	Mountpoint string
	FSType     string
	Options    string
}

// ReadMtab parses an fstab-formatted file (both /etc/mtab and
// /proc/mounts use this format) into an ordered list of entries, in the
// same on-disk order (§4.4: the reaper reads /etc/mtab, not /proc/mounts,
// because the old root's /proc is gone after pivot_root).
func ReadMtab(path string) ([]MountEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var entries []MountEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		entries = append(entries, MountEntry{
			Device:     fields[0],
			Mountpoint: unescapeOctal(fields[1]),
			FSType:     fields[2],
			Options:    fields[3],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return entries, nil
}

// unescapeOctal reverses the \NNN octal escaping mtab uses for spaces
// and other special characters in mountpoint paths.
func unescapeOctal(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if v, err := strconv.ParseInt(s[i+1:i+4], 8, 32); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// SortEntriesLeafFirst orders mtab entries so that the longest (deepest)
// mountpoints come first, matching the same leaf-first invariant the
// blockdev package enforces on the stage2 umount list (§3, §8).
func SortEntriesLeafFirst(entries []MountEntry) []MountEntry {
	sorted := make([]MountEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Mountpoint) > len(sorted[j].Mountpoint)
	})
	return sorted
}
