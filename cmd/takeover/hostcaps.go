package main

import (
	"os"
	"strings"
)

// hostCapabilities probes the running kernel for the two optional
// pseudo-filesystems the Staging Builder conditionally mounts (§4.1
// step 3): efivarfs on UEFI firmware, devtmpfs on any kernel built
// with CONFIG_DEVTMPFS. Neither is guaranteed; the staging package's
// mountPseudoFilesystems falls back
// to a plain tmpfs plus a manually populated /dev when devtmpfs is
// absent.
func hostCapabilities() (hasEFIVars, hasDevtmpfs bool) {
	_, err := os.Stat("/sys/firmware/efi/efivars")
	hasEFIVars = err == nil

	hasDevtmpfs = kernelSupportsFilesystem("devtmpfs")
	return hasEFIVars, hasDevtmpfs
}

func kernelSupportsFilesystem(name string) bool {
	data, err := os.ReadFile("/proc/filesystems")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[len(fields)-1] == name {
			return true
		}
	}
	return false
}
