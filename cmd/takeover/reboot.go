package main

import "golang.org/x/sys/unix"

// syncFilesystems implements §5's "every fs-visible step completes
// (including an explicit sync()) before the next phase".
func syncFilesystems() {
	unix.Sync()
}

// reboot issues the kernel's reboot() syscall (§5: "sync() + 3s sleep +
// reboot() syscall").
func reboot() error {
	return unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART)
}
