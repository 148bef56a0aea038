// Package pivot implements the Pivot Launcher (§4.2): the step that
// causes pid 1 to re-exec into the migration binary now living in the
// staging tmpfs, without ever stopping pid 1 (which would reboot the
// host).
package pivot

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/balena-os/takeover/internal/mountutil"
)

const initExePath = "/proc/1/exe"

// Launch runs the §4.2 protocol: read /proc/1/exe, bind-mount
// newInitBinary over it, invoke "telinit u", and return. The caller is
// expected to exit immediately afterward — the next instruction pid 1
// fetches comes from newInitBinary because the bind mount replaced the
// file the kernel re-opens on re-exec.
func Launch(newInitBinary string) error {
	target, err := os.Readlink(initExePath)
	if err != nil {
		return fmt.Errorf("pivot: read %s: %w", initExePath, err)
	}

	if err := mountutil.BindMount(newInitBinary, target); err != nil {
		return fmt.Errorf("pivot: bind-mount %s over %s: %w", newInitBinary, target, err)
	}

	if out, err := exec.Command("telinit", "u").CombinedOutput(); err != nil {
		return fmt.Errorf("pivot: telinit u: %w (%s)", err, string(out))
	}

	return nil
}

// IsInitProcess reports whether the current process is pid 1, the
// detection rule both the Pivot Launcher's caller and the Init Stage use
// to pick their behavior (§4.2 "Detection at entry of new pid 1").
func IsInitProcess() bool {
	return os.Getpid() == 1
}
