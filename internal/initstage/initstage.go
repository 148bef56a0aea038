// Package initstage implements the Init Stage (§4.3): the code path that
// runs as the new pid 1, immediately after the kernel re-execs init into
// the binary the Pivot Launcher bind-mounted into place.
package initstage

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"

	"github.com/balena-os/takeover/internal/config"
	"github.com/balena-os/takeover/internal/logger"
	"github.com/balena-os/takeover/internal/mountutil"
	"github.com/balena-os/takeover/internal/paths"
	"golang.org/x/sys/unix"
)

// highestProbedFD bounds the fd-closing probe at §4.3 step 5 ("enumerate
// fds 3..1024"); pid 1 never legitimately holds more than this after a
// normal boot.
const highestProbedFD = 1024

// Run executes the full §4.3 sequence. It never returns on success — the
// final step is a blocking wait() loop, with every catchable signal
// captured, that only a reboot() syscall ends; it returns an error only
// if a step up to and including spawning the migration worker fails, in
// which case the caller should reboot (§4.3 step 1).
func Run(stagingRoot, progName string, sink *logger.Redirectable, log *slog.Logger) error {
	if os.Getpid() != 1 {
		return fmt.Errorf("initstage: not pid 1, refusing to proceed")
	}

	if err := os.Chdir(stagingRoot); err != nil {
		return fmt.Errorf("initstage: chdir %s: %w", stagingRoot, err)
	}

	tree := paths.New(stagingRoot)
	cfg, err := config.ReadStage2Config(tree.Stage2Config())
	if err != nil {
		return fmt.Errorf("initstage: read stage2 config: %w", err)
	}

	// Re-apply the configured log level (§4.3 step 4) by rebuilding the
	// logger at that level on the same sink.
	log = logger.NewSubsystemLogger(logger.SubsystemInit, logger.Config{DefaultLevel: cfg.LevelValue()}, sink)
	log.Info("entering init stage", "log_level", cfg.LogLevel, "flash_device", cfg.FlashDevice)

	if err := closeInheritedFDs(tree, sink); err != nil {
		return fmt.Errorf("initstage: close inherited fds: %w", err)
	}

	if cfg.LogDevice != nil {
		if err := mountLogDevice(tree, cfg.LogDevice, sink); err != nil {
			return fmt.Errorf("initstage: mount log device: %w", err)
		}
	}

	if err := mountutil.MakeRPrivate("/"); err != nil {
		return fmt.Errorf("initstage: make-rprivate /: %w", err)
	}

	if err := mountutil.PivotRoot(".", paths.OldRootMount); err != nil {
		return fmt.Errorf("initstage: pivot_root: %w", err)
	}

	worker := exec.Command(filepath.Join("/", "bin", progName), "--stage2")
	worker.Stdin = os.Stdin
	worker.Stdout = os.Stdout
	worker.Stderr = os.Stderr
	if err := worker.Start(); err != nil {
		return fmt.Errorf("initstage: spawn migration worker: %w", err)
	}
	log.Info("migration worker spawned", "pid", worker.Process.Pid)

	blockAllSignalsAndWaitForever(log)
	return nil // unreachable
}

// closeInheritedFDs implements §4.3 step 5: create a pipe, dup its read
// end over fd 0, redirect fds 1/2 to a log file under the tree root,
// then probe-and-close fds 3..1024, keeping the log file's own fd open
// since the logger sink now writes through it.
func closeInheritedFDs(tree *paths.Tree, sink *logger.Redirectable) error {
	var pipeFDs [2]int
	if err := unix.Pipe(pipeFDs[:]); err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	if err := unix.Dup2(pipeFDs[0], 0); err != nil {
		return fmt.Errorf("dup2 pipe read end onto fd 0: %w", err)
	}
	_ = unix.Close(pipeFDs[0])
	_ = unix.Close(pipeFDs[1])

	logPath := tree.Join(paths.InitLogName)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", logPath, err)
	}
	if err := unix.Dup2(int(logFile.Fd()), 1); err != nil {
		return fmt.Errorf("dup2 log file onto fd 1: %w", err)
	}
	if err := unix.Dup2(int(logFile.Fd()), 2); err != nil {
		return fmt.Errorf("dup2 log file onto fd 2: %w", err)
	}
	sink.Set(logFile)

	logFD := int(logFile.Fd())
	for fd := 3; fd <= highestProbedFD; fd++ {
		if fd == logFD || !isOpenFD(fd) {
			continue
		}
		_ = unix.Close(fd)
	}
	return nil
}

// isOpenFD probes whether fd is open without disturbing it, using
// fcntl(F_GETFD) as the metadata query; EBADF means "not open".
func isOpenFD(fd int) bool {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err == nil
}

// mountLogDevice implements §4.3 step 6: unmount the log device if it is
// mounted elsewhere, mount it under mnt/log, and redirect the logger to
// mnt/log/stage2-init.log.
func mountLogDevice(tree *paths.Tree, dev *config.LogDevice, sink *logger.Redirectable) error {
	_ = mountutil.Unmount(dev.Device, false)

	if err := mountutil.Mount(dev.Device, tree.MntLog(), dev.FSType, 0, ""); err != nil {
		return fmt.Errorf("mount log device %s: %w", dev.Device, err)
	}

	logFile := tree.Join(paths.LogMount, "stage2-init.log")
	if _, err := sink.RedirectToFile(logFile); err != nil {
		return fmt.Errorf("redirect logger to %s: %w", logFile, err)
	}
	return nil
}

// blockAllSignalsAndWaitForever implements §4.3 step 9's parent side and
// §5's signal model: pid 1 routes every catchable signal to a channel
// that is never read (signal.Notify with no signal list), so no signal
// runs its default action, and loops on wait(), because pid 1 must never
// exit even when its children die. The thread signal mask itself is not
// changed (no sigprocmask call).
func blockAllSignalsAndWaitForever(log *slog.Logger) {
	full := make(chan os.Signal, 1)
	signal.Notify(full) // deliberately unbounded: pid 1 absorbs everything

	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, 0, nil)
		if err != nil {
			if err == unix.ECHILD {
				// No children currently; this is normal between the
				// worker's exit and a subsequent respawn path, if any.
				continue
			}
			log.Warn("wait4 error in init loop", "error", err)
			continue
		}
		log.Info("reaped child", "pid", pid, "status", ws.ExitStatus())
	}
}
