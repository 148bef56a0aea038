// Package loopdev implements the loop-device state machine described in
// §4.6: Free -> Attached (file bound, offset set) -> Active (block
// device usable) -> Detached, each transition a single ioctl against
// /dev/loop-control or the loop device node itself. Built directly on
// golang.org/x/sys/unix (the teacher's existing direct dependency)
// rather than github.com/u-root/u-root/pkg/loop: that package's
// attach-in-one-call API has no hook for the §4.6 LOOP_SET_STATUS_64
// retry-three-times-with-backoff requirement, so the raw ioctl sequence
// is reproduced here instead, following the same fd-plus-ioctl pattern
// u-root/pkg/loop itself uses internally.
package loopdev

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// State is the loop device's position in the §4.6 state machine.
type State int

const (
	StateFree State = iota
	StateAttached
	StateActive
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateAttached:
		return "attached"
	case StateActive:
		return "active"
	case StateDetached:
		return "detached"
	default:
		return "unknown"
	}
}

const (
	loopControlPath = "/dev/loop-control"

	// ioctl request numbers from linux/loop.h.
	loopCtlGetFree = 0x4C82
	loopSetFd      = 0x4C00
	loopClrFd      = 0x4C01
	loopSetStatus64 = 0x4C04

	statusRetries = 3
	statusBackoff = 100 * time.Millisecond
)

// loopInfo64 mirrors the full layout of struct loop_info64 from
// linux/loop.h; this package sets only the offset and size limit.
type loopInfo64 struct {
	Device         uint64
	Inode          uint64
	Rdevice        uint64
	Offset         uint64
	Sizelimit      uint64
	Number         uint32
	EncryptType    uint32
	EncryptKeySize uint32
	Flags          uint32
	FileName       [64]byte
	CryptName      [64]byte
	EncryptKey     [32]byte
	Init           [2]uint64
}

// Device represents one loop device across its lifetime: acquired free,
// attached to a backing file at an offset/size, then detached.
type Device struct {
	Path  string // e.g. "/dev/loop7"
	state State

	backingFile *os.File
	loopFile    *os.File
}

// AcquireFree finds a free loop device index via /dev/loop-control's
// LOOP_CTL_GET_FREE ioctl, falling back to scanning /dev/loopN if the
// control device is unavailable (§4.6 step 2).
func AcquireFree() (*Device, error) {
	ctl, err := os.OpenFile(loopControlPath, os.O_RDWR, 0)
	if err == nil {
		defer ctl.Close()
		idx, _, errno := unix.Syscall(unix.SYS_IOCTL, ctl.Fd(), loopCtlGetFree, 0)
		if errno == 0 {
			return &Device{Path: fmt.Sprintf("/dev/loop%d", idx), state: StateFree}, nil
		}
	}

	for i := 0; i < 256; i++ {
		path := fmt.Sprintf("/dev/loop%d", i)
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			continue
		}
		var info loopInfo64
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.LOOP_GET_STATUS64, uintptr(ptrTo(&info)))
		f.Close()
		if errno == unix.ENXIO {
			return &Device{Path: path, state: StateFree}, nil
		}
	}
	return nil, fmt.Errorf("loopdev: no free loop device found")
}

// Attach binds backingPath to the loop device at the given byte offset
// and size limit, and sets status (LOOP_SET_FD then LOOP_SET_STATUS_64),
// transitioning Free -> Attached -> Active (§4.6 step 2).
func (d *Device) Attach(backingPath string, offset, sizeLimit int64) error {
	if d.state != StateFree {
		return fmt.Errorf("loopdev: %s not in free state (currently %s)", d.Path, d.state)
	}

	backing, err := os.OpenFile(backingPath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open backing file %s: %w", backingPath, err)
	}

	loopFile, err := os.OpenFile(d.Path, os.O_RDWR, 0)
	if err != nil {
		backing.Close()
		return fmt.Errorf("open loop device %s: %w", d.Path, err)
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, loopFile.Fd(), loopSetFd, backing.Fd()); errno != 0 {
		loopFile.Close()
		backing.Close()
		return fmt.Errorf("LOOP_SET_FD on %s: %w", d.Path, errno)
	}
	d.state = StateAttached
	d.backingFile = backing
	d.loopFile = loopFile

	info := loopInfo64{Offset: uint64(offset), Sizelimit: uint64(sizeLimit)}

	var lastErr error
	for attempt := 0; attempt < statusRetries; attempt++ {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, loopFile.Fd(), loopSetStatus64, uintptr(ptrTo(&info)))
		if errno == 0 {
			d.state = StateActive
			return nil
		}
		lastErr = errno
		time.Sleep(statusBackoff)
	}

	_ = d.Detach()
	return fmt.Errorf("LOOP_SET_STATUS_64 on %s failed after %d attempts: %w", d.Path, statusRetries, lastErr)
}

// Detach clears the loop device's backing file (LOOP_CLR_FD),
// transitioning to Detached (§4.6 step 6, always run on every exit path).
func (d *Device) Detach() error {
	if d.loopFile == nil {
		d.state = StateDetached
		return nil
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.loopFile.Fd(), loopClrFd, 0)
	closeErr := d.loopFile.Close()
	if d.backingFile != nil {
		_ = d.backingFile.Close()
	}
	d.state = StateDetached

	if errno != 0 {
		return fmt.Errorf("LOOP_CLR_FD on %s: %w", d.Path, errno)
	}
	return closeErr
}

// State returns the device's current lifecycle state.
func (d *Device) State() State { return d.state }
