package loopdev

import "unsafe"

// ptrTo returns v's address as a uintptr suitable for a raw ioctl
// syscall argument. Isolated in its own file so the single unsafe usage
// in this package is easy to audit.
func ptrTo(v *loopInfo64) uintptr {
	return uintptr(unsafe.Pointer(v))
}
