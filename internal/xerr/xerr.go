// Package xerr implements the error-kind taxonomy of the design (§7 Error
// Handling Design): semantic kinds, not Go types, so ordinary %w wrapping and
// errors.Is/As keep working across package boundaries.
package xerr

import "errors"

// Kind classifies why an operation failed, driving top-level propagation
// decisions: whether to log, whether to clean up submounts, whether it is
// safe to retry.
type Kind int

const (
	// KindUnknown is the zero value; never constructed directly by New.
	KindUnknown Kind = iota
	// KindNotFound means a file or device did not exist.
	KindNotFound
	// KindInvParam means a caller passed a bad argument.
	KindInvParam
	// KindInvState means the environment violates a precondition
	// (e.g. insufficient free RAM, /balena-takeover already populated).
	KindInvState
	// KindUpstream wraps a failure in a delegated call (syscall, ioctl,
	// library call) whose cause is preserved via Unwrap.
	KindUpstream
	// KindFileExists means a create-if-absent operation found something there.
	KindFileExists
	// KindPermission means the process lacked rights for the operation.
	KindPermission
	// KindNotPermitted means the kernel refused the operation outright
	// (e.g. pivot_root from a non-pid-1, non-mount-namespace-owning caller).
	KindNotPermitted
	// KindDeviceNotFound means a named block/loop device does not exist.
	KindDeviceNotFound
	// KindExecProcess means a spawned command exited nonzero.
	KindExecProcess
	// KindCmdIo means a pipe or ioctl failed at the transport level,
	// distinct from the command itself reporting failure.
	KindCmdIo
	// KindDisplayed marks an error already logged by its origin; callers
	// up the stack must not log it again.
	KindDisplayed
	// KindImageDownloaded is not a failure — it is a short-circuit signal
	// that the requested image is already staged and no further work is
	// needed. Non-goal collaborators (§1) return it through this package
	// so stage1 can treat it uniformly with real errors in a single switch.
	KindImageDownloaded
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvParam:
		return "invalid_parameter"
	case KindInvState:
		return "invalid_state"
	case KindUpstream:
		return "upstream"
	case KindFileExists:
		return "file_exists"
	case KindPermission:
		return "permission"
	case KindNotPermitted:
		return "not_permitted"
	case KindDeviceNotFound:
		return "device_not_found"
	case KindExecProcess:
		return "exec_process"
	case KindCmdIo:
		return "cmd_io"
	case KindDisplayed:
		return "displayed"
	case KindImageDownloaded:
		return "image_downloaded"
	default:
		return "unknown"
	}
}

// Error is a kinded error that wraps an optional cause.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "staging.mount_tmpfs"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Message
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with no wrapped cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs an *Error that wraps cause. If cause is already an *Error
// tagged Displayed, the wrapper stays Displayed too, so a second log call up
// the stack doesn't duplicate output.
func Wrap(kind Kind, op, message string, cause error) *Error {
	if already := new(Error); errors.As(cause, &already) && already.Kind == KindDisplayed {
		kind = KindDisplayed
	}
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// Is reports whether the first *Error found in err's Unwrap chain carries
// the given kind. Deeper *Error values are not inspected; Wrap keeps a
// Displayed cause's kind on the wrapper so that check still holds.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// MarkDisplayed wraps err (if not already Displayed) to suppress re-logging
// by callers further up the stack, per §7's propagation rule.
func MarkDisplayed(err error) error {
	if err == nil {
		return nil
	}
	if Is(err, KindDisplayed) {
		return err
	}
	return Wrap(KindDisplayed, "displayed", "error already logged", err)
}
