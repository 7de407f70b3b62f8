package usb

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Sentinel errors returned by transport operations. Callers compare with
// errors.Is rather than switching on syscall.Errno directly, since a given
// condition can arrive from either an ioctl errno or from higher-level
// bookkeeping (e.g. a device already closed).
var (
	ErrDeviceNotFound   = errors.New("device not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrDeviceBusy       = errors.New("device busy")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrIO               = errors.New("I/O error")
	ErrNotFound         = errors.New("not found")
	ErrTimeout          = errors.New("operation timed out")
	ErrOverflow         = errors.New("overflow")
	ErrPipe             = errors.New("pipe error")
	ErrInterrupted      = errors.New("interrupted")
	ErrNoMemory         = errors.New("out of memory")
	ErrNotSupported     = errors.New("operation not supported")
	ErrOther            = errors.New("unknown error")
)

// errnoToErr maps a raw ioctl errno onto the sentinel error set above.
// unmapped errnos are returned unwrapped instead of silently becoming ErrOther,
// so a caller doing errors.Is against a syscall.Errno still works.
func errnoToErr(errno unix.Errno) error {
	switch errno {
	case 0:
		return nil
	case unix.EAGAIN:
		return ErrTimeout
	case unix.ENODEV, unix.ENOENT, unix.ENXIO:
		return ErrDeviceNotFound
	case unix.EACCES, unix.EPERM:
		return ErrPermissionDenied
	case unix.EBUSY:
		return ErrDeviceBusy
	case unix.EINVAL:
		return ErrInvalidParameter
	case unix.ETIMEDOUT:
		return ErrTimeout
	case unix.EOVERFLOW:
		return ErrOverflow
	case unix.EPIPE:
		return ErrPipe
	case unix.EINTR:
		return ErrInterrupted
	case unix.ENOMEM:
		return ErrNoMemory
	case unix.ENOSYS, unix.ENOTTY:
		return ErrNotSupported
	case unix.EIO:
		return ErrIO
	default:
		return errno
	}
}
