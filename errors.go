package uvc

import (
	"errors"
	"fmt"

	"github.com/kevmo314/go-uvc/usb"
)

// ErrorCode is the result taxonomy surfaced by this package, independent of
// the underlying usb transport's own error values.
type ErrorCode int

const (
	ErrIO ErrorCode = iota
	ErrInvalidParam
	ErrAccess
	ErrNoDevice
	ErrNotFound
	ErrBusy
	ErrTimeout
	ErrOverflow
	ErrPipe
	ErrInterrupted
	ErrNoMem
	ErrNotSupported
	ErrInvalidDevice
	ErrInvalidMode
	ErrCallbackExists
	ErrOther
)

var errorCodeNames = map[ErrorCode]string{
	ErrIO:             "I/O error",
	ErrInvalidParam:   "invalid parameter",
	ErrAccess:         "access denied",
	ErrNoDevice:       "no such device",
	ErrNotFound:       "not found",
	ErrBusy:           "busy",
	ErrTimeout:        "timed out",
	ErrOverflow:       "overflow",
	ErrPipe:           "pipe error",
	ErrInterrupted:    "interrupted",
	ErrNoMem:          "out of memory",
	ErrNotSupported:   "not supported",
	ErrInvalidDevice:  "invalid device",
	ErrInvalidMode:    "invalid mode",
	ErrCallbackExists: "callback already registered",
	ErrOther:          "unknown error",
}

func (c ErrorCode) String() string {
	if s, ok := errorCodeNames[c]; ok {
		return s
	}
	return "unknown error"
}

// Error is this package's error type. It wraps the underlying usb error (if
// any) so callers can errors.Is against either layer.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("uvc: %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("uvc: %s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code ErrorCode, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// wrapUSBError maps a usb package error onto this package's taxonomy,
// per the one-to-one table this module's error handling carries forward
// from the transport layer.
func wrapUSBError(op string, err error) *Error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, usb.ErrPermissionDenied):
		return newError(ErrAccess, op, err)
	case errors.Is(err, usb.ErrDeviceBusy):
		return newError(ErrBusy, op, err)
	case errors.Is(err, usb.ErrTimeout):
		return newError(ErrTimeout, op, err)
	case errors.Is(err, usb.ErrNoMemory):
		return newError(ErrNoMem, op, err)
	case errors.Is(err, usb.ErrPipe):
		return newError(ErrPipe, op, err)
	case errors.Is(err, usb.ErrInterrupted):
		return newError(ErrInterrupted, op, err)
	case errors.Is(err, usb.ErrNotSupported):
		return newError(ErrNotSupported, op, err)
	case errors.Is(err, usb.ErrDeviceNotFound):
		return newError(ErrNoDevice, op, err)
	case errors.Is(err, usb.ErrOverflow):
		return newError(ErrOverflow, op, err)
	case errors.Is(err, usb.ErrInvalidParameter):
		return newError(ErrInvalidParam, op, err)
	case errors.Is(err, usb.ErrIO):
		return newError(ErrIO, op, err)
	default:
		return newError(ErrOther, op, err)
	}
}
