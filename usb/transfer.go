package usb

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// usbBulkTransfer mirrors struct usbdevfs_bulktransfer.
type usbBulkTransfer struct {
	Endpoint uint32
	Length   uint32
	Timeout  uint32
	Data     uintptr
}

// ControlTransfer issues a synchronous control transfer (setup + optional
// data stage), per USB 2.0 §9.3. This is the transport spec.md's §6
// per-control accessors and §4.2/§4.4 probe/commit negotiation both ride on.
func (h *DeviceHandle) ControlTransfer(requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrDeviceNotFound
	}

	var dataPtr unsafe.Pointer
	if len(data) > 0 {
		dataPtr = unsafe.Pointer(&data[0])
	}

	ctrl := usbCtrlRequest{
		RequestType: requestType,
		Request:     request,
		Value:       value,
		Index:       index,
		Length:      uint16(len(data)),
		Timeout:     uint32(timeout.Milliseconds()),
		Data:        dataPtr,
	}

	ret, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(h.fd), usbdevfsControl, uintptr(unsafe.Pointer(&ctrl)))
	if errno != 0 {
		return 0, errnoToErr(errno)
	}
	return int(ret), nil
}

func (h *DeviceHandle) BulkTransfer(endpoint uint8, data []byte, timeout time.Duration) (int, error) {
	return h.BulkTransferWithOptions(endpoint, data, timeout, false)
}

// BulkTransferWithOptions performs a synchronous bulk transfer. allowZeroLength
// permits a zero-length data stage (used to terminate a transfer that's an
// exact multiple of the endpoint's max packet size).
func (h *DeviceHandle) BulkTransferWithOptions(endpoint uint8, data []byte, timeout time.Duration, allowZeroLength bool) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrDeviceNotFound
	}
	if len(data) == 0 && !allowZeroLength {
		return 0, ErrInvalidParameter
	}

	var dataPtr uintptr
	if len(data) > 0 {
		dataPtr = uintptr(unsafe.Pointer(&data[0]))
	}

	bulk := usbBulkTransfer{
		Endpoint: uint32(endpoint),
		Length:   uint32(len(data)),
		Timeout:  uint32(timeout.Milliseconds()),
		Data:     dataPtr,
	}

	ret, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(h.fd), usbdevfsBulk, uintptr(unsafe.Pointer(&bulk)))
	if errno != 0 {
		return 0, errnoToErr(errno)
	}
	return int(ret), nil
}

func (h *DeviceHandle) InterruptTransfer(endpoint uint8, data []byte, timeout time.Duration) (int, error) {
	return h.InterruptTransferWithRetry(endpoint, data, timeout, 1)
}

// InterruptTransferWithRetry performs an interrupt transfer (usbfs has no
// dedicated ioctl for it; it rides the bulk ioctl same as libusb does),
// retrying up to maxRetries times on any error other than ErrDeviceNotFound
// or ErrInvalidParameter, and clearing a halt first after timeout/IO errors.
func (h *DeviceHandle) InterruptTransferWithRetry(endpoint uint8, data []byte, timeout time.Duration, maxRetries int) (int, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		n, err := h.BulkTransfer(endpoint, data, timeout)
		if err == nil {
			return n, nil
		}
		lastErr = err

		if err == ErrDeviceNotFound || err == ErrInvalidParameter {
			break
		}
		if err == ErrTimeout || err == ErrIO {
			if clearErr := h.ClearHalt(endpoint); clearErr != nil {
				break
			}
		}
	}

	return 0, lastErr
}

// ResetDevice reopens the device node and forgets all claimed interfaces. It
// does not issue a USB port reset.
func (h *DeviceHandle) ResetDevice() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrDeviceNotFound
	}

	oldFd := h.fd
	fd, err := unix.Open(h.device.Path, unix.O_RDWR, 0)
	if err != nil {
		return err
	}

	h.fd = fd
	unix.Close(oldFd)
	h.claimedIfaces = make(map[uint8]bool)
	return nil
}

func (h *DeviceHandle) ResetEndpoint(endpoint uint8) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrDeviceNotFound
	}
	ep := uint32(endpoint)
	_, err := h.ioctl(usbdevfsResetEP, unsafe.Pointer(&ep))
	return err
}
