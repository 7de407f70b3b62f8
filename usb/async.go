package usb

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// URB types, from <linux/usbdevice_fs.h> USBDEVFS_URB_TYPE_*.
const (
	urbTypeIso       = 0
	urbTypeInterrupt = 1
	urbTypeControl   = 2
	urbTypeBulk      = 3
)

// URB flags.
const (
	urbShortNotOK = 0x01
	urbIsoASAP    = 0x02
)

// IsoPacketDescriptor describes one packet of an isochronous URB.
type IsoPacketDescriptor struct {
	Length       uint32
	ActualLength uint32
	Status       int32
}

// urb mirrors struct usbdevfs_urb. The isochronous packet descriptor array,
// when present, follows immediately after this struct in the same allocation
// (urbBuffer below) — usbfs expects them contiguous, not as a separate pointer.
type urb struct {
	Type            uint8
	Endpoint        uint8
	Status          int32
	Flags           uint32
	Buffer          unsafe.Pointer
	BufferLength    int32
	ActualLength    int32
	StartFrame      int32
	NumberOfPackets int32
	ErrorCount      int32
	SignalNumber    uint32
	UserContext     uintptr
}

// AsyncTransferCallback receives a completed transfer's status, the number of
// bytes actually transferred, and (for isochronous transfers) the per-packet
// results — precisely the completion contract the UVC transfer ring's
// resubmission policy is built against.
type AsyncTransferCallback func(t *AsyncTransfer)

// AsyncTransferManager owns a pool of submitted URBs against one DeviceHandle
// and a single reaper goroutine that drains their completions. One manager is
// created per streaming endpoint a uvc.Stream arms.
type AsyncTransferManager struct {
	handle *DeviceHandle

	mu      sync.Mutex
	pending map[uintptr]*AsyncTransfer // urb pointer -> owning transfer
	running bool
	stopCh  chan struct{}
	group   *errgroup.Group
}

// AsyncTransfer is one submitted (or submittable) asynchronous transfer.
type AsyncTransfer struct {
	manager      *AsyncTransferManager
	endpoint     uint8
	transferType TransferType
	buffer       []byte
	packets      []IsoPacketDescriptor
	callback     AsyncTransferCallback
	userdata     any

	urbBuffer []byte // urb header + trailing IsoPacketDescriptor array
	u         *urb

	mu           sync.Mutex
	submitted    bool
	status       TransferStatus
	actualLength int
}

// NewAsyncTransferManager creates a transfer ring bound to h and starts its
// reaper goroutine. Call Close to stop it and cancel any outstanding transfers.
func (h *DeviceHandle) NewAsyncTransferManager() (*AsyncTransferManager, error) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return nil, ErrDeviceNotFound
	}

	m := &AsyncTransferManager{
		handle:  h,
		pending: make(map[uintptr]*AsyncTransfer),
		stopCh:  make(chan struct{}),
	}
	m.group = &errgroup.Group{}
	m.running = true
	m.group.Go(m.reapLoop)
	return m, nil
}

// NewAsyncTransfer allocates (but does not submit) a bulk or isochronous
// transfer. For isochronous transfers, numPackets equal-sized packets of
// bufferSize/numPackets bytes each are carved out of one contiguous buffer.
func (m *AsyncTransferManager) NewAsyncTransfer(endpoint uint8, transferType TransferType, bufferSize int, numPackets int) *AsyncTransfer {
	t := &AsyncTransfer{
		manager:      m,
		endpoint:     endpoint,
		transferType: transferType,
		buffer:       make([]byte, bufferSize),
		status:       TransferCompleted,
	}

	urbType := uint8(urbTypeBulk)
	packetCount := 0
	if transferType == TransferTypeIsochronous && numPackets > 0 {
		urbType = urbTypeIso
		packetCount = numPackets
		t.packets = make([]IsoPacketDescriptor, numPackets)
		packetSize := bufferSize / numPackets
		for i := range t.packets {
			t.packets[i].Length = uint32(packetSize)
		}
	} else if transferType == TransferTypeInterrupt {
		urbType = urbTypeInterrupt
	}

	urbSize := unsafe.Sizeof(urb{}) + uintptr(packetCount)*unsafe.Sizeof(IsoPacketDescriptor{})
	t.urbBuffer = make([]byte, urbSize)
	t.u = (*urb)(unsafe.Pointer(&t.urbBuffer[0]))
	t.u.Type = urbType
	t.u.Endpoint = endpoint
	t.u.NumberOfPackets = int32(packetCount)
	t.u.StartFrame = -1
	if urbType == urbTypeIso {
		t.u.Flags = urbIsoASAP
	}

	return t
}

func (t *AsyncTransfer) isoPacketsView() []IsoPacketDescriptor {
	if len(t.packets) == 0 {
		return nil
	}
	return (*[1 << 16]IsoPacketDescriptor)(unsafe.Pointer(
		uintptr(unsafe.Pointer(&t.urbBuffer[0])) + unsafe.Sizeof(urb{})))[:len(t.packets):len(t.packets)]
}

func (t *AsyncTransfer) SetCallback(cb AsyncTransferCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callback = cb
}

func (t *AsyncTransfer) SetUserData(userdata any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.userdata = userdata
}

func (t *AsyncTransfer) UserData() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.userdata
}

func (t *AsyncTransfer) GetStatus() TransferStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *AsyncTransfer) GetActualLength() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.actualLength
}

// GetBuffer returns the portion of the transfer's buffer actually filled by
// the most recent completion.
func (t *AsyncTransfer) GetBuffer() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buffer[:t.actualLength]
}

func (t *AsyncTransfer) GetPackets() []IsoPacketDescriptor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.packets
}

// Submit arms the transfer with the kernel. It returns once the URB has been
// accepted, not once it completes — completion is delivered to the callback
// set via SetCallback, from the manager's reaper goroutine.
func (t *AsyncTransfer) Submit() error {
	m := t.manager
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return ErrDeviceNotFound
	}

	t.mu.Lock()
	if t.submitted {
		t.mu.Unlock()
		return fmt.Errorf("transfer already submitted")
	}

	t.u.Status = 0
	t.u.ActualLength = 0
	t.u.ErrorCount = 0
	t.u.Buffer = unsafe.Pointer(&t.buffer[0])
	t.u.BufferLength = int32(len(t.buffer))

	if iso := t.isoPacketsView(); iso != nil {
		for i := range t.packets {
			iso[i].ActualLength = 0
			iso[i].Status = 0
			iso[i].Length = t.packets[i].Length
		}
	}
	t.submitted = true
	t.mu.Unlock()

	m.handle.mu.RLock()
	fd := m.handle.fd
	closed := m.handle.closed
	m.handle.mu.RUnlock()
	if closed {
		return ErrDeviceNotFound
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), usbdevfsSubmitURB, uintptr(unsafe.Pointer(t.u)))
	if errno != 0 {
		t.mu.Lock()
		t.submitted = false
		t.mu.Unlock()
		return errnoToErr(errno)
	}

	m.pending[uintptr(unsafe.Pointer(t.u))] = t
	return nil
}

// Cancel discards a submitted transfer. Its callback still fires, with
// TransferCancelled, once the reaper observes the discard.
func (t *AsyncTransfer) Cancel() error {
	m := t.manager
	m.mu.Lock()
	defer m.mu.Unlock()

	t.mu.Lock()
	submitted := t.submitted
	t.mu.Unlock()
	if !submitted {
		return nil
	}

	m.handle.mu.RLock()
	fd := m.handle.fd
	m.handle.mu.RUnlock()

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), usbdevfsDiscardURB, uintptr(unsafe.Pointer(t.u)))
	if errno != 0 && errno != unix.EINVAL {
		return errnoToErr(errno)
	}
	return nil
}

// reapLoop drains completed URBs via the non-blocking REAPURBNDELAY ioctl.
// Non-blocking plus a short sleep (rather than the blocking REAPURB ioctl) is
// what lets Close() observe stopCh and exit the goroutine promptly instead of
// being stuck in a syscall with no outstanding URBs to wake it.
func (m *AsyncTransferManager) reapLoop() error {
	fd := m.handle.fd
	for {
		select {
		case <-m.stopCh:
			return nil
		default:
		}

		var urbPtr unsafe.Pointer
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), usbdevfsReapURBNDelay, uintptr(unsafe.Pointer(&urbPtr)))
		if errno != 0 {
			if errno == unix.EAGAIN {
				time.Sleep(time.Millisecond)
				continue
			}
			if errno == unix.ENODEV {
				return nil
			}
			time.Sleep(time.Millisecond)
			continue
		}

		m.mu.Lock()
		t, ok := m.pending[uintptr(urbPtr)]
		if ok {
			delete(m.pending, uintptr(urbPtr))
		}
		m.mu.Unlock()
		if !ok {
			continue
		}

		m.completeTransfer(t)
	}
}

func (m *AsyncTransferManager) completeTransfer(t *AsyncTransfer) {
	t.mu.Lock()
	t.submitted = false

	switch {
	case t.u.Status == 0:
		t.status = TransferCompleted
	case t.u.Status == -int32(unix.ETIMEDOUT):
		t.status = TransferTimedOut
	case t.u.Status == -int32(unix.ECONNRESET) || t.u.Status == -int32(unix.ENOENT):
		t.status = TransferCancelled
	case t.u.Status == -int32(unix.ENODEV) || t.u.Status == -int32(unix.ESHUTDOWN):
		t.status = TransferNoDevice
	case t.u.Status == -int32(unix.EOVERFLOW):
		t.status = TransferOverflow
	case t.u.Status == -int32(unix.EPIPE):
		t.status = TransferStall
	default:
		t.status = TransferError
	}

	if iso := t.isoPacketsView(); iso != nil {
		copy(t.packets, iso)
		total := 0
		for _, p := range t.packets {
			total += int(p.ActualLength)
		}
		t.actualLength = total
	} else {
		t.actualLength = int(t.u.ActualLength)
	}

	cb := t.callback
	t.mu.Unlock()

	if cb != nil {
		cb(t)
	}
}

// Close cancels every outstanding transfer and stops the reaper goroutine.
func (m *AsyncTransferManager) Close() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	pending := make([]*AsyncTransfer, 0, len(m.pending))
	for _, t := range m.pending {
		pending = append(pending, t)
	}
	m.mu.Unlock()

	for _, t := range pending {
		t.Cancel()
	}

	close(m.stopCh)
	return m.group.Wait()
}
